package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/config"
	"github.com/JakeFAU/hansard-crawler/internal/crawler"
	"github.com/JakeFAU/hansard-crawler/internal/dates"
)

// newCrawlCmd creates the 'crawl' subcommand, which discovers and downloads
// documents without extracting them.
func newCrawlCmd() *cobra.Command {
	var (
		rf       rangeFlags
		maxPages int
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover and download transcripts without processing them",
		Long: `Paginates the listing, collects candidate documents in the date range and
downloads each one that is not already tracked and present in storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := config.ResolveRange(dates.New(dates.DateparseParser{}), rf.year, rf.start, rf.end)
			if err != nil {
				return err //nolint:wrapcheck
			}
			rt, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer rt.app.Close()
			c, err := rt.app.NewCrawler(r, maxPages)
			if err != nil {
				return err //nolint:wrapcheck
			}
			return runCrawl(cmd, rt, c, dryRun)
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum listing pages to crawl (0 = configured default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be downloaded without fetching documents")
	return cmd
}

func runCrawl(cmd *cobra.Command, rt *runtime, c *crawler.Crawler, dryRun bool) error {
	ctx := cmd.Context()
	logger := rt.logger.Named("crawl")

	cands, err := c.Crawl(ctx, 0)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		logger.Warn("crawl failed; nothing to download", zap.Error(err))
	}
	var res crawler.Result
	if dryRun {
		res, err = c.Plan(ctx, cands)
	} else {
		res, err = c.DownloadAll(ctx, cands)
	}
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	out := cmd.OutOrStdout()
	verb := "downloaded"
	if dryRun {
		verb = "would download"
	}
	fmt.Fprintf(out, "%d candidates: %d %s, %d skipped, %d failed\n",
		len(cands), res.Downloaded, verb, res.Skipped, res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}
	if err := rt.app.Metrics().Emit(out); err != nil {
		logger.Warn("failed to emit metrics", zap.Error(err))
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/hansard-crawler/internal/config"
	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/historical"
)

// processingFlags maps historical flags onto config keys so the config file
// and HANSARD_PROCESSING_* variables supply their defaults.
var processingFlags = map[string]string{
	"workers":      "processing.workers",
	"force":        "processing.force",
	"dry-run":      "processing.dry_run",
	"clean":        "processing.clean",
	"skip-crawl":   "processing.skip_crawl",
	"skip-process": "processing.skip_process",
	"skip-qa":      "processing.skip_qa",
	"max-pages":    "source.max_pages",
	"backup-dir":   "database.backup_dir",
}

type rangeFlags struct {
	year  int
	start string
	end   string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&r.year, "year", 0, "process a single calendar year")
	cmd.Flags().StringVar(&r.start, "start", "", "earliest document date ("+dates.SupportedFormats+")")
	cmd.Flags().StringVar(&r.end, "end", "", "latest document date ("+dates.SupportedFormats+")")
}

func newHistoricalCmd() *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "historical",
		Short: "Crawl, download and ingest transcripts for a date range",
		Long: `Runs the full batch: optional clean (after a database backup), crawl of
the listing pages, parallel extraction of every local transcript in the range,
sequential commit, a data quality report and a metrics summary.

Per-document failures are reported in the summary and do not fail the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistorical(cmd, rf)
		},
	}
	rf.register(cmd)
	cmd.Flags().Int("workers", 4, "number of parallel extraction workers")
	cmd.Flags().Bool("force", false, "reprocess documents that were already ingested")
	cmd.Flags().Bool("dry-run", false, "report what would be downloaded and processed without writing")
	cmd.Flags().Bool("clean", false, "back up the database, then delete all sessions and statements first")
	cmd.Flags().Bool("skip-crawl", false, "process local files only")
	cmd.Flags().Bool("skip-process", false, "crawl and download only")
	cmd.Flags().Bool("skip-qa", false, "skip the data quality report")
	cmd.Flags().Int("max-pages", 0, "maximum listing pages to crawl (0 = until an empty page)")
	cmd.Flags().String("backup-dir", "", "directory for database backups taken by --clean")
	for flag, key := range processingFlags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	return cmd
}

func runHistorical(cmd *cobra.Command, rf rangeFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	r, err := config.ResolveRange(dates.New(dates.DateparseParser{}), rf.year, rf.start, rf.end)
	if err != nil {
		return err //nolint:wrapcheck
	}
	p := rt.cfg.Processing
	run := historical.Config{
		Workers:     p.Workers,
		Force:       p.Force,
		DryRun:      p.DryRun,
		Clean:       p.Clean,
		SkipCrawl:   p.SkipCrawl,
		SkipProcess: p.SkipProcess,
		SkipQA:      p.SkipQA,
		MaxPages:    rt.cfg.Source.MaxPages,
		Range:       r,
		BackupDir:   rt.cfg.Database.BackupDir,
	}

	rt, err = openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.app.Close()
	processor, err := rt.app.NewProcessor(run)
	if err != nil {
		return err //nolint:wrapcheck
	}
	if _, err := processor.Run(cmd.Context()); err != nil {
		return fmt.Errorf("historical run: %w", err)
	}
	return nil
}

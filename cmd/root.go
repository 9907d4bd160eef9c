// Package cmd defines and implements the CLI commands for the hansard
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/app"
	"github.com/JakeFAU/hansard-crawler/internal/config"
	"github.com/JakeFAU/hansard-crawler/internal/logging"
	pkgconfig "github.com/JakeFAU/hansard-crawler/pkg/config"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries what the root command prepared for its subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	app    *app.App
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "hansard",
		Short: "Crawl, download and ingest parliamentary Hansard transcripts.",
		Long: `hansard discovers transcript PDFs on the parliament listing pages,
downloads each one exactly once, extracts speaker statements and bill
references, and stores them for the downstream site and search index.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Loads configuration and the logger before any I/O. Services are
		// opened by each subcommand after its own flags are validated.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := pkgconfig.InitConfig(cfgFile, nil); err != nil {
				return err //nolint:wrapcheck
			}
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return err //nolint:wrapcheck
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt := &runtime{cfg: cfg, logger: logger}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/hansard, $HOME/.hansard)")

	cmd.AddCommand(newHistoricalCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newScheduleCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not initialized")
	}
	return rt, nil
}

// openApp builds the application services once per invocation. Callers
// close them with rt.app.Close.
func openApp(cmd *cobra.Command, opts ...app.Option) (*runtime, error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return nil, err
	}
	if rt.app != nil {
		return rt, nil
	}
	opts = append([]app.Option{app.WithOutput(cmd.OutOrStdout())}, opts...)
	a, err := app.NewApp(cmd.Context(), rt.cfg, rt.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	rt.app = a
	return rt, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, newRootCmd(), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(root.ErrOrStderr(), "interrupted:", err)
		return ExitInterrupted
	default:
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return ExitError
	}
}

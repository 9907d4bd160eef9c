package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/config"
	"github.com/JakeFAU/hansard-crawler/internal/historical"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func newScheduleCmd() *cobra.Command {
	var (
		spec   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the historical pipeline on a cron schedule until interrupted",
		Long: `Runs an incremental historical batch (crawl, download, process, QA) each
time the cron expression fires. Each run covers schedule.lookback_days days. A
run still in progress when the next one is due is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if spec == "" {
				spec = rt.cfg.Schedule.Cron
			}
			schedule, err := cron.ParseStandard(spec)
			if err != nil {
				return fmt.Errorf("parse schedule %q: %w", spec, err)
			}
			rt, err = openApp(cmd)
			if err != nil {
				return err
			}
			defer rt.app.Close()
			return runSchedule(cmd.Context(), rt, schedule, runNow)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default schedule.cron)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}

func runSchedule(ctx context.Context, rt *runtime, schedule cron.Schedule, runNow bool) error {
	logger := rt.logger.Named("schedule")
	job := func() {
		if err := scheduledRun(ctx, rt); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduled run failed", zap.Error(err))
		}
	}

	cl := cronLogger{s: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id := c.Schedule(schedule, cron.FuncJob(job))
	if runNow {
		c.Entry(id).WrappedJob.Run()
	}
	c.Start()
	logger.Info("scheduler started", zap.Time("next_run", schedule.Next(time.Now())))

	<-ctx.Done()
	logger.Info("scheduler stopping; waiting for the running batch")
	<-c.Stop().Done()
	return nil
}

func scheduledRun(ctx context.Context, rt *runtime) error {
	p := rt.cfg.Processing
	processor, err := rt.app.NewProcessor(historical.Config{
		Workers:  p.Workers,
		SkipQA:   p.SkipQA,
		MaxPages: rt.cfg.Source.MaxPages,
		Range:    config.Lookback(time.Now(), rt.cfg.Schedule.LookbackDays),
	})
	if err != nil {
		return err //nolint:wrapcheck
	}
	if _, err := processor.Run(ctx); err != nil {
		return fmt.Errorf("scheduled run: %w", err)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridline/gridline/internal/config"
	"github.com/gridline/gridline/internal/discord"
	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/reconcile"
	"github.com/gridline/gridline/internal/store"
	"github.com/gridline/gridline/internal/worker"
)

// NewRunCommand creates the run command: the long-running daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation workers",
		Long: `Start one reconciliation worker per configured series plus the
global expiry sweeper, and block until interrupted.

Example:
  gridline run --config ./gridline.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		// Hard configuration failure is fatal before any loop starts.
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var channelOpts []discord.Option
	if cfg.Discord.BaseURL != "" {
		channelOpts = append(channelOpts, discord.WithBaseURL(cfg.Discord.BaseURL))
	}
	channel := discord.New(cfg.Discord.Token, channelOpts...)

	var recOpts []reconcile.Option
	if cfg.Discord.Attachment != "" {
		attachment, err := loadAttachment(cfg.Discord.Attachment)
		if err != nil {
			return err
		}
		recOpts = append(recOpts, reconcile.WithAttachment(attachment))
	}
	rec := reconcile.New(st, channel, recOpts...)

	series := make([]worker.SeriesConfig, 0, len(cfg.Series))
	for _, e := range cfg.Series {
		series = append(series, worker.SeriesConfig{
			Series:    model.ParseSeries(e.Series),
			ChannelID: e.Channel,
			RoleID:    e.Role,
		})
	}

	poll, err := cfg.PollIntervalDuration()
	if err != nil {
		return err
	}
	refresh, err := cfg.CalendarRefreshDuration()
	if err != nil {
		return err
	}

	sup := worker.New(st, rec, series,
		worker.WithPollInterval(poll),
		worker.WithCalendarRefresh(refresh),
	)

	// Graceful shutdown: workers finish their current iteration but
	// never begin a new one after the signal.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("daemon starting", "db", cfg.Database, "series", len(series))
	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("supervisor error: %w", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

func loadAttachment(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return &model.Attachment{Name: filepath.Base(path), Data: data}, nil
}

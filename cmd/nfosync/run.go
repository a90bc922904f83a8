package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/nfosync/internal/config"
	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/executor"
	"github.com/vmunix/nfosync/internal/lock"
	"github.com/vmunix/nfosync/internal/plex"
	"github.com/vmunix/nfosync/internal/runner"
	"github.com/vmunix/nfosync/internal/state"
	"github.com/vmunix/nfosync/internal/subtitles"
	"github.com/vmunix/nfosync/internal/syncer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync sidecars once, or keep watching when watch mode is enabled",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

type runFlags struct {
	disableWatch bool
	files        []string
	watchDir     string
}

var runOpts runFlags

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOpts.disableWatch, "disable-watchdog", false, "Run a single pass even if watch mode is enabled")
	runCmd.Flags().StringSliceVarP(&runOpts.files, "file", "f", nil, "Sync only this sidecar, video or glob (repeatable)")
	runCmd.Flags().StringVar(&runOpts.watchDir, "watch-dir", "", "Scan and watch only this directory")
}

func runSync(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath(nil)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.Error
		if errors.As(err, &configErr) {
			printConfigErrors(configErr)
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	for _, w := range cfg.Warnings() {
		logger.Warn("config warning", "detail", w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runWith(ctx, cfg, runOpts, logger)
}

func runWith(ctx context.Context, cfg *config.Config, flags runFlags, logger *slog.Logger) error {
	var (
		store  executor.AppliedStore
		pruner runner.Pruner
		bus    *events.Bus
	)
	if cfg.State.Path != "" {
		st, err := state.Open(ctx, cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state: %w", err)
		}
		defer func() { _ = st.Close() }()

		eventLog := events.NewEventLog(st.DB())
		bus = events.NewBus(eventLog, logger)
		defer func() { _ = bus.Close() }()
		store, pruner = st, eventLog
	}

	client := newPlexClient(cfg, logger)

	var subs executor.SubtitleSource
	if cfg.Sync.Subtitles {
		subs = subtitles.NewExtractor(subtitles.Options{
			FFprobe: cfg.Tools.FFprobe,
			FFmpeg:  cfg.Tools.FFmpeg,
		}, logger)
	}

	dirs := cfg.Sync.Directories
	if flags.watchDir != "" {
		dirs = []string{flags.watchDir}
	}

	s := syncer.New(client, syncer.Options{
		Libraries:   cfg.Plex.Libraries,
		Directories: dirs,
		Files:       flags.files,
		Executor: executor.Config{
			Threads:               cfg.Sync.Threads,
			MaxConcurrentRequests: cfg.Sync.MaxConcurrentRequests,
			RequestDelay:          cfg.Sync.RequestDelay.Duration(),
			RetryCount:            cfg.Sync.RetryCount,
			RetryDelay:            cfg.Sync.RetryDelay.Duration(),
			Subtitles:             cfg.Sync.Subtitles,
			AlwaysApply:           cfg.Sync.AlwaysApply,
			DeleteAfterApply:      cfg.Sync.DeleteNFOAfterApply,
		},
	}, syncer.Deps{Store: store, Subtitles: subs, Events: bus}, logger)

	var l lock.TryLocker = lock.NewLocal()
	if cfg.Watch.LockFile != "" {
		fl, err := lock.NewFile(cfg.Watch.LockFile)
		if err != nil {
			return err
		}
		l = fl
	}

	watching := watchEnabled(cfg, flags)
	logger.Info("nfosync starting",
		"version", version,
		"plex", cfg.Plex.URL,
		"libraries", cfg.Plex.Libraries,
		"watch", watching,
		"subtitles", cfg.Sync.Subtitles)

	r := runner.New(s, bus, pruner, runner.Config{
		Watch:     watching,
		Debounce:  cfg.Watch.DebounceDelay.Duration(),
		Lock:      l,
		Retention: retention(cfg.State.RetentionDays),
	}, logger)
	return r.Run(ctx)
}

// watchEnabled reports whether the process keeps watching after the first
// cycle. Targeted runs always exit after one pass.
func newPlexClient(cfg *config.Config, logger *slog.Logger) *plex.Client {
	return plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, plex.Options{
		Timeout:        cfg.Plex.Timeout.Duration(),
		LocalPath:      cfg.Plex.LocalPath,
		RemotePath:     cfg.Plex.RemotePath,
		CircuitBreaker: cfg.Plex.CircuitBreaker,
	}, logger)
}

func watchEnabled(cfg *config.Config, flags runFlags) bool {
	return cfg.Watch.Enabled && !flags.disableWatch && len(flags.files) == 0
}

func retention(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

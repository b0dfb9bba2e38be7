// Package app wires configuration into the backup pipeline.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/semmidev/folderbak/internal/adapter/archiver"
	"github.com/semmidev/folderbak/internal/adapter/notify"
	"github.com/semmidev/folderbak/internal/adapter/remote"
	"github.com/semmidev/folderbak/internal/adapter/source"
	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
	"github.com/semmidev/folderbak/internal/infrastructure/logger"
	"github.com/semmidev/folderbak/internal/infrastructure/metrics"
	"github.com/semmidev/folderbak/internal/infrastructure/scheduler"
	"github.com/semmidev/folderbak/internal/retry"
	"github.com/semmidev/folderbak/internal/usecase"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	backup    *usecase.Backup
	metrics   *metrics.Recorder
	scheduler *scheduler.Scheduler
}

// New builds the logger from cfg and then the application around it.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{Verbose: cfg.App.Logging, File: cfg.LogPath()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewWithLogger(cfg, log)
}

func NewWithLogger(cfg *config.Config, log *logger.Logger) (*App, error) {
	log.Infof("Starting folderbak on node %s (remote: %s)", cfg.NodeIdentity(), cfg.Remote.Protocol)

	var ftpTrace remote.FTPTrace
	if cfg.App.LoggingFTP {
		ftpTrace = func() io.Writer { return log.DebugWriter("ftp") }
	}
	dialer, err := remote.New(cfg, log, ftpTrace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remote: %w", err)
	}

	arch, err := archiver.New(archiver.Options{
		Engine:      cfg.Backup.Engine,
		Compression: cfg.Backup.Compression,
		CopyFirst:   cfg.Backup.CopyBeforeBackup,
		TempDir:     cfg.TempDir(),
	}, archiver.ExecRunner{}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archiver: %w", err)
	}

	backup := usecase.NewBackup(
		dialer,
		arch,
		source.NewSpaceChecker(cfg.App.WorkDir, cfg.Backup.CopyBeforeBackup, log),
		usecase.NewRetention(cfg.Backup.Prefix, cfg.Backup.Limit, log),
		NewNotifier(cfg, log),
		log,
		usecase.BackupOptions{
			SourceDir:   cfg.Source.Dir,
			TempDir:     cfg.TempDir(),
			Prefix:      cfg.Backup.Prefix,
			OnlyOnError: cfg.Notify.OnlyOnError,
			Retry: retry.Options{
				MaxAttempts: cfg.Backup.RetryAttempts,
				Delay:       cfg.Backup.RetryDelay,
			},
		},
	)

	a := &App{
		config:  cfg,
		logger:  log,
		backup:  backup,
		metrics: metrics.New(),
	}
	if cfg.Schedule != "" {
		a.scheduler = scheduler.New(log)
	}
	return a, nil
}

// NewNotifier returns the Telegram notifier for cfg.
func NewNotifier(cfg *config.Config, log *logger.Logger) domain.Notifier {
	return notify.NewTelegram(notify.TelegramConfig{
		Token:         cfg.Notify.TelegramToken,
		ChatID:        cfg.Notify.TelegramChatID,
		Node:          cfg.NodeIdentity(),
		SilentSuccess: cfg.Notify.SilentSuccess,
	}, log)
}

// Run performs one backup, or with SCHEDULE set keeps triggering backups
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return a.RunOnce(ctx)
	}

	if err := a.scheduler.AddJob(ctx, a.config.Schedule, a.RunOnce); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	a.scheduler.Run(ctx)
	return nil
}

// RunOnce executes a single backup and records its metrics.
func (a *App) RunOnce(ctx context.Context) error {
	run, err := a.backup.Execute(ctx)
	a.recordMetrics(run)
	return err
}

func (a *App) recordMetrics(run *domain.BackupRun) {
	if a.config.Metrics.Textfile == "" || run == nil {
		return
	}
	a.metrics.Observe(run, time.Now())
	if err := a.metrics.WriteTextfile(a.config.Metrics.Textfile); err != nil {
		a.logger.Warnf("%v", err)
	}
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down")
	a.logger.Close()
}

// ReportConfigError sends the configuration failure through whatever
// notification settings did load. It never fails.
func ReportConfigError(ctx context.Context, cfg *config.Config, cause error, log *logger.Logger) {
	if cfg == nil {
		return
	}
	if err := NewNotifier(cfg, log).Notify(ctx, domain.Message{Text: cause.Error(), IsError: true}); err != nil {
		log.Errorf("Failed to send notification: %v", err)
	}
}

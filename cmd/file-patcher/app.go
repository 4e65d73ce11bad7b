package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"file-patch-server/internal/approval"
	"file-patch-server/internal/config"
	"file-patch-server/internal/filesystem"
	"file-patch-server/internal/lock"
	"file-patch-server/internal/reviewer"
	"file-patch-server/internal/service"
	"file-patch-server/internal/workspace"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	guard    *workspace.Guard
	service  service.PatchService
	reviewer *reviewer.Client
}

// appOptions carries the terminal streams used by the interactive approver.
type appOptions struct {
	promptIn  io.Reader
	promptOut io.Writer
	editFunc  approval.EditFunc
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	lockManager, err := lock.NewLockManager(cfg.LockDir, cfg.OperationTimeout())
	if err != nil {
		return nil, fmt.Errorf("initializing lock manager: %w", err)
	}
	fsAdapter := filesystem.NewDefaultFileSystemAdapter(
		filesystem.WithMaxFileSize(cfg.MaxFileSizeBytes()),
		filesystem.WithLockManager(lockManager),
		filesystem.WithLogger(logger),
	)
	guard, err := workspace.NewGuard(cfg.WorkingDirectory,
		workspace.WithDenyPatterns(cfg.Deny...),
		workspace.WithReadOnlyPatterns(cfg.ReadOnly...),
		workspace.WithSymlinkResolver(fsAdapter),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace guard: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, guard: guard}
	svcOpts := []service.Option{service.WithLogger(logger)}

	if cfg.ReviewerURL != "" {
		a.reviewer = reviewer.New(cfg.ReviewerURL, reviewer.WithLogger(logger))
		if err := a.reviewer.Connect(ctx); err != nil {
			// The coordinator retries the connection on every confirmation.
			logger.Warn("reviewer not reachable at startup", "url", cfg.ReviewerURL, "error", err)
		}
		svcOpts = append(svcOpts, service.WithReviewer(a.reviewer))
	}

	if cfg.Approval == config.ApprovalInteractive {
		if opts.promptIn == nil || opts.promptOut == nil {
			return nil, fmt.Errorf("approval mode %q needs a terminal", cfg.Approval)
		}
		var termOpts []approval.TerminalOption
		if opts.editFunc != nil {
			termOpts = append(termOpts, approval.WithEditFunc(opts.editFunc))
		}
		svcOpts = append(svcOpts, service.WithApprover(approval.NewTerminalApprover(opts.promptIn, opts.promptOut, termOpts...)))
	}

	svc, err := service.NewDefaultPatchService(fsAdapter, guard, cfg, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initializing patch service: %w", err)
	}
	a.service = svc
	return a, nil
}

// Close releases the reviewer connection.
func (a *app) Close() {
	if a.reviewer != nil {
		_ = a.reviewer.Disconnect()
	}
}

func logEffectiveConfig(logger *slog.Logger, cfg *config.Config) {
	logger.Info("effective configuration",
		"dir", cfg.WorkingDirectory,
		"config_file", cfg.ConfigFile,
		"transport", cfg.Transport,
		"port", cfg.Port,
		"max_file_size_mb", cfg.MaxFileSizeMB,
		"max_concurrent", cfg.MaxConcurrentOps,
		"timeout_sec", cfg.OperationTimeoutSec,
		"max_edits", cfg.MaxEdits,
		"approval", cfg.Approval,
		"reviewer_url", cfg.ReviewerURL,
		"deny", cfg.Deny,
		"read_only", cfg.ReadOnly,
	)
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"file-patch-server/internal/config"
	"file-patch-server/internal/logging"
	"file-patch-server/internal/models"
)

// errRejected is returned by apply when the change was declined.
var errRejected = errors.New("changes rejected")

// detailError carries a service error detail out of a command.
type detailError struct {
	detail *models.ErrorDetail
}

func (e *detailError) Error() string {
	msg := fmt.Sprintf("%s (code %d)", e.detail.Message, e.detail.Code)
	if details, ok := e.detail.Data["details"].(string); ok && details != "" && details != e.detail.Message {
		msg += ": " + details
	}
	return msg
}

// newRootCommand creates a fresh command tree, so tests get isolated flag state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file-patcher",
		Short: "Apply line-range edits to workspace files with diff preview and confirmation",
		Long: `file-patcher applies sets of line-range replacements to text files inside a
workspace. Every change is previewed as a unified diff, confirmed (automatically,
by an external reviewer or interactively) and written atomically with the file's
original line endings.

Examples:
   file-patcher serve --dir ./project                  # HTTP server on :8080
   file-patcher serve --dir ./project --transport stdio
   file-patcher read main.go --start 10 --end 20
   file-patcher preview main.go --edits edits.yaml
   file-patcher apply main.go --edits edits.yaml --approval interactive`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCommand(),
		newApplyCommand(),
		newPreviewCommand(),
		newReadCommand(),
	)
	return cmd
}

// loadConfig resolves and validates the configuration for cmd. When useCwd is set an
// unset workspace defaults to the current directory.
func loadConfig(cmd *cobra.Command, useCwd bool) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.WorkingDirectory == "" && useCwd {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine current directory: %w", err)
		}
		cfg.WorkingDirectory = wd
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config, transport string) (*slog.Logger, error) {
	if transport == "" {
		return logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	}
	return logging.New(cfg.LogLevel, cfg.LogFormat, transport)
}

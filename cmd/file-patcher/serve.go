package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"file-patch-server/internal/config"
	"file-patch-server/internal/mcp"
	"file-patch-server/internal/transport"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve read_file, preview_patch and patch_file over HTTP or stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.Approval == config.ApprovalInteractive {
		return fmt.Errorf("approval mode %q is only available to the apply command", cfg.Approval)
	}

	logger, err := newLogger(cmd, cfg, cfg.Transport)
	if err != nil {
		return err
	}
	logEffectiveConfig(logger, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("core services initialized")

	dispatcher := transport.NewDispatcher(a.service, mcp.NewMCPProcessor(a.service), logger)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownChan)

	serverDoneChan := make(chan error, 1)
	var httpHandler *transport.HTTPHandler

	switch cfg.Transport {
	case "http":
		httpHandler = transport.NewHTTPHandler(a.service,
			transport.WithHTTPLogger(logger),
			transport.WithDispatcher(dispatcher),
			// Interactive reviewers can take as long as the operation timeout.
			transport.WithTimeouts(0, cfg.OperationTimeout()+10*time.Second),
		)
		go func() {
			serverDoneChan <- httpHandler.StartServer(cfg.Port)
		}()
	case "stdio":
		stdioHandler := transport.NewStdioHandler(dispatcher, logger)
		go func() {
			serverDoneChan <- stdioHandler.Start(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		}()
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}

	select {
	case sig := <-shutdownChan:
		logger.Info("shutdown signal received, shutting down", "signal", sig.String())
		cancel()
		if httpHandler != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.OperationTimeout())
			defer cancelShutdown()
			if err := httpHandler.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server graceful shutdown failed", "error", err)
				return err
			}
			logger.Info("HTTP server gracefully stopped")
		}
		// The stdio handler stops on input EOF; an abandoned read ends with the process.
		return nil
	case err := <-serverDoneChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server stopped: %w", err)
		}
		logger.Info("server stopped normally")
		return nil
	}
}

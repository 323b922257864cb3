package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/server"
	"github.com/hyperjump/fieldscout/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the inbox watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
}

func runServe(opts *rootOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	s, err := opts.open(false)
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger

	comps, err := initializeComponents(s.cfg, logger)
	if err != nil {
		logger.Error("failed to initialize components", zap.Error(err))
		return err
	}
	defer comps.Close()

	deps := server.Deps{
		Analyzer:  comps.Analyzer,
		Advisor:   comps.Advisor,
		Knowledge: comps.Knowledge,
		Model:     comps.Provider,
		Storage:   comps.Storage,
	}

	inboxOpts := []watcher.InboxOption{
		watcher.WithInboxLogger(logger),
		watcher.WithDefaultField(s.cfg.Watch.DefaultFieldID),
	}
	if s.cfg.Watch.AutoAnalyze {
		inboxOpts = append(inboxOpts, watcher.WithAutoAnalyze(comps.Analyzer, s.cfg.Analysis.TopK))
	}
	inbox := watcher.NewInbox(ctx, comps.Storage, inboxOpts...)
	watch := watcher.New(s.cfg.Watch.Directories, inbox,
		watcher.WithLogger(logger),
		watcher.WithExtensions(s.cfg.Watch.Extensions),
		watcher.WithRecursive(s.cfg.Watch.RecursiveOrDefault()),
		watcher.WithDebounce(s.cfg.Watch.Debounce()),
	)
	if err := watch.Start(ctx); err != nil {
		logger.Error("failed to start inbox watcher", zap.Error(err))
		return err
	}
	defer watch.Stop()
	go watch.SyncExisting()
	deps.Watch = watch

	srv := server.NewServer(deps, s.cfg, s.configPath, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	return nil
}

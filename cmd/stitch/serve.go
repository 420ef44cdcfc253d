// ABOUTME: Server mode: runs the HTTP API until the context is cancelled, then shuts down gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/2389-research/stitch/config"
	"github.com/2389-research/stitch/server"
	"github.com/2389-research/stitch/store"
)

func runServer(ctx context.Context, cfg config.Config, st *store.Store, logger *zap.Logger, stderr io.Writer) int {
	srv := server.New(server.Config{
		Addr:   cfg.Listen,
		Store:  st,
		Logger: logger,
	}).HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.Bool("store", st != nil))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "error: shutdown: %v\n", err)
		return 1
	}
	return 0
}

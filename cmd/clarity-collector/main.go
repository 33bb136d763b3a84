// Command clarity-collector runs a standalone HTTP receiver for the
// batches a clarity-agent Webhook sink posts. It's a development aid, not
// a production ingestion service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/clarity-agent/pkg/collector"
)

func main() {
	addr := flag.String("addr", ":8089", "address to listen on")
	path := flag.String("path", "/collect", "collection endpoint path")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	srv, err := collector.New(*path, nil, logger)
	if err != nil {
		logger.Error("clarity-collector: fatal", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{Addr: *addr, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	logger.Info("clarity-collector: listening", "addr", *addr, "path", *path)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("clarity-collector: fatal", "error", err)
		os.Exit(1)
	}
}

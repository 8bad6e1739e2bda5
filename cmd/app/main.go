package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbook_go/internal/api"
	"orderbook_go/internal/app"
	"orderbook_go/internal/book"
	"orderbook_go/internal/domain"
	"orderbook_go/internal/engine"
	"orderbook_go/internal/event"
	"orderbook_go/internal/feed"
	"orderbook_go/internal/infra"
	"orderbook_go/internal/infra/cryptofacilities"
	"orderbook_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap("configs/config.yaml")
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config
	metrics := bootstrap.Metrics
	event.Warmup()

	// 4. Book, subscription controller and sequencer
	initial := bootstrap.InitialInstrument()
	mgr := book.NewManager(book.Config{
		Depth:          cfg.Book.Depth,
		PricePrecision: cfg.Book.PricePrecision,
	})
	ctrl := feed.NewController(initial, feed.Config{
		AckTimeout: cfg.AckTimeout(),
		MaxRetries: cfg.Feed.MaxAckRetries,
		Backoff:    infra.CalculateBackoff,
	})

	var svc *service.BookService
	seq := engine.NewSequencer(cfg.Feed.InboxSize, mgr, ctrl, metrics, func(view domain.BookView) {
		svc.Publish(view)
	})
	svc = service.NewBookService(seq, bootstrap.Storage)

	// 5. Feed Worker (Gateway)
	nextSeq := uint64(1)
	worker := cryptofacilities.NewWorker(cfg.Feed.WSURL, seq.Inbox(), &nextSeq, metrics)
	ctrl.BindRequester(worker)
	seq.SetStuckHandler(func(err error) {
		slog.Warn("Recycling feed connection", slog.Any("error", err))
		worker.Reconnect()
	})

	// Start Sequencer in its own goroutine (The Hotpath Loop)
	go seq.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started", slog.String("instrument", initial.String()))

	if err := worker.Connect(ctx); err != nil {
		slog.Error("Failed to connect feed", slog.Any("error", err))
	}
	defer worker.Disconnect()

	// 6. HTTP API
	var server *api.FiberServer
	if cfg.API.Enabled {
		server = api.New(svc, metrics, bootstrap.Registry)
		go func() {
			if err := server.Listen(cfg.API.Listen); err != nil {
				slog.Error("API server stopped", slog.Any("error", err))
			}
		}()
		slog.InfoContext(ctx, "✅ API server started", slog.String("listen", cfg.API.Listen))
	}

	slog.InfoContext(ctx, "✨ Order book service fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("API server forced to shutdown", slog.Any("error", err))
		}
	}
}

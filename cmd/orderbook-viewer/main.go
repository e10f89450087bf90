package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbook-viewer/internal/config"
	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/feed"
	"orderbook-viewer/internal/metrics"
	"orderbook-viewer/internal/pipeline"
	"orderbook-viewer/internal/server"
	"orderbook-viewer/internal/state"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	path := os.Getenv("ORDERBOOK_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("orderbook-viewer starting",
		slog.Int("port", cfg.Port),
		slog.String("feed_url", cfg.FeedURL),
		slog.String("default_market", cfg.DefaultMarket),
		slog.Int("refresh_interval_ms", cfg.RefreshIntervalMs),
	)

	// State
	markets := make([]state.Market, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets = append(markets, state.Market{ID: m.ID, TicketSizes: m.Sizes()})
	}
	st, err := state.NewState(markets, cfg.DefaultMarket)
	if err != nil {
		logger.Error("state init", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var reg *prometheus.Registry
	if cfg.MetricsEnabled {
		reg = metrics.Init(logger)
	}

	// Feed
	f := feed.NewCryptoFacilitiesFeed(cfg.FeedURL, cfg.FeedName, logger)
	if err := f.SubscribeMarket(st.Market()); err != nil {
		logger.Error("subscribe", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// HTTP server + WS hub
	srv := server.NewHTTPServer(cfg, st, f, logger, reg)

	// Book pipeline: feed -> queue -> state -> hub
	pipe := pipeline.New(st, time.Duration(cfg.RefreshIntervalMs)*time.Millisecond,
		func(v depth.View) { srv.BroadcastBook(v) }, logger)
	srv.SetRefresher(pipe)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.Run(ctx, func(connected bool) {
		st.SetConnected(connected)
		// Push status to browser
		srv.BroadcastStatus()
	})
	go pipe.Consume(ctx, f.Updates())
	go pipe.Run(ctx)

	go func() {
		for {
			select {
			case err, ok := <-f.Errors():
				if !ok {
					return
				}
				logger.Error("depth feed error", slog.String("err", err.Error()))
				srv.BroadcastError(err.Error())
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP serving
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	f.Unsubscribe()
	cancel()
	f.Close()
	<-done
	logger.Info("bye")
}

package main

import (
	"context"
	"errors"
	"live-auction/internal/api/middleware"
	"live-auction/internal/bootstrap"
	"live-auction/internal/config"
	"live-auction/internal/infrastructure/websocket"
	"live-auction/pkg/logger"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const serviceName = "bidding-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName, 8081)
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", serviceName, "instance_id", cfg.Instance.ID)
	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	connManager := websocket.NewConnectionManager(log)
	wsHandler := websocket.NewWebSocketHandler(app.Ledger, app.Feed, connManager, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS)
	wsHandler.Register(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// Lazy closure covers reads; the sweep closes auctions nobody is reading.
	sweeper := app.Sweeper()
	if err := sweeper.Start(ctx); err != nil {
		log.Error("Failed to start lifecycle sweeper", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting websocket gateway", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if app.Relay != nil {
		g.Go(func() error { return app.Relay.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down bidding service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		connManager.CloseAll()
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop lifecycle sweeper", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Bidding service failed", "error", err)
	}
	log.Info("Bidding service stopped")
}

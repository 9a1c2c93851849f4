package main

import (
	"context"
	"errors"
	"live-auction/internal/api/handlers"
	apimw "live-auction/internal/api/middleware"
	"live-auction/internal/bootstrap"
	"live-auction/internal/config"
	"live-auction/pkg/logger"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

const serviceName = "auction-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName, 8080)
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", serviceName, "instance_id", cfg.Instance.ID)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(apimw.EchoCORS())

	api := e.Group("/api/v1", apimw.Identity())
	handlers.NewAuctionHandler(app.Ledger, log).Register(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   serviceName,
			"instance":  cfg.Instance.ID,
			"store":     cfg.Store.Driver,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	sweeper := app.Sweeper()
	if err := sweeper.Start(ctx); err != nil {
		log.Error("Failed to start lifecycle sweeper", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", cfg.Server.Address())
		if err := e.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down auction service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop lifecycle sweeper", "error", err)
		}
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Auction service failed", "error", err)
	}
	log.Info("Auction service stopped")
}

package main

import (
	"context"
	"errors"
	"live-auction/internal/config"
	"live-auction/internal/domain"
	"live-auction/internal/infrastructure/kafka"
	"live-auction/internal/infrastructure/mysql"
	"live-auction/internal/infrastructure/redis"
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

const serviceName = "analytics-service"

// AnalyticsService appends every committed event to the audit table.
type AnalyticsService struct {
	events *mysql.EventRepository
	log    logger.Logger
}

func NewAnalyticsService(events *mysql.EventRepository, log logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		events: events,
		log:    log,
	}
}

func (as *AnalyticsService) Record(ctx context.Context, env domain.Envelope) error {
	inserted, err := as.events.SaveEvent(ctx, env)
	if err != nil {
		return err
	}
	if !inserted {
		as.log.Debug("Skipping duplicate event", "event_id", env.Event.ID)
		return nil
	}
	as.log.Info("Stored event",
		"event_id", env.Event.ID,
		"type", string(env.Event.Type),
		"auction_id", env.Event.AuctionID,
		"version", env.Event.Version,
	)
	return nil
}

// History serves the recorded events of one auction in version order.
func (as *AnalyticsService) History(c echo.Context) error {
	auctionID := c.Param("id")
	events, err := as.events.GetEventHistory(c.Request().Context(), auctionID)
	if err != nil {
		as.log.Error("Failed to read event history", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, try again"})
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"auction_id": auctionID,
		"events":     events,
	})
}

// ConsumeKafka reads the change-feed topic; offsets are committed only after
// the event is stored.
func (as *AnalyticsService) ConsumeKafka(ctx context.Context, cfg config.KafkaConfig) error {
	as.log.Info("Consuming events from Kafka", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	consumer := kafka.NewConsumer(cfg.Brokers, cfg.GroupID, cfg.Topic, 4, as.log)
	return consumer.Start(ctx, kafka.EventHandler(as.log, as.Record))
}

// ConsumeRedis follows the relay channel instead. Events published while the
// service is down are lost.
func (as *AnalyticsService) ConsumeRedis(ctx context.Context, cfg config.RedisConfig, self string) error {
	client, err := redis.NewClient(ctx, cfg.Address, cfg.Password, cfg.DB)
	if err != nil {
		return err
	}
	defer client.Close()

	as.log.Warn("Kafka disabled; consuming the Redis relay channel", "channel", cfg.Channel)
	subscriber := redis.NewEventSubscriber(client, cfg.Channel, self, as.log)
	return subscriber.Subscribe(ctx, func(ctx context.Context, event domain.Event) error {
		return as.Record(ctx, domain.Envelope{Event: event})
	})
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName, 8082)
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", serviceName, "instance_id", cfg.Instance.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := mysql.Open(ctx, cfg.MySQL)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}()
	if err := mysql.EnsureSchema(ctx, db); err != nil {
		log.Error("Failed to prepare schema", "error", err)
		os.Exit(1)
	}

	analytics := NewAnalyticsService(mysql.NewEventRepository(db), log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.GET("/api/v1/auctions/:id/events", analytics.History)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	log.Info("Starting analytics service")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		switch {
		case cfg.Kafka.Enabled:
			return analytics.ConsumeKafka(gctx, cfg.Kafka)
		case cfg.Redis.Enabled:
			return analytics.ConsumeRedis(gctx, cfg.Redis, cfg.Instance.ID)
		default:
			return errors.New("neither kafka nor redis is enabled")
		}
	})
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", cfg.Server.Address())
		if err := e.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Analytics service failed", "error", err)
		os.Exit(1)
	}
	log.Info("Analytics service stopped")
}

// Package bootstrap builds the shared runtime of every service from config:
// store, caches, relays, feed hub, ledger and leader election.
package bootstrap

import (
	"context"
	"fmt"
	"live-auction/internal/clock"
	"live-auction/internal/config"
	"live-auction/internal/domain"
	"live-auction/internal/feed"
	"live-auction/internal/infrastructure/kafka"
	"live-auction/internal/infrastructure/leader"
	"live-auction/internal/infrastructure/memory"
	"live-auction/internal/infrastructure/mysql"
	"live-auction/internal/infrastructure/postgres"
	"live-auction/internal/infrastructure/redis"
	"live-auction/internal/services"
	"live-auction/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
)

type App struct {
	Config *config.Config
	Log    logger.Logger
	Clock  clock.Clock

	Store  domain.AuctionStore
	Hub    *feed.Hub
	Ledger *services.Ledger
	Feed   *services.FeedService
	Leader domain.LeaderElection

	// Set only when redis.enabled.
	Redis *redisClient.Client
	Relay *services.EventRelay

	// Set only when kafka.enabled.
	Kafka *kafka.Producer

	closers []func()
}

// New connects everything cfg enables. On error whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Log: log, Clock: clock.System{}}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if err = app.openStore(ctx); err != nil {
		return nil, err
	}

	app.Hub, err = feed.NewHub(feed.Options{
		BufferSize:         cfg.Feed.BufferSize,
		GapTimeout:         cfg.Feed.GapTimeout,
		SequencerCacheSize: cfg.Feed.SequencerCacheSize,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create feed hub: %w", err)
	}
	app.onClose(app.Hub.Close)

	publishers := []domain.EventPublisher{app.Hub}
	var cache domain.PriceCache

	if cfg.Redis.Enabled {
		app.Redis, err = redis.NewClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		rdb := app.Redis
		app.onClose(func() { _ = rdb.Close() })
		log.Info("Connected to Redis", "address", cfg.Redis.Address)

		cache = redis.NewPriceCache(rdb, cfg.Redis.CacheTTL)
		relayPub := redis.NewEventPublisher(rdb, cfg.Redis.Channel, cfg.Instance.ID, cfg.Redis.PublishBuffer, log)
		relayPub.Start()
		app.onClose(relayPub.Close)
		publishers = append(publishers, relayPub)
		app.Relay = services.NewEventRelay(
			redis.NewEventSubscriber(rdb, cfg.Redis.Channel, cfg.Instance.ID, log),
			app.Hub,
			log,
		)
		app.Leader = leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL)
	} else {
		log.Info("Redis disabled; running as a single instance")
		app.Leader = leader.Static{InstanceID: cfg.Instance.ID}
	}

	if cfg.Kafka.Enabled {
		app.Kafka = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer, cfg.Instance.ID, log)
		app.Kafka.Start()
		app.onClose(app.Kafka.Close)
		publishers = append(publishers, app.Kafka)
		log.Info("Kafka producer started", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	app.Ledger = services.NewLedger(
		app.Store,
		cache,
		services.NewBidValidator(cfg.Bidding.MinIncrementValue()),
		app.Clock,
		log,
		publishers...,
	)
	app.Feed = services.NewFeedService(app.Ledger, app.Hub, log)
	return app, nil
}

// Sweeper builds the leader-gated closure job.
func (a *App) Sweeper() *services.LifecycleSweeper {
	return services.NewLifecycleSweeper(
		a.Ledger,
		a.Leader,
		a.Config.Instance.ID,
		a.Config.Lifecycle.SweepSchedule,
		a.Config.Lifecycle.SweepBatch,
		a.Log,
	)
}

// Close waits for background ledger work, then releases resources in
// reverse order of opening.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.Store = memory.NewStore()
		a.Log.Warn("Using in-memory store; state is lost on restart")

	case config.DriverMySQL:
		db, err := mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			return err
		}
		a.onClose(func() {
			if err := db.Close(); err != nil {
				a.Log.Error("Failed to close MySQL connection", "error", err)
			}
		})
		if err := mysql.EnsureSchema(ctx, db); err != nil {
			return err
		}
		a.Store = mysql.NewAuctionStore(db)
		a.Log.Info("Connected to MySQL")

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		a.onClose(pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		a.Store = postgres.NewAuctionStore(pool)
		a.Log.Info("Connected to Postgres", "max_conns", cfg.Postgres.MaxConns)

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

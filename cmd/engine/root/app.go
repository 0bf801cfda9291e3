package root

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/analytics"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/xp"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/cache"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/Noxter68/habit-tracking-sub001/pkg/broker"
	"github.com/Noxter68/habit-tracking-sub001/pkg/config"
	"github.com/Noxter68/habit-tracking-sub001/pkg/logger"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	db          *connection.Database
	redis       *cache.RedisClient
	bus         *broker.InMemoryBroker
	habits      habits.Service
	analytics   analytics.Service
	progression progression.Service
	ledger      xp.Ledger
	catalog     progression.Catalog
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, log, nil
}

func openApp(ctx context.Context) (*app, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := connection.NewDatabase(cfg)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}
	cleanup := func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
		if a.bus != nil {
			_ = a.bus.Close()
		}
		_ = db.Close()
		_ = log.Sync()
	}

	var insightCache analytics.Cache
	var publisher progression.EventPublisher
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cache.NewConfigFromEnv(cfg), log)
		if err != nil {
			log.Warn("Redis unavailable, running without insight cache and events", zap.Error(err))
		} else {
			a.redis = client
			insightCache = client
			publisher = client
		}
	}
	if a.redis == nil {
		// events stay in-process without Redis
		a.bus = broker.NewInMemoryBroker(log.Zap(), 0)
		publisher = a.bus
	}

	tiers, err := progression.TiersFromConfig(cfg.Tiers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if cfg.Engine.CatalogSource == "database" {
		a.catalog = progression.NewDBCatalog(db)
	} else {
		static, err := progression.CatalogFromConfig(cfg.Milestones)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		a.catalog = static
	}

	a.habits = habits.NewService(habits.NewRepository(db, cfg.Engine.Location()), log.Zap())
	a.analytics = analytics.NewService(a.habits, insightCache, analytics.Options{
		WindowDays:  cfg.Engine.WindowDays,
		CacheTTL:    cfg.Engine.InsightCacheTTL,
		Concurrency: cfg.Scheduler.Concurrency,
	}, log.Zap())
	a.ledger = xp.NewLedger(db)
	a.progression = progression.NewService(a.habits, progression.NewRepository(db), a.catalog, a.ledger, tiers, progression.Options{
		WindowDays: cfg.Engine.WindowDays,
		Publisher:  publisher,
		Insights:   a.analytics,
	}, log.Zap())

	return a, cleanup, nil
}

// today resolves the evaluation day from --today or the engine timezone.
func (a *app) today() (habits.Day, error) {
	if todayFlag != "" {
		return habits.ParseDay(todayFlag)
	}
	return habits.DayOf(time.Now(), a.cfg.Engine.Location()), nil
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, s, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

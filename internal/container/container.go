package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"storyweaver/harvester/internal/api"
	"storyweaver/harvester/internal/archive"
	"storyweaver/harvester/internal/client"
	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/proxy"
	"storyweaver/harvester/internal/queue"
	"storyweaver/harvester/internal/repository"
	"storyweaver/harvester/internal/service"
	"storyweaver/harvester/internal/state"
	"storyweaver/harvester/internal/throttle"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Container holds all initialized components
type Container struct {
	Config    *config.Config
	Client    client.StoryClient
	Store     state.Store
	Snapshots repository.SnapshotRepository
	Queue     *queue.RedisQueue

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// SetupLogging applies the configured level and format to the global logger
func SetupLogging(cfg config.LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("⚠️ Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// New creates a new container with all dependencies initialized.
// Redis and Postgres are only dialled when a configured backend needs them.
func New(ctx context.Context, cfg *config.Config) (_ *Container, err error) {
	c := &Container{Config: cfg}
	defer func() {
		// Release whatever was dialled before the failure
		if err != nil {
			c.Close()
		}
	}()

	proxySupplier, err := proxy.NewProxySupplier(ctx, cfg.Remote.Proxies, cfg.Remote.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize proxy supplier: %w", err)
	}

	limiter := throttle.NewLimiter(cfg.Scheduler.MaxOperations, cfg.Scheduler.Window)
	c.Client = client.NewStoryClient(cfg.Remote, limiter, cfg.Scheduler.RateLimitCooldown, proxySupplier)

	if cfg.State.Backend == "redis" || cfg.Handoff.Enabled {
		if err := c.connectRedis(ctx); err != nil {
			return nil, err
		}
	}

	switch cfg.State.Backend {
	case "redis":
		c.Store = state.NewRedisStore(c.redis, cfg.State.KeyPrefix)
	default:
		store, err := state.NewFileStore(cfg.State.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state store: %w", err)
		}
		c.Store = store
	}

	switch cfg.Storage.SnapshotBackend {
	case "postgres":
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		c.db = db
		if err := repository.EnsureSnapshotSchema(ctx, db); err != nil {
			return nil, err
		}
		log.Info("✅ Connected to Postgres successfully")
		c.Snapshots = repository.NewPostgresSnapshotRepository(db)
	default:
		c.Snapshots = repository.NewFileSnapshotRepository(cfg.Storage.MetadataDir)
	}

	// A nil *RedisQueue must not leak into the interface
	var publisher queue.Publisher
	if cfg.Handoff.Enabled {
		q, err := queue.NewRedisQueue(ctx, c.redis, cfg.Handoff)
		if err != nil {
			return nil, err
		}
		c.Queue = q
		publisher = q
	}

	c.Service = service.NewService(serviceOptions(cfg), c.Client, c.Store, c.Snapshots, publisher)
	return c, nil
}

func (c *Container) connectRedis(ctx context.Context) error {
	cfg := c.Config.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	c.redis = rdb

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")
	return nil
}

func serviceOptions(cfg *config.Config) service.Options {
	scratch := cfg.Storage.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "harvest-scratch")
	}
	return service.Options{
		Mode:             cfg.Scheduler.Mode,
		MaxWorkers:       cfg.Scheduler.MaxWorkers,
		MaxAttempts:      cfg.Scheduler.MaxAttempts,
		BackoffBase:      cfg.Scheduler.BackoffBase,
		BackoffMax:       cfg.Scheduler.BackoffMax,
		ProgressInterval: cfg.Scheduler.ProgressInterval,

		TargetLocale:  cfg.Remote.TargetLocale,
		DownloadTypes: cfg.Remote.DownloadTypes,

		CatalogSource:   cfg.Catalog.Source,
		MappingFile:     cfg.Discovery.MappingFile,
		MaxProbes:       cfg.Discovery.MaxProbes,
		ProbesPerMinute: cfg.Discovery.ProbesPerMinute,

		Archive: archive.Options{
			ScratchDir:      scratch,
			AssetDir:        cfg.Storage.AssetDir,
			ContentDir:      cfg.Storage.ContentDir,
			MinPayloadBytes: cfg.Storage.MinPayloadBytes,
			MinContentBytes: cfg.Storage.MinContentBytes,
			MaxMemberBytes:  cfg.Storage.MaxMemberBytes,
		},
	}
}

// Run drives the harvest and, when enabled, serves the status API alongside it.
// The API stops once the harvest returns; an API failure never stops the harvest.
func (c *Container) Run(ctx context.Context) (domain.Summary, error) {
	if !c.Config.Server.Enabled {
		return c.Service.Run(ctx)
	}

	var summary domain.Summary
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error {
		defer stopServer()
		var err error
		summary, err = c.Service.Run(ctx)
		return err
	})
	g.Go(func() error {
		if err := api.NewServer(c.Config.Server, c.Service).Run(gctx); err != nil {
			log.Errorf("❌ Status API stopped: %v", err)
		}
		return nil
	})

	err := g.Wait()
	return summary, err
}

// Close performs cleanup when shutting down
func (c *Container) Close() {
	log.Info("Shutting down container...")

	if c.Client != nil {
		c.Client.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			log.Warnf("⚠️ Failed to close state store: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
}

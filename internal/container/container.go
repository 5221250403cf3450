package container

import (
	"context"
	"fmt"
	"net/http"

	"factorcorr/adapters/cache"
	"factorcorr/adapters/postgres"
	"factorcorr/adapters/registry"
	"factorcorr/adapters/stats/senses"
	"factorcorr/adapters/stats/temporal"
	"factorcorr/app"
	"factorcorr/internal"
	"factorcorr/internal/api"
	"factorcorr/internal/api/admin"
	"factorcorr/internal/config"
	"factorcorr/internal/counterfactual"
	"factorcorr/internal/migration"
	"factorcorr/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB
	Cache    *cache.RedisCache
	Registry *registry.ObjectRegistry

	// Repositories (data access layer)
	History *postgres.HistoryRepository

	// Model components
	Analyzer   *senses.NonLinearityEstimator
	Propagator *counterfactual.Propagator
	Model      *model.Model
	Service    *app.CorrelationService

	// Streaming
	SSEHub *api.SSEHub
	Events *api.TrainingEventBroadcaster
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat)
	}
	return &Container{Config: cfg, Logger: logger}, nil
}

// Init builds every component; database, cache and cloud registry are optional
func (c *Container) Init(ctx context.Context) error {
	if err := c.initModel(); err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}

	if c.Config.Database.URL != "" {
		db, err := postgres.Connect(ctx, c.Config.Database.URL)
		if err != nil {
			return err
		}
		if err := c.InitWithDatabase(ctx, db); err != nil {
			db.Close()
			return err
		}
	}

	if c.Config.Redis.Addr != "" {
		rc, err := cache.Connect(ctx, c.Config.Redis, c.Logger)
		if err != nil {
			// the cache is an optimisation; serve without it
			c.Logger.WithError(err).Warn("prediction cache disabled")
		} else {
			c.Cache = rc
		}
	}

	reg, err := registry.New(ctx, c.Config.Registry, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model registry: %w", err)
	}
	c.Registry = reg

	c.initService()
	c.Logger.Info("container initialized (database=%t cache=%t registry=%s)",
		c.History != nil, c.Cache != nil, c.Config.Registry.Backend)
	return nil
}

// InitWithDatabase runs migrations and builds the history repository
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}
	if err := migration.NewRunner(c.Logger).Run(ctx, db); err != nil {
		return err
	}
	c.DB = db
	c.History = postgres.NewHistoryRepository(db)
	return nil
}

func (c *Container) initModel() error {
	c.Analyzer = senses.NewNonLinearityEstimator(c.Logger)
	c.Propagator = counterfactual.NewPropagator(c.Logger)
	c.SSEHub = api.NewSSEHub(c.Logger)
	c.Events = api.NewTrainingEventBroadcaster(c.SSEHub, c.Config.Model.Name)

	m, err := model.New(model.FromSettings(c.Config.Model, c.Config.Training),
		model.WithLogger(c.Logger),
		model.WithSeriesAnalyzer(c.Analyzer),
		model.WithTrainingObserver(c.Events),
	)
	if err != nil {
		return err
	}
	c.Model = m
	return nil
}

func (c *Container) initService() {
	opts := []app.ServiceOption{
		app.WithRegistry(c.Registry),
		app.WithAnalysis(c.Analyzer, temporal.Scanner{}),
	}
	if c.Cache != nil {
		opts = append(opts, app.WithCache(c.Cache))
	}
	if c.History != nil {
		opts = append(opts, app.WithHistory(c.History))
	}
	c.Service = app.NewCorrelationService(c.Model, c.Propagator, c.Logger, opts...)
}

// Router builds the public gin engine
func (c *Container) Router() *gin.Engine {
	if c.Config.Server.GinMode != "" {
		gin.SetMode(c.Config.Server.GinMode)
	}
	h := api.NewCorrelationHandler(c.Service, c.Events, c.Logger)
	return api.NewRouter(h, c.SSEHub, c.Config.Model.Name, c.Logger)
}

// AdminHandler builds the metrics/health/pprof handler
func (c *Container) AdminHandler() http.Handler {
	return admin.New(c.Model)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.SSEHub != nil {
		c.SSEHub.Close()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.Logger.WithError(err).Warn("closing cache")
		}
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

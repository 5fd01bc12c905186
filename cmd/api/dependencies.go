package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/cashback"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/handler"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/repository"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/pkg/config"
	"github.com/SandersonMaxwell/spin-cashback/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	LayoutRepo repository.LayoutRepository

	// Services
	Engine        *cashback.Engine
	ReportService *service.ReportService

	// Handlers
	CashbackHandler *handler.CashbackHandler
	UploadHandler   *handler.UploadHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase connects and migrates when layout persistence is enabled.
func (d *Dependencies) initDatabase() error {
	if !d.Config.Database.Enabled {
		d.Logger.Info("database disabled, layouts kept in memory")
		return nil
	}

	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	if d.DB != nil {
		d.LayoutRepo = repository.NewPostgresLayoutRepository(d.DB.Pool)
	} else {
		d.LayoutRepo = repository.NewMemoryLayoutRepository()
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	policy := cashback.DefaultPolicy()
	if path := d.Config.Cashback.PolicyFile; path != "" {
		loaded, err := cashback.LoadPolicy(path)
		if err != nil {
			return fmt.Errorf("failed to load cashback policy: %w", err)
		}
		policy = loaded
		d.Logger.Info("cashback policy loaded", slog.String("path", path), slog.Int("tiers", len(policy.Tiers)))
	}

	engine, err := cashback.NewEngine(policy)
	if err != nil {
		return err
	}
	d.Engine = engine
	d.ReportService = service.NewReportService(d.LayoutRepo, d.Engine, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.CashbackHandler = handler.NewCashbackHandler(d.ReportService, d.Logger)
	d.UploadHandler = handler.NewUploadHandler(d.ReportService, d.Logger, d.Config.Server.MaxUploadBytes)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

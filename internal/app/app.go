// Package app assembles the admission core from configuration. Both the
// HTTP server and the operator CLI start from Build.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/config"
	"github.com/iliyamo/batch-admission/internal/database"
	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/queue"
	"github.com/iliyamo/batch-admission/internal/repository"
	"github.com/iliyamo/batch-admission/internal/repository/memstore"
	"github.com/iliyamo/batch-admission/internal/service"
)

// App is a wired admission core.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *sql.DB // nil with the memory store
	Store    repository.Store
	Gateway  gateway.Client
	Bus      *event.Bus
	Services *service.Services
}

// Build opens the store selected by App.StoreDriver, migrates it when
// asked to, and wires the services. Close releases the database.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	settings, err := service.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log}

	switch cfg.App.StoreDriver {
	case "memory":
		a.Store = memstore.New()
	default:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if cfg.DB.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		a.DB = db
		a.Store = repository.NewSQLStore(db)
	}

	a.Gateway, err = gateway.New(cfg.Gateway)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Bus = event.NewBus(log.Named("events"))
	if cfg.AMQP.Enabled {
		queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.SettledQueue, cfg.AMQP.ReconcileQueue, cfg.AMQP.PublishTimeout, log.Named("publisher")).Register(a.Bus)
	}
	a.Services = service.New(a.Store, a.Gateway, a.Bus, service.SystemClock{}, settings, log)
	return a, nil
}

// Close releases the database connection pool, if any.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

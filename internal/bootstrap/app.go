package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"rpkimon/internal/bootstrap/config"
	"rpkimon/internal/bootstrap/database"
	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/infrastructure/persistence/relational/model"
)

type App struct {
	Config   config.Config
	DB       *gorm.DB
	Registry *prometheus.Registry
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration", slog.String("database_driver", a.Config.Database.Driver))

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

// Ping checks that the configured database answers.
func (a *App) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return database.Ping(ctx, a.DB)
}

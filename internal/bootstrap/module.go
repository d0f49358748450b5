package bootstrap

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"rpkimon/internal/bootstrap/config"
	"rpkimon/internal/bootstrap/database"
	"rpkimon/internal/bootstrap/logging"
	cacheinfra "rpkimon/internal/infrastructure/cache"
	"rpkimon/internal/infrastructure/metrics"
	notifyinfra "rpkimon/internal/infrastructure/notify"
	"rpkimon/internal/infrastructure/persistence/relational/repository"
	"rpkimon/internal/infrastructure/persistence/relational/uow"
	"rpkimon/internal/ports"
	"rpkimon/internal/usecase/ingest"
	"rpkimon/internal/usecase/notify"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideRegistry),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			repository.NewRPKIRepository,
			fx.As(new(ports.RPKIRepository)),
			fx.As(new(ports.RPKIReadRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewKVCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(
		fx.Annotate(
			notifyinfra.NewLogNotifier,
			fx.As(new(ports.Notifier)),
		),
	),
	fx.Provide(provideMetrics),
	fx.Provide(provideIngestService),
	fx.Provide(provideNotifyService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideApp(cfg config.Config, db *gorm.DB, reg *prometheus.Registry) *App {
	return &App{
		Config:   cfg,
		DB:       db,
		Registry: reg,
	}
}

func provideMetrics(reg *prometheus.Registry) ports.IngestMetrics {
	return metrics.New(reg)
}

func provideIngestService(cfg config.Config, repo ports.RPKIRepository, unit ports.UnitOfWork, cache ports.Cache, m ports.IngestMetrics) *ingest.Service {
	return ingest.NewService(repo, unit, cache, m, ingest.Options{
		Atomic:                            cfg.Ingest.Atomic,
		MergePublicationPointAssociations: cfg.Ingest.MergePublicationPointAssociations,
	})
}

func provideNotifyService(cfg config.Config, repo ports.RPKIReadRepository, notifier ports.Notifier) *notify.Service {
	return notify.NewService(repo, notifier, cfg.Notify.From, cfg.Notify.Subject)
}

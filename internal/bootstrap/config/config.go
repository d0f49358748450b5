package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type IngestConfig struct {
	// Atomic wraps a whole run, Update row included, in one transaction.
	Atomic bool `mapstructure:"atomic"`
	// MergePublicationPointAssociations adds URLs and communication types
	// reported for an already known publication point.
	MergePublicationPointAssociations bool `mapstructure:"merge_publication_point_associations"`

	GhostbustersFile string `mapstructure:"ghostbusters_file"`
	RepositoriesFile string `mapstructure:"repositories_file"`
	ObjectsFile      string `mapstructure:"objects_file"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	From    string `mapstructure:"from"`
	Subject string `mapstructure:"subject"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithComponent(ctx, "bootstrap.config")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RPKIMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile != "" && isMissingFile(err)) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("config_file", configFile))
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return Config{}, errors.New("database.dsn is required")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Bool("ingest_atomic", cfg.Ingest.Atomic),
	)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rpkimon")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".rpkimon/state/rpkimon.sqlite")
	v.SetDefault("ingest.atomic", false)
	v.SetDefault("ingest.merge_publication_point_associations", false)
	v.SetDefault("ingest.ghostbusters_file", "./test_data/ghostbusters.json")
	v.SetDefault("ingest.repositories_file", "./test_data/repositories.json")
	v.SetDefault("ingest.objects_file", "./test_data/objects.json")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.from", "no-reply@rpkimon.local")
	v.SetDefault("notify.subject", "RPKI Issue Notification")
}

func isMissingFile(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") || strings.Contains(msg, "cannot find the file")
}

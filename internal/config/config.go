package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/spf13/viper"
)

const envPrefix = "EWM"

// AppConfig - корневая конфигурация сервиса
type AppConfig struct {
	Service    ServiceParams    `mapstructure:"service" validate:"required"`
	DB         DBParams         `mapstructure:"db" validate:"required"`
	HTTP       HTTPParams       `mapstructure:"http" validate:"required"`
	GRPC       GRPCParams       `mapstructure:"grpc" validate:"required"`
	Metrics    MetricsParams    `mapstructure:"metrics"`
	Health     HealthParams     `mapstructure:"health"`
	Log        logger.Config    `mapstructure:"log" validate:"required"`
	OpenSearch OpenSearchParams `mapstructure:"opensearch"`
	Rules      RulesParams      `mapstructure:"rules" validate:"required"`
}

type ServiceParams struct {
	Name            string        `mapstructure:"name" validate:"required"`
	Version         string        `mapstructure:"version" validate:"required"`
	Env             string        `mapstructure:"env" validate:"required,oneof=dev test prod"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

type DBParams struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" validate:"required"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type HTTPParams struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"required"`
}

type GRPCParams struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type MetricsParams struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type HealthParams struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MigrationVersion string        `mapstructure:"migration_version"`
	RequiredTables   []string      `mapstructure:"required_tables"`
	ConsistencyTTL   time.Duration `mapstructure:"consistency_ttl"`
	MaxInconsistency int           `mapstructure:"max_inconsistency" validate:"gte=0"`
}

// OpenSearchParams настройки зеркала опубликованных событий
type OpenSearchParams struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Index      string        `mapstructure:"index" validate:"required_if=Enabled true"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size" validate:"gte=0"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// RulesParams бизнес-правила, которые можно менять без пересборки
type RulesParams struct {
	MinEventLeadTime time.Duration `mapstructure:"min_event_lead_time" validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "ewm-service")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.env", "dev")
	v.SetDefault("service.shutdown_timeout", 15*time.Second)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.url", "")
	v.SetDefault("db.query_timeout", 3*time.Second)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.migrate", true)

	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", "0.0.0.0:9091")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "0.0.0.0:9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", "0.0.0.0:8081")
	v.SetDefault("health.timeout", 5*time.Second)
	v.SetDefault("health.migration_version", "")
	v.SetDefault("health.required_tables", []string{"users", "categories", "events", "participations", "comments", "compilations", "compiled_events"})
	v.SetDefault("health.consistency_ttl", time.Minute)
	v.SetDefault("health.max_inconsistency", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "http://localhost:9200")
	v.SetDefault("opensearch.index", "events")
	v.SetDefault("opensearch.max_retries", 3)
	v.SetDefault("opensearch.timeout", 5*time.Second)
	v.SetDefault("opensearch.batch_size", 100)

	v.SetDefault("rules.min_event_lead_time", 2*time.Hour)
}

// New читает конфигурацию из файла (если он есть) и переменных окружения с префиксом EWM_
func New(paths ...string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет конфигурацию по тегам validate
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

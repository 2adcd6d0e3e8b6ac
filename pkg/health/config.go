package health

import "time"

// Config настройки health сервера
type Config struct {
	ServiceName      string
	Version          string
	Port             string
	Timeout          time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MigrationVersion string
	RequiredTables   []string
	MaxInconsistency int
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		ServiceName:  "ewm-service",
		Version:      "dev",
		Port:         ":8081",
		Timeout:      5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func WithService(name, version string) Option {
	return func(c *Config) {
		c.ServiceName = name
		c.Version = version
	}
}

func WithPort(addr string) Option {
	return func(c *Config) { c.Port = addr }
}

// WithTimeout ограничивает время одной проверки
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithMigrationVersion задает ожидаемую версию схемы. Пустая строка - любая примененная.
func WithMigrationVersion(version string) Option {
	return func(c *Config) { c.MigrationVersion = version }
}

func WithRequiredTables(tables ...string) Option {
	return func(c *Config) { c.RequiredTables = tables }
}

// WithMaxInconsistency допустимое число расхождений до статуса DOWN
func WithMaxInconsistency(n int) Option {
	return func(c *Config) { c.MaxInconsistency = n }
}

package config

import "time"

// PulserConfig is the root configuration for a pulser instance.
type PulserConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Seeds     SeedsConfig     `yaml:"seeds"`
	Database  DBConfig        `yaml:"database"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this pulser.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig holds pulsing engine settings.
type EngineConfig struct {
	Interval              time.Duration `yaml:"interval"`
	ActivationProbability *float64      `yaml:"activation_probability"` // nil means default
	RangePercent          *float64      `yaml:"range_percent"`
	UpThreshold           *float64      `yaml:"up_threshold"`
	RandomSeed            uint64        `yaml:"random_seed"` // 0 seeds from the clock
	AutoStart             bool          `yaml:"auto_start"`
}

// SeedsConfig selects where the canonical instrument set comes from.
type SeedsConfig struct {
	Source      string       `yaml:"source"` // "static" or "postgres"
	Instruments []SeedConfig `yaml:"instruments"`
}

// SeedConfig is one static seed. Price is a decimal string.
type SeedConfig struct {
	Symbol string `yaml:"symbol"`
	Price  string `yaml:"price"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BroadcastConfig holds WebSocket hub settings.
type BroadcastConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// RedisConfig holds the optional Redis pub/sub mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Channel  string `yaml:"channel"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // nil means enabled
	Path    string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsEnabled reports whether /metrics should be served.
func (c *PulserConfig) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

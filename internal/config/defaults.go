package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID            = "stockpulse"
	DefaultHTTPAddr              = ":8080"
	DefaultShutdownTimeout       = 10 * time.Second
	DefaultInterval              = 500 * time.Millisecond
	DefaultActivationProbability = 0.10
	DefaultRangePercent          = 0.002
	DefaultUpThreshold           = 0.51
	DefaultSeedSource            = SeedSourceStatic
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultQueueSize             = 64
	DefaultMaxQueueSize          = 1024
	DefaultWriteTimeout          = 5 * time.Second
	DefaultPingInterval          = 30 * time.Second
	DefaultPongTimeout           = 60 * time.Second
	DefaultRedisAddr             = "localhost:6379"
	DefaultRedisChannel          = "stockpulse:events"
	DefaultMetricsPath           = "/metrics"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
)

// Seed sources.
const (
	SeedSourceStatic   = "static"
	SeedSourcePostgres = "postgres"
)

func (c *PulserConfig) applyDefaults() {
	// Server defaults
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Engine defaults
	if c.Engine.Interval == 0 {
		c.Engine.Interval = DefaultInterval
	}
	if c.Engine.ActivationProbability == nil {
		c.Engine.ActivationProbability = float64Ptr(DefaultActivationProbability)
	}
	if c.Engine.RangePercent == nil {
		c.Engine.RangePercent = float64Ptr(DefaultRangePercent)
	}
	if c.Engine.UpThreshold == nil {
		c.Engine.UpThreshold = float64Ptr(DefaultUpThreshold)
	}

	// Seed defaults
	if c.Seeds.Source == "" {
		c.Seeds.Source = DefaultSeedSource
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Broadcast defaults
	if c.Broadcast.QueueSize == 0 {
		c.Broadcast.QueueSize = DefaultQueueSize
	}
	if c.Broadcast.MaxQueueSize == 0 {
		c.Broadcast.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Broadcast.WriteTimeout == 0 {
		c.Broadcast.WriteTimeout = DefaultWriteTimeout
	}
	if c.Broadcast.PingInterval == 0 {
		c.Broadcast.PingInterval = DefaultPingInterval
	}
	if c.Broadcast.PongTimeout == 0 {
		c.Broadcast.PongTimeout = DefaultPongTimeout
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
// Call after defaults are applied.
func (c *PulserConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be >= 0")
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	switch c.Seeds.Source {
	case SeedSourceStatic:
		if err := validateSeeds(c.Seeds.Instruments); err != nil {
			return err
		}
	case SeedSourcePostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("seeds.source must be %q or %q, got %q", SeedSourceStatic, SeedSourcePostgres, c.Seeds.Source)
	}

	if c.Broadcast.QueueSize < 1 {
		return errors.New("broadcast.queue_size must be >= 1")
	}
	if c.Broadcast.MaxQueueSize < c.Broadcast.QueueSize {
		return fmt.Errorf("broadcast.max_queue_size (%d) cannot be below queue_size (%d)", c.Broadcast.MaxQueueSize, c.Broadcast.QueueSize)
	}
	if c.Broadcast.PongTimeout <= c.Broadcast.PingInterval {
		return errors.New("broadcast.pong_timeout must exceed ping_interval")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.Interval <= 0 {
		return errors.New("engine.interval must be > 0")
	}
	for name, v := range map[string]*float64{
		"activation_probability": e.ActivationProbability,
		"range_percent":          e.RangePercent,
		"up_threshold":           e.UpThreshold,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("engine.%s must be between 0 and 1, got %v", name, *v)
		}
	}
	return nil
}

// validateSeeds checks static seeds. An empty list selects the built-in set.
func validateSeeds(seeds []SeedConfig) error {
	seen := make(map[string]bool, len(seeds))
	for i, s := range seeds {
		if s.Symbol == "" {
			return fmt.Errorf("seeds.instruments[%d].symbol is required", i)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("seeds.instruments[%d]: duplicate symbol %q", i, s.Symbol)
		}
		seen[s.Symbol] = true

		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return fmt.Errorf("seeds.instruments[%d].price: %w", i, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("seeds.instruments[%d].price must be >= 0, got %s", i, s.Price)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

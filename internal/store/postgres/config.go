package postgres

import (
	"fmt"
	"time"
)

// StoreConfig holds configuration for the PostgreSQL document store.
type StoreConfig struct {
	PoolConfig `yaml:",inline"`

	// AutoMigrate applies pending migrations when the store is opened.
	AutoMigrate bool `yaml:"auto_migrate"`

	// QueryTimeout bounds each store call. Default: 10s.
	// A negative value leaves timeouts to the caller's context.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if err := c.PoolConfig.Validate(); err != nil {
		return err
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) must not exceed max conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	c.PoolConfig.ApplyDefaults()
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

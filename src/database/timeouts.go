package database

import "time"

// Query timeouts. Every query runs under one of these.
const (
	TimeoutSimpleSelect = 5 * time.Second
	TimeoutWrite        = 10 * time.Second
	TimeoutMigration    = time.Minute
	TimeoutPing         = 5 * time.Second
)

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPoolConfig returns pool settings for a single-node deployment
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:     25,
		MaxIdle:     5,
		MaxLifetime: 5 * time.Minute,
		MaxIdleTime: time.Minute,
	}
}

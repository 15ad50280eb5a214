package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig sizes the connection pool shared by the user and profile stores.
// Zero values take the defaults listed on each field.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	MaxConns int32 // 10
	MinConns int32 // 2

	MaxConnLifetime   time.Duration // 1h
	MaxConnIdleTime   time.Duration // 30m
	HealthCheckPeriod time.Duration // 1m
	ConnectTimeout    time.Duration // 10s

	// ConnectAttempts bounds the startup ping. Queries are never retried.
	ConnectAttempts uint // 5
}

func (c *PoolConfig) withDefaults() PoolConfig {
	out := *c
	setDefault(&out.MaxConns, 10)
	setDefault(&out.MinConns, 2)
	setDefault(&out.MaxConnLifetime, time.Hour)
	setDefault(&out.MaxConnIdleTime, 30*time.Minute)
	setDefault(&out.HealthCheckPeriod, time.Minute)
	setDefault(&out.ConnectTimeout, 10*time.Second)
	setDefault(&out.ConnectAttempts, 5)
	return out
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Validate checks the configuration after defaults are applied.
func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MinConns < 0 || c.MaxConns < 0 {
		return errors.New("connection counts must not be negative")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) must not exceed max conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// NewPool opens the pool and waits for the database to answer a ping,
// backing off exponentially between attempts.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config is required")
	}

	c := cfg.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = c.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ping := func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	}
	_, err = backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.ConnectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Database not reachable yet")
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database after %d attempts: %w", c.ConnectAttempts, err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", c.MaxConns).
		Msg("Connected to PostgreSQL")

	return pool, nil
}

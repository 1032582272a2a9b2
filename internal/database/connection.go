package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/wazgo/internal/config"
)

const (
	dialTimeout = 10 * time.Second
	pingTimeout = 2 * time.Second
	maxBackoff  = 10 * time.Second
)

// DB holds the service's storage clients. Redis is nil unless sessions are
// kept there.
type DB struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	logger *slog.Logger
}

// Targets names the backends Open connects to. An empty RedisURL skips Redis.
type Targets struct {
	Postgres *config.DatabaseConfig
	RedisURL string
}

// Open connects to Postgres and, when configured, Redis. Each dial is retried
// with doubling delays, up to Postgres.ConnectAttempts tries per backend.
func Open(ctx context.Context, targets Targets, logger *slog.Logger) (*DB, error) {
	cfg := targets.Postgres
	policy := retryPolicy{attempts: cfg.ConnectAttempts, delay: cfg.ConnectRetryDelay, logger: logger}

	var pool *pgxpool.Pool
	err := policy.do(ctx, "postgres", func(ctx context.Context) error {
		var err error
		pool, err = dialPostgres(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	db := &DB{Pool: pool, logger: logger}
	logger.Info("postgres connected",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("pool_size", int(cfg.MaxConns)),
	)

	if targets.RedisURL == "" {
		return db, nil
	}

	err = policy.do(ctx, "redis", func(ctx context.Context) error {
		var err error
		db.Redis, err = dialRedis(ctx, targets.RedisURL)
		return err
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	opt := db.Redis.Options()
	logger.Info("redis connected", slog.String("addr", opt.Addr), slog.Int("db", opt.DB))

	return db, nil
}

func dialPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, permanent{fmt.Errorf("parse postgres config: %w", err)}
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Checks returns a ping per connected backend, keyed by the name reported on
// the health endpoint.
func (db *DB) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{"database": db.pingPostgres}
	if db.Redis != nil {
		checks["redis"] = db.pingRedis
	}
	return checks
}

func (db *DB) pingPostgres(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		stat := db.Pool.Stat()
		return fmt.Errorf("postgres unavailable (%d of %d connections acquired): %w",
			stat.AcquiredConns(), stat.MaxConns(), err)
	}
	return nil
}

func (db *DB) pingRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}

// Close releases every backend Open connected.
func (db *DB) Close() {
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			db.logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
	stat := db.Pool.Stat()
	db.logger.Info("closing postgres pool", slog.Int64("acquire_count", stat.AcquireCount()))
	db.Pool.Close()
}

// permanent marks a dial error that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

type retryPolicy struct {
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// do runs dial until it succeeds, returns a permanent error, ctx ends or the
// attempts are used up. The delay doubles after each failure, capped at maxBackoff.
func (p retryPolicy) do(ctx context.Context, backend string, dial func(context.Context) error) error {
	attempts := max(p.attempts, 1)
	delay := p.delay

	var err error
	for attempt := 1; ; attempt++ {
		err = dial(ctx)
		if err == nil {
			return nil
		}
		var perm permanent
		if errors.As(err, &perm) || attempt >= attempts {
			break
		}

		p.logger.Warn("dial failed, retrying",
			slog.String("backend", backend),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect %s: %w", backend, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxBackoff)
	}
	return fmt.Errorf("connect %s: %w", backend, err)
}

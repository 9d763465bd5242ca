package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"interpharma-gateway/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient holds the audit database handle.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool. sql.Open does not dial; call Ping to check reachability.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// audit inserts are small and bursty; a modest pool is enough
	open, idle := cfg.MaxConnections, cfg.MaxIdle
	if open <= 0 {
		open = 10
	}
	if idle <= 0 || idle > open {
		idle = open / 2
	}
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

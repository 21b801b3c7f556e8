package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Pool *pgxpool.Pool

var (
	parsePoolConfig = pgxpool.ParseConfig
	newPool         = pgxpool.NewWithConfig
	pingPool        = func(ctx context.Context, p *pgxpool.Pool) error { return p.Ping(ctx) }
)

// InitPostgres opens the package pool. An empty url is an error; callers
// decide whether the service can run without a database.
func InitPostgres(ctx context.Context, url string) error {
	if url == "" {
		return errors.New("DATABASE_URL is empty")
	}
	cfg, err := parsePoolConfig(url)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	p, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pingPool(ctx, p); err != nil {
		p.Close()
		return fmt.Errorf("connect to postgres at %s: %w", cfg.ConnConfig.Host, err)
	}
	Pool = p
	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("connected to postgres")
	return nil
}

func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeovahfialho/lntools/internal/config"
	"github.com/jeovahfialho/lntools/pkg/metrics"
)

type DB struct {
	pool *pgxpool.Pool
}

func NewDB(cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = cfg.DatabaseMaxConns
	poolConfig.MinConns = cfg.DatabaseMinConns
	poolConfig.MaxConnLifetime = cfg.DatabaseMaxConnLife
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) HealthCheck(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// HealthDetails reports connection pool usage for readiness checks.
func (db *DB) HealthDetails() map[string]any {
	return poolDetails(db.Stats())
}

func poolDetails(s *pgxpool.Stat) map[string]any {
	return map[string]any{
		"total_conns":    s.TotalConns(),
		"idle_conns":     s.IdleConns(),
		"acquired_conns": s.AcquiredConns(),
		"max_conns":      s.MaxConns(),
	}
}

// CountRows returns the row count of a loaded table.
func (db *DB) CountRows(ctx context.Context, table string) (int64, error) {
	timer := metrics.NewTimer()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier(strings.Split(table, ".")).Sanitize())

	var count int64
	err := db.pool.QueryRow(ctx, query).Scan(&count)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDatabaseQuery("count", status, timer.Elapsed().Seconds())

	if err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

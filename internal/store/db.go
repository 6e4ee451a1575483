package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"schoolattend/internal/metrics"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB opens a Postgres pool and pings it. The DB is returned even when the ping fails.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	d := &DB{Client: db}
	return d, d.Ping(ctx)
}

// Ping checks connectivity and records its latency.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return sql.ErrConnDone
	}
	ctx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := d.Client.PingContext(ctx); err != nil {
		return err
	}
	metrics.ObserveDBPing(time.Since(t0))
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

//go:build testutil

// Package testdb starts a throwaway Postgres with the schema migrated.
package testdb

import (
	"context"
	"errors"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"schoolattend/internal/store"
)

type DBHandle struct {
	*store.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	_ = h.DB.Close()
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Start runs postgres in a container and applies the embedded goose migrations.
func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("attendance"),
		postgres.WithUsername("attendance"),
		postgres.WithPassword("attendance"),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	fail := func(err error) (*DBHandle, error) {
		_ = pg.Terminate(context.Background())
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail(err)
	}
	db, err := store.NewDB(ctx, uri)
	if db == nil {
		return fail(err)
	}
	if err := waitReady(ctx, db); err != nil {
		_ = db.Close()
		return fail(err)
	}
	if err := store.Migrate(ctx, db.Client, zap.NewNop()); err != nil {
		_ = db.Close()
		return fail(err)
	}
	return &DBHandle{DB: db, cancel: cancel, stop: pg.Terminate}, nil
}

func waitReady(ctx context.Context, db *store.DB) error {
	dead := time.Now().Add(20 * time.Second)
	for time.Now().Before(dead) {
		if err := db.Ping(ctx); err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("db not ready")
}

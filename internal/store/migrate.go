package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

func init() {
	goose.SetBaseFS(migrations)
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	before, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return err
	}
	after, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Int64("from", before), zap.Int64("to", after))
	return nil
}

// RunGoose runs an arbitrary goose command (up, down, status, version, redo, reset)
// against the embedded migrations.
func RunGoose(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, db, migrationsDir, args...)
}

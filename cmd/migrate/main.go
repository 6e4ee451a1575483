package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"schoolattend/internal/config"
	"schoolattend/internal/logging"
	"schoolattend/internal/store"
)

const usage = `usage: migrate [-dsn url] <command> [args]

commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version`

func main() {
	cfg := config.Load()
	dsn := flag.String("dsn", cfg.DatabaseURL, "postgres connection string")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	db, err := store.NewDB(ctx, *dsn)
	if err != nil {
		lg.Base.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if err := store.RunGoose(ctx, db.Client, args[0], args[1:]...); err != nil {
		lg.Base.Fatal("goose failed", zap.String("command", args[0]), zap.Error(err))
	}
}

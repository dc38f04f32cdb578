package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/nkrishang/mad-protocol/internal/observability"
	"github.com/nkrishang/mad-protocol/internal/persistence"
)

func main() {
	logger := observability.NewLogger("migrate")

	var (
		dsn = flag.String("dsn", os.Getenv("MAD_POSTGRES_DSN"), "Postgres DSN (defaults to MAD_POSTGRES_DSN)")
		dir = flag.String("dir", "migrations", "migrations directory")
	)
	flag.Parse()

	direction := flag.Arg(0)
	if direction != "up" && direction != "down" {
		fmt.Fprintf(os.Stderr, "usage: migrate [-dsn ...] [-dir ...] up|down\n")
		os.Exit(2)
	}

	if *dsn == "" {
		logger.Fatal().Msg("no DSN: set MAD_POSTGRES_DSN or pass -dsn")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping postgres")
	}

	migrator := persistence.NewMigrator(db, *dir)

	switch direction {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("direction", direction).Msg("migration failed")
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"live-voting/internal/repository"
	"live-voting/pkg/database"
)

const usage = "Usage: migrate [--backend postgres|sqlite] [--database-url URL] [--sqlite-path FILE] up|drop|reset"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	backend := flag.StringP("backend", "b", "postgres", "schema target: postgres or sqlite")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	sqlitePath := flag.String("sqlite-path", envOr("SQLITE_PATH", "votes.db"), "SQLite database file")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch *backend {
	case "postgres":
		err = runPostgres(ctx, *databaseURL, command)
	case "sqlite":
		err = runSQLite(*sqlitePath, command)
	default:
		err = fmt.Errorf("backend %q has no schema to migrate", *backend)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
	fmt.Printf("✅ %s completed on %s\n", command, *backend)
}

func runPostgres(ctx context.Context, databaseURL, command string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --database-url is not set")
	}

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		return database.CreateSchema(ctx, conn)
	case "drop":
		return database.DropSchema(ctx, conn)
	case "reset":
		if err := database.DropSchema(ctx, conn); err != nil {
			return err
		}
		return database.CreateSchema(ctx, conn)
	default:
		return unknownCommand(command)
	}
}

func runSQLite(path, command string) error {
	db, err := repository.OpenSQLite(path)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	switch command {
	case "up":
		return repository.MigrateSQLite(db)
	case "drop":
		return repository.DropSQLite(db)
	case "reset":
		if err := repository.DropSQLite(db); err != nil {
			return err
		}
		return repository.MigrateSQLite(db)
	default:
		return unknownCommand(command)
	}
}

func unknownCommand(command string) error {
	return fmt.Errorf("unknown command %q\n%s", command, usage)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

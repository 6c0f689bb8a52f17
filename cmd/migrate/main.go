package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/db/migrations"
)

func main() {
	if err := runMigrate(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Printf("Migrate failed: %v", err)
		os.Exit(1)
	}
}

// options are the command line flags of migrate
type options struct {
	dbURL    string
	rollback bool
	status   bool
}

// parseFlags parses args; the connection string defaults to DB_CONN_STR
func parseFlags(args []string, defaultDB string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.dbURL, "db", defaultDB, "Database connection string")
	fs.BoolVar(&opts.rollback, "rollback", false, "Rollback the last migration")
	fs.BoolVar(&opts.status, "status", false, "List pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.dbURL == "" {
		return opts, errors.New("no database configured: set DB_CONN_STR or pass -db")
	}
	if opts.rollback && opts.status {
		return opts, errors.New("-rollback and -status are mutually exclusive")
	}
	return opts, nil
}

// runMigrate contains the main application logic and can be tested
func runMigrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts, err := parseFlags(args, cfg.DBConnStr, os.Stderr)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", opts.dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	return migrate(context.Background(), db, opts)
}

// migrate runs the requested action against an open database
func migrate(ctx context.Context, db *sql.DB, opts options) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := migrations.New(db)
	list := migrations.All()

	switch {
	case opts.rollback:
		if _, err := migrator.Rollback(ctx, list); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}

	case opts.status:
		if err := migrator.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		pending, err := migrator.Pending(ctx, list)
		if err != nil {
			return err
		}
		log.Printf("%d of %d migrations pending", len(pending), len(list))
		for _, mig := range pending {
			log.Printf("  %s", mig.Name)
		}

	default:
		n, err := migrator.Migrate(ctx, list)
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		log.Printf("%d migrations applied", n)
	}
	return nil
}

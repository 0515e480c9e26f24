// Package main is the entrypoint for the widget development host.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/morezero/widget-bridge/internal/config"
	"github.com/morezero/widget-bridge/internal/server"
	"github.com/morezero/widget-bridge/pkg/db"
)

const usage = `Usage: devhost [command]
       devhost serve              Start the dev host (NATS, HTTP, /ws).
       devhost migrate up         Run database migrations.
       devhost migrate status     Show whether the schema is applied.
       devhost ensure-db [name]   Create database if missing (default name: widget_host). Uses DATABASE_URL host/user.
       devhost clear              Truncate widget storage and outputs; schema is preserved.

Commands:
  serve           (default) Start the development host.
  migrate up      Run database migrations only (MIGRATION_PATH, else the built-in migrations).
  migrate status  Report whether the widget tables exist.
  ensure-db [name] Create database on same host as DATABASE_URL.
  clear           Truncate widget data; schema preserved.

Environment: COMMS_URL, BRIDGE_HOST_SUBJECT, BRIDGE_EVENT_SUBJECT, BRIDGE_MANIFEST_FILE,
DATABASE_URL (empty = in-memory storage), RUN_MIGRATIONS, HTTP_PORT, CONFIRM_DEFAULT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("devhost migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("devhost migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("devhost migrate status: %v", err)
			}
		default:
			log.Fatalf("devhost migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("devhost clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := db.DefaultDatabase
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("devhost ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("devhost: %v", err)
	}
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.SetupLogging()
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return server.Migrate(ctx, cfg, pool)
}

func runMigrateStatus() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	applied, err := db.SchemaApplied(ctx, pool)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if applied {
		fmt.Println("Schema applied.")
	} else {
		fmt.Println("Schema missing; run `devhost migrate up`.")
	}
	return nil
}

func runClear() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearAll(ctx, pool); err != nil {
		return fmt.Errorf("clear widget data: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	target, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), target)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", dbName)
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

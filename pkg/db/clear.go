package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAll truncates widget_storage and widget_outputs. The schema is kept.
func ClearAll(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing widget tables", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE widget_storage, widget_outputs`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Widget tables cleared", clearLogPrefix))
	return nil
}

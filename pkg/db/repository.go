package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for widget storage and outputs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// STORAGE OPERATIONS
// =========================================================================

// GetItem returns the stored item, or nil when the key is unset.
func (r *Repository) GetItem(ctx context.Context, widgetID, area, key string) (*StorageItem, error) {
	slog.Debug(fmt.Sprintf("%s - GetItem widget=%s area=%s key=%s", repoLogPrefix, widgetID, area, key))

	row := r.pool.QueryRow(ctx,
		`SELECT widget_id, area, key, value, created, modified
		 FROM widget_storage
		 WHERE widget_id = $1 AND area = $2 AND key = $3`, widgetID, area, key)

	var it StorageItem
	err := row.Scan(&it.WidgetID, &it.Area, &it.Key, &it.Value, &it.Created, &it.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan storage item failed: %w", repoLogPrefix, err)
	}
	return &it, nil
}

// SetItem inserts or replaces a value.
func (r *Repository) SetItem(ctx context.Context, widgetID, area, key string, value json.RawMessage) error {
	slog.Debug(fmt.Sprintf("%s - SetItem widget=%s area=%s key=%s", repoLogPrefix, widgetID, area, key))

	_, err := r.pool.Exec(ctx,
		`INSERT INTO widget_storage (widget_id, area, key, value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (widget_id, area, key)
		 DO UPDATE SET value = EXCLUDED.value, modified = now()`,
		widgetID, area, key, []byte(value))
	if err != nil {
		return fmt.Errorf("%s - set item failed: %w", repoLogPrefix, err)
	}
	return nil
}

// RemoveItem deletes a key. Removing a missing key is not an error.
func (r *Repository) RemoveItem(ctx context.Context, widgetID, area, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM widget_storage WHERE widget_id = $1 AND area = $2 AND key = $3`,
		widgetID, area, key)
	if err != nil {
		return fmt.Errorf("%s - remove item failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ClearArea deletes every key of one widget area and returns how many were removed.
func (r *Repository) ClearArea(ctx context.Context, widgetID, area string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM widget_storage WHERE widget_id = $1 AND area = $2`, widgetID, area)
	if err != nil {
		return 0, fmt.Errorf("%s - clear area failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d keys widget=%s area=%s", repoLogPrefix, tag.RowsAffected(), widgetID, area))
	return tag.RowsAffected(), nil
}

// ListKeys returns the keys stored in one widget area, sorted.
func (r *Repository) ListKeys(ctx context.Context, widgetID, area string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key FROM widget_storage WHERE widget_id = $1 AND area = $2 ORDER BY key`, widgetID, area)
	if err != nil {
		return nil, fmt.Errorf("%s - list keys failed: %w", repoLogPrefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - scan keys failed: %w", repoLogPrefix, err)
	}
	return keys, nil
}

// =========================================================================
// OUTPUT OPERATIONS
// =========================================================================

// SetOutput records a widget's latest output and bumps its revision.
func (r *Repository) SetOutput(ctx context.Context, widgetID string, value json.RawMessage) (*Output, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO widget_outputs (widget_id, value)
		 VALUES ($1, $2)
		 ON CONFLICT (widget_id)
		 DO UPDATE SET value = EXCLUDED.value, revision = widget_outputs.revision + 1, modified = now()
		 RETURNING widget_id, value, revision, modified`,
		widgetID, []byte(value))
	return scanOutput(row)
}

// GetOutput returns a widget's latest output, or nil.
func (r *Repository) GetOutput(ctx context.Context, widgetID string) (*Output, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT widget_id, value, revision, modified FROM widget_outputs WHERE widget_id = $1`, widgetID)
	return scanOutput(row)
}

func scanOutput(row pgx.Row) (*Output, error) {
	var o Output
	err := row.Scan(&o.WidgetID, &o.Value, &o.Revision, &o.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan output failed: %w", repoLogPrefix, err)
	}
	return &o, nil
}

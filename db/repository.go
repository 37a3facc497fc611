package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"imagestudio/history"
)

// Repository provides persistence for image collections and settings.
// Collections are replaced wholesale on every write-through, which keeps
// the table an exact mirror of the bounded in-memory history.
//
// Repository implements history.Saver.
type Repository struct {
	db *Database
}

// NewRepository creates a repository over an open database.
func NewRepository(database *Database) (*Repository, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Repository{db: database}, nil
}

// ReplaceCollection atomically replaces the named collection with the
// given items, preserving their order. An empty or nil slice clears the
// collection.
func (r *Repository) ReplaceCollection(ctx context.Context, name string, items []history.GeneratedImage) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	conn := r.db.DB()
	if conn == nil {
		return fmt.Errorf("database connection is closed")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to clear collection %q: %w", name, err)
	}

	insert := `
		INSERT INTO images (collection, position, id, data, mime_type, prompt, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i, item := range items {
		_, err := tx.ExecContext(ctx, insert,
			name,
			i,
			item.ID.String(),
			item.Data,
			item.MimeType,
			item.Prompt,
			item.Width,
			item.Height,
		)
		if err != nil {
			return fmt.Errorf("failed to insert image %d into collection %q: %w", i, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection %q: %w", name, err)
	}
	return nil
}

// LoadCollection reads the named collection in stored order. Rows with an
// unparseable ID are skipped rather than failing the whole load.
func (r *Repository) LoadCollection(ctx context.Context, name string) ([]history.GeneratedImage, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn := r.db.DB()
	if conn == nil {
		return nil, fmt.Errorf("database connection is closed")
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, data, mime_type, prompt, width, height
		FROM images
		WHERE collection = ?
		ORDER BY position ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %q: %w", name, err)
	}
	defer rows.Close()

	var items []history.GeneratedImage
	for rows.Next() {
		var (
			idText string
			item   history.GeneratedImage
		)
		if err := rows.Scan(&idText, &item.Data, &item.MimeType, &item.Prompt, &item.Width, &item.Height); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		id, err := uuid.Parse(idText)
		if err != nil {
			continue
		}
		item.ID = id
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection rows: %w", err)
	}
	return items, nil
}

// GetSetting reads a persisted setting. A missing key returns the given
// default with no error.
func (r *Repository) GetSetting(ctx context.Context, key, defaultValue string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("setting key is required")
	}

	conn := r.db.DB()
	if conn == nil {
		return "", fmt.Errorf("database connection is closed")
	}

	var value string
	err := conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a persisted setting.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}

	conn := r.db.DB()
	if conn == nil {
		return fmt.Errorf("database connection is closed")
	}

	_, err := conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

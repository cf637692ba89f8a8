package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrSettingNotFound means the settings key has never been written.
var ErrSettingNotFound = errors.New("setting not found")

// Well-known settings keys.
const (
	SettingLogChannel = "log_channel_id"
)

// GetSetting reads an operator setting by key.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value
		FROM settings
		WHERE key = $1
	`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}

	return value, nil
}

// SetSetting writes an operator setting, replacing any previous value.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

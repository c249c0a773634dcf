package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

// SettingsRepo persists the one-per-account settings row.
type SettingsRepo struct{ db *sql.DB }

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the settings for accountID or ErrNotFound.
func (r *SettingsRepo) Get(ctx context.Context, accountID uint64) (model.Settings, error) {
	var s model.Settings
	err := r.db.QueryRowContext(ctx,
		"SELECT id, account_id, theme, directory_credential, logo, updated_at FROM settings WHERE account_id=? LIMIT 1",
		accountID).Scan(&s.ID, &s.AccountID, &s.Theme, &s.DirectoryCredential, &s.Logo, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// Ensure creates the default settings row for accountID if it is missing.
// Concurrent callers are safe: the unique account_id key turns the losing
// insert into a no-op.
func (r *SettingsRepo) Ensure(ctx context.Context, accountID uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO settings (account_id, theme, directory_credential, logo, updated_at) VALUES (?,?,?,?,?) ON DUPLICATE KEY UPDATE account_id=account_id",
		accountID, model.ThemeLight, "", "", at)
	return err
}

// GetOrCreate returns the account's settings, creating defaults first when
// no row exists yet.
func (r *SettingsRepo) GetOrCreate(ctx context.Context, accountID uint64, at time.Time) (model.Settings, error) {
	s, err := r.Get(ctx, accountID)
	if !errors.Is(err, ErrNotFound) {
		return s, err
	}
	if err := r.Ensure(ctx, accountID, at); err != nil {
		return s, err
	}
	return r.Get(ctx, accountID)
}

// Update writes theme, directory credential and logo.
func (r *SettingsRepo) Update(ctx context.Context, s *model.Settings) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE settings SET theme=?, directory_credential=?, logo=?, updated_at=? WHERE account_id=?",
		s.Theme, s.DirectoryCredential, s.Logo, s.UpdatedAt, s.AccountID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

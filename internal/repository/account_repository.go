package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

// AccountRepo persists operator accounts.
type AccountRepo struct{ db *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = "id, username, callsign, email, password_hash, role, is_enabled, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (model.Account, error) {
	var (
		a       model.Account
		enabled sql.NullBool
	)
	err := s.Scan(&a.ID, &a.Username, &a.Callsign, &a.Email, &a.PasswordHash, &a.Role, &enabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if enabled.Valid {
		a.Enabled = model.BoolPtr(enabled.Bool)
	}
	return a, nil
}

func nullableBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccount(ctx context.Context, db execer, a *model.Account) error {
	a.Callsign = strings.ToUpper(a.Callsign)
	a.Email = strings.ToLower(a.Email)
	res, err := db.ExecContext(ctx,
		"INSERT INTO accounts (username, callsign, email, password_hash, role, is_enabled, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)",
		a.Username, a.Callsign, a.Email, a.PasswordHash, a.Role, nullableBool(a.Enabled), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// Create inserts the account and assigns its ID. Callsign is stored
// upper-cased and email lower-cased.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	return insertAccount(ctx, r.db, a)
}

const (
	registrationLock        = "netcontrol.accounts.registration"
	registrationLockTimeout = 10 // seconds
)

// CreateRegistered inserts a self-registered account under a named lock.
// When the table is empty, first is applied to a before the insert, so
// concurrent registrations on an empty table promote exactly one account.
func (r *AccountRepo) CreateRegistered(ctx context.Context, a *model.Account, first func(*model.Account)) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("registration conn: %w", err)
	}
	defer conn.Close()

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", registrationLock, registrationLockTimeout).Scan(&got); err != nil {
		return fmt.Errorf("acquire registration lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return ErrLockTimeout
	}
	defer func() {
		var released sql.NullInt64
		// the connection goes back to the pool, so the lock must be released explicitly
		_ = conn.QueryRowContext(context.WithoutCancel(ctx), "SELECT RELEASE_LOCK(?)", registrationLock).Scan(&released)
	}()

	var n int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if n == 0 && first != nil {
		first(a)
	}
	return insertAccount(ctx, conn, a)
}

func (r *AccountRepo) getOne(ctx context.Context, where string, arg any) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	return r.getOne(ctx, "id=?", id)
}

// GetByUsername fetches an account by username. The column collation makes
// the comparison case-insensitive.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.getOne(ctx, "username=?", username)
}

// FindConflict reports which of username, callsign or email is already used
// by an account other than excludeID. It returns "" when all are free.
func (r *AccountRepo) FindConflict(ctx context.Context, username, callsign, email string, excludeID uint64) (string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT username, callsign, email FROM accounts WHERE (username=? OR callsign=? OR email=?) AND id<>?",
		username, strings.ToUpper(callsign), strings.ToLower(email), excludeID)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var u, c, e string
		if err := rows.Scan(&u, &c, &e); err != nil {
			return "", err
		}
		switch {
		case strings.EqualFold(u, username):
			return "username", nil
		case strings.EqualFold(c, callsign):
			return "callsign", nil
		case strings.EqualFold(e, email):
			return "email", nil
		}
	}
	return "", rows.Err()
}

// List returns every account ordered by creation.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update writes profile, role and enablement fields.
func (r *AccountRepo) Update(ctx context.Context, a *model.Account) error {
	a.Callsign = strings.ToUpper(a.Callsign)
	a.Email = strings.ToLower(a.Email)
	res, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET username=?, callsign=?, email=?, role=?, is_enabled=?, updated_at=? WHERE id=?",
		a.Username, a.Callsign, a.Email, a.Role, nullableBool(a.Enabled), a.UpdatedAt, a.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res)
}

// UpdatePassword replaces the stored hash.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uint64, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, "UPDATE accounts SET password_hash=?, updated_at=? WHERE id=?", hash, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes the account; its settings and refresh tokens go with it
// through ON DELETE CASCADE.
func (r *AccountRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// requireAffected maps a zero-row UPDATE/DELETE to ErrNotFound. The DSN sets
// clientFoundRows, so an UPDATE that leaves values unchanged still counts.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

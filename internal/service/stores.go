package service

import (
	"context"
	"strings"
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/repository"
)

// AccountStore is implemented by repository.AccountRepo.
type AccountStore interface {
	Create(ctx context.Context, a *model.Account) error
	GetByID(ctx context.Context, id uint64) (model.Account, error)
	GetByUsername(ctx context.Context, username string) (model.Account, error)
	CreateRegistered(ctx context.Context, a *model.Account, first func(*model.Account)) error
	FindConflict(ctx context.Context, username, callsign, email string, excludeID uint64) (string, error)
	List(ctx context.Context) ([]model.Account, error)
	Update(ctx context.Context, a *model.Account) error
	UpdatePassword(ctx context.Context, id uint64, hash string, at time.Time) error
	Delete(ctx context.Context, id uint64) error
}

// SettingsStore is implemented by repository.SettingsRepo.
type SettingsStore interface {
	Ensure(ctx context.Context, accountID uint64, at time.Time) error
	GetOrCreate(ctx context.Context, accountID uint64, at time.Time) (model.Settings, error)
	Update(ctx context.Context, s *model.Settings) error
}

// TokenStore is implemented by repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID uint64) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// NetOperationStore is implemented by repository.NetOperationRepo.
type NetOperationStore interface {
	Create(ctx context.Context, op *model.NetOperation) error
	GetByID(ctx context.Context, id uint64) (*model.NetOperation, error)
	List(ctx context.Context, f repository.NetOperationFilter) ([]model.NetOperation, error)
	UpdateFields(ctx context.Context, op *model.NetOperation) error
	Start(ctx context.Context, id uint64, at time.Time) error
	Complete(ctx context.Context, id uint64, at time.Time) error
	AppendCheckIn(ctx context.Context, id uint64, ci model.CheckIn, at time.Time) error
	MutateCheckIns(ctx context.Context, id uint64, at time.Time, fn func(op *model.NetOperation) error) (*model.NetOperation, error)
	Delete(ctx context.Context, id uint64) error
}

// now is the default clock: UTC truncated to the millisecond precision the
// DATETIME(3) columns keep.
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// unsafeChars are stripped from free text before it is stored or rendered.
const unsafeChars = `<>"'%;()&+`

// Sanitize trims s and removes the characters in unsafeChars.
func Sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) {
			return -1
		}
		return r
	}, s))
}

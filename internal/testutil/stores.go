// Package testutil provides in-memory stores that mirror the MySQL
// repositories closely enough for service and handler tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/repository"
)

// Accounts is an in-memory AccountStore.
type Accounts struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.Account
}

func NewAccounts() *Accounts { return &Accounts{byID: map[uint64]model.Account{}} }

func (s *Accounts) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(a)
}

// CreateRegistered applies first when the store is empty, atomically with
// the insert.
func (s *Accounts) CreateRegistered(_ context.Context, a *model.Account, first func(*model.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byID) == 0 && first != nil {
		first(a)
	}
	return s.insertLocked(a)
}

func (s *Accounts) insertLocked(a *model.Account) error {
	a.Callsign = strings.ToUpper(a.Callsign)
	a.Email = strings.ToLower(a.Email)
	if s.conflict(a.Username, a.Callsign, a.Email, 0) != "" {
		return repository.ErrDuplicate
	}
	s.nextID++
	a.ID = s.nextID
	s.byID[a.ID] = *a
	return nil
}

func (s *Accounts) GetByID(_ context.Context, id uint64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return a, repository.ErrNotFound
	}
	return a, nil
}

func (s *Accounts) GetByUsername(_ context.Context, username string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (s *Accounts) conflict(username, callsign, email string, excludeID uint64) string {
	for _, a := range s.byID {
		if a.ID == excludeID {
			continue
		}
		switch {
		case strings.EqualFold(a.Username, username):
			return "username"
		case strings.EqualFold(a.Callsign, callsign):
			return "callsign"
		case strings.EqualFold(a.Email, email):
			return "email"
		}
	}
	return ""
}

func (s *Accounts) FindConflict(_ context.Context, username, callsign, email string, excludeID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict(username, callsign, email, excludeID), nil
}

func (s *Accounts) List(context.Context) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Accounts) Update(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		return repository.ErrNotFound
	}
	if s.conflict(a.Username, a.Callsign, a.Email, a.ID) != "" {
		return repository.ErrDuplicate
	}
	s.byID[a.ID] = *a
	return nil
}

func (s *Accounts) UpdatePassword(_ context.Context, id uint64, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash, a.UpdatedAt = hash, at
	s.byID[id] = a
	return nil
}

func (s *Accounts) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// Put stores a as-is, for seeding legacy rows such as a nil Enabled flag.
func (s *Accounts) Put(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID > s.nextID {
		s.nextID = a.ID
	}
	s.byID[a.ID] = a
}

// Settings is an in-memory SettingsStore.
type Settings struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.Settings
}

func NewSettings() *Settings { return &Settings{rows: map[uint64]model.Settings{}} }

func (s *Settings) Ensure(_ context.Context, accountID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[accountID]; !ok {
		s.nextID++
		s.rows[accountID] = model.Settings{ID: s.nextID, AccountID: accountID, Theme: model.ThemeLight, UpdatedAt: at}
	}
	return nil
}

func (s *Settings) GetOrCreate(ctx context.Context, accountID uint64, at time.Time) (model.Settings, error) {
	if err := s.Ensure(ctx, accountID, at); err != nil {
		return model.Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[accountID], nil
}

func (s *Settings) Update(_ context.Context, st *model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[st.AccountID]; !ok {
		return repository.ErrNotFound
	}
	s.rows[st.AccountID] = *st
	return nil
}

// Has reports whether a settings row exists for accountID.
func (s *Settings) Has(accountID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[accountID]
	return ok
}

type tokenRow struct {
	accountID uint64
	expires   time.Time
	revoked   *time.Time
}

// Tokens is an in-memory TokenStore.
type Tokens struct {
	mu   sync.Mutex
	rows map[string]*tokenRow
}

func NewTokens() *Tokens { return &Tokens{rows: map[string]*tokenRow{}} }

func (s *Tokens) StoreRefresh(_ context.Context, accountID uint64, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[hash] = &tokenRow{accountID: accountID, expires: exp}
	return nil
}

func (s *Tokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[hash]
	if !ok || r.revoked != nil || time.Now().After(r.expires) {
		return 0, repository.ErrNotFound
	}
	return r.accountID, nil
}

func (s *Tokens) RevokeByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[hash]; ok && r.revoked == nil {
		now := time.Now()
		r.revoked = &now
	}
	return nil
}

func (s *Tokens) RevokeAllForAccount(_ context.Context, accountID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, r := range s.rows {
		if r.accountID == accountID && r.revoked == nil {
			r.revoked = &now
		}
	}
	return nil
}

func (s *Tokens) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, r := range s.rows {
		if r.expires.Before(cutoff) || (r.revoked != nil && r.revoked.Before(cutoff)) {
			delete(s.rows, h)
			n++
		}
	}
	return n, nil
}

// Active counts non-revoked tokens of an account.
func (s *Tokens) Active(accountID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.accountID == accountID && r.revoked == nil {
			n++
		}
	}
	return n
}

// NetOperations is an in-memory NetOperationStore. FailCreateAfter makes
// Create fail once that many records exist, to exercise partial series.
type NetOperations struct {
	mu              sync.Mutex
	nextID          uint64
	rows            map[uint64]model.NetOperation
	FailCreateAfter int
}

func NewNetOperations() *NetOperations { return &NetOperations{rows: map[uint64]model.NetOperation{}} }

func clone(op model.NetOperation) model.NetOperation {
	op.CheckIns = append([]model.CheckIn{}, op.CheckIns...)
	if op.EndTime != nil {
		t := *op.EndTime
		op.EndTime = &t
	}
	return op
}

func (s *NetOperations) Create(_ context.Context, op *model.NetOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateAfter > 0 && len(s.rows) >= s.FailCreateAfter {
		return context.DeadlineExceeded
	}
	s.nextID++
	op.ID = s.nextID
	if op.CheckIns == nil {
		op.CheckIns = []model.CheckIn{}
	}
	s.rows[op.ID] = clone(*op)
	return nil
}

func (s *NetOperations) GetByID(_ context.Context, id uint64) (*model.NetOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	op = clone(op)
	return &op, nil
}

func (s *NetOperations) List(_ context.Context, f repository.NetOperationFilter) ([]model.NetOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.NetOperation{}
	for _, op := range s.rows {
		if f.OperatorID != nil && op.OperatorID != *f.OperatorID {
			continue
		}
		if f.From != nil && op.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && op.StartTime.After(*f.To) {
			continue
		}
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		out = append(out, clone(op))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *NetOperations) UpdateFields(_ context.Context, op *model.NetOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[op.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.NetName, cur.Frequency, cur.Notes, cur.UpdatedAt = op.NetName, op.Frequency, op.Notes, op.UpdatedAt
	s.rows[op.ID] = cur
	return nil
}

func (s *NetOperations) transition(id uint64, from string, fn func(op *model.NetOperation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok || cur.Status != from {
		return repository.ErrStateChanged
	}
	fn(&cur)
	s.rows[id] = cur
	return nil
}

func (s *NetOperations) Start(_ context.Context, id uint64, at time.Time) error {
	return s.transition(id, model.StatusScheduled, func(op *model.NetOperation) {
		op.Status, op.StartTime, op.IsScheduled, op.UpdatedAt = model.StatusActive, at, false, at
	})
}

func (s *NetOperations) Complete(_ context.Context, id uint64, at time.Time) error {
	return s.transition(id, model.StatusActive, func(op *model.NetOperation) {
		op.Status, op.EndTime, op.UpdatedAt = model.StatusCompleted, &at, at
	})
}

func (s *NetOperations) AppendCheckIn(_ context.Context, id uint64, ci model.CheckIn, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	cur.CheckIns = append(cur.CheckIns, ci)
	cur.UpdatedAt = at
	s.rows[id] = cur
	return nil
}

func (s *NetOperations) MutateCheckIns(_ context.Context, id uint64, at time.Time, fn func(op *model.NetOperation) error) (*model.NetOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	work := clone(cur)
	if err := fn(&work); err != nil {
		return nil, err
	}
	cur.CheckIns = work.CheckIns
	cur.UpdatedAt = at
	s.rows[id] = clone(cur)
	return &cur, nil
}

func (s *NetOperations) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// Len returns the number of stored operations.
func (s *NetOperations) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/repository"
	"github.com/netcontrolapp/netcontrol/internal/utils"
)

const minPasswordLen = 6

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)
	callsignPattern = regexp.MustCompile(`^[A-Z0-9/]{3,10}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// AccountService manages registration, sign-in and admin account changes.
type AccountService struct {
	accounts   AccountStore
	settings   SettingsStore
	tokens     TokenStore
	bcryptCost int
	log        *zap.Logger
	now        func() time.Time
}

func NewAccountService(accounts AccountStore, settings SettingsStore, tokens TokenStore, bcryptCost int, log *zap.Logger) *AccountService {
	if accounts == nil || settings == nil || tokens == nil {
		panic("nil store passed to NewAccountService")
	}
	return &AccountService{accounts: accounts, settings: settings, tokens: tokens, bcryptCost: bcryptCost, log: log, now: now}
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Username string
	Callsign string
	Email    string
	Password string
}

func normalizeCallsign(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// normalizeIdentity trims and case-folds identity fields and checks their
// format.
func normalizeIdentity(username, callsign, email string) (string, string, string, error) {
	username = strings.TrimSpace(username)
	callsign = normalizeCallsign(callsign)
	email = strings.ToLower(strings.TrimSpace(email))

	var fields []FieldError
	if !usernamePattern.MatchString(username) {
		fields = append(fields, FieldError{Field: "username", Message: "must be 3-30 letters, digits or underscores"})
	}
	if !callsignPattern.MatchString(callsign) {
		fields = append(fields, FieldError{Field: "callsign", Message: "must be 3-10 letters, digits or '/'"})
	}
	if !emailPattern.MatchString(email) {
		fields = append(fields, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(fields) > 0 {
		return "", "", "", &ValidationError{Fields: fields}
	}
	return username, callsign, email, nil
}

func (s *AccountService) checkUnique(ctx context.Context, username, callsign, email string, excludeID uint64) error {
	field, err := s.accounts.FindConflict(ctx, username, callsign, email, excludeID)
	if err != nil {
		return err
	}
	if field != "" {
		return newError(ErrConflict, field+" already registered")
	}
	return nil
}

// Register creates an account. The very first account becomes an enabled
// admin; every later one is an operator awaiting approval. The store decides
// "first" atomically with the insert.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (model.Account, error) {
	username, callsign, email, err := normalizeIdentity(in.Username, in.Callsign, in.Email)
	if err != nil {
		return model.Account{}, err
	}
	if len(in.Password) < minPasswordLen {
		return model.Account{}, Invalid("password", "must be at least 6 characters")
	}
	if err := s.checkUnique(ctx, username, callsign, email, 0); err != nil {
		return model.Account{}, err
	}

	a, err := s.newAccount(username, callsign, email, in.Password, model.RoleOperator, false)
	if err != nil {
		return model.Account{}, err
	}
	err = s.accounts.CreateRegistered(ctx, &a, func(a *model.Account) {
		a.Role, a.Enabled = model.RoleAdmin, model.BoolPtr(true)
	})
	return s.created(ctx, a, err)
}

func (s *AccountService) newAccount(username, callsign, email, password, role string, enabled bool) (model.Account, error) {
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return model.Account{}, err
	}
	at := s.now()
	return model.Account{
		Username:     username,
		Callsign:     callsign,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Enabled:      model.BoolPtr(enabled),
		CreatedAt:    at,
		UpdatedAt:    at,
	}, nil
}

// created finishes an insert: it maps store errors and creates the default
// settings row.
func (s *AccountService) created(ctx context.Context, a model.Account, err error) (model.Account, error) {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return model.Account{}, newError(ErrConflict, "username, callsign or email already registered")
	case errors.Is(err, repository.ErrLockTimeout):
		return model.Account{}, newError(ErrPrecondition, "registration is busy, please retry")
	case err != nil:
		return model.Account{}, err
	}
	if err := s.settings.Ensure(ctx, a.ID, a.CreatedAt); err != nil {
		// settings are created lazily on first read anyway
		s.log.Warn("create default settings failed", zap.Uint64("account_id", a.ID), zap.Error(err))
	}
	s.log.Info("account created", zap.Uint64("account_id", a.ID), zap.String("callsign", a.Callsign), zap.String("role", a.Role))
	return a, nil
}

// Authenticate checks username and password. A correct password on a
// disabled account yields ErrPendingApproval rather than ErrUnauthenticated.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (model.Account, error) {
	a, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, newError(ErrUnauthenticated, "invalid credentials")
	}
	if err != nil {
		return model.Account{}, err
	}
	if !utils.VerifyPassword(a.PasswordHash, password) {
		return model.Account{}, newError(ErrUnauthenticated, "invalid credentials")
	}
	if !a.IsEnabled() {
		return model.Account{}, newError(ErrPendingApproval, "account pending approval")
	}
	return a, nil
}

// Resolve maps an authenticated subject to its current account.
func (s *AccountService) Resolve(ctx context.Context, id uint64) (model.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, newError(ErrUnauthenticated, "invalid credentials")
	}
	if err != nil {
		return model.Account{}, err
	}
	if !a.IsEnabled() {
		return model.Account{}, newError(ErrPendingApproval, "account pending approval")
	}
	return a, nil
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id uint64) (model.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, newError(ErrNotFound, "account not found")
	}
	return a, err
}

// List returns all accounts.
func (s *AccountService) List(ctx context.Context) ([]model.Account, error) {
	return s.accounts.List(ctx)
}

// ChangePassword lets an account holder replace their own password.
func (s *AccountService) ChangePassword(ctx context.Context, id uint64, current, next string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(a.PasswordHash, current) {
		return Invalid("currentPassword", "is incorrect")
	}
	return s.setPassword(ctx, id, next)
}

func (s *AccountService) setPassword(ctx context.Context, id uint64, password string) error {
	if len(password) < minPasswordLen {
		return Invalid("newPassword", "must be at least 6 characters")
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "account not found")
		}
		return err
	}
	return s.tokens.RevokeAllForAccount(ctx, id)
}

// CreateAccountInput is an admin-initiated account creation. Role defaults
// to operator and Enabled to true.
type CreateAccountInput struct {
	Username string
	Callsign string
	Email    string
	Password string
	Role     string
	Enabled  *bool
}

// Create adds an account on behalf of an admin.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (model.Account, error) {
	username, callsign, email, err := normalizeIdentity(in.Username, in.Callsign, in.Email)
	if err != nil {
		return model.Account{}, err
	}
	if len(in.Password) < minPasswordLen {
		return model.Account{}, Invalid("password", "must be at least 6 characters")
	}
	role := in.Role
	if role == "" {
		role = model.RoleOperator
	}
	if !validRole(role) {
		return model.Account{}, Invalid("role", "must be operator or admin")
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	if err := s.checkUnique(ctx, username, callsign, email, 0); err != nil {
		return model.Account{}, err
	}
	a, err := s.newAccount(username, callsign, email, in.Password, role, enabled)
	if err != nil {
		return model.Account{}, err
	}
	return s.created(ctx, a, s.accounts.Create(ctx, &a))
}

func validRole(r string) bool { return r == model.RoleOperator || r == model.RoleAdmin }

// UpdateProfileInput holds optional identity changes.
type UpdateProfileInput struct {
	Username *string
	Callsign *string
	Email    *string
}

// UpdateProfile edits identity fields of an account. Historical net
// operations keep the callsign they were created with.
func (s *AccountService) UpdateProfile(ctx context.Context, id uint64, in UpdateProfileInput) (model.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return a, err
	}
	username, callsign, email := a.Username, a.Callsign, a.Email
	if in.Username != nil {
		username = *in.Username
	}
	if in.Callsign != nil {
		callsign = *in.Callsign
	}
	if in.Email != nil {
		email = *in.Email
	}
	if a.Username, a.Callsign, a.Email, err = normalizeIdentity(username, callsign, email); err != nil {
		return model.Account{}, err
	}
	if err := s.checkUnique(ctx, a.Username, a.Callsign, a.Email, a.ID); err != nil {
		return model.Account{}, err
	}
	return a, s.save(ctx, &a)
}

func (s *AccountService) save(ctx context.Context, a *model.Account) error {
	a.UpdatedAt = s.now()
	err := s.accounts.Update(ctx, a)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return newError(ErrConflict, "username, callsign or email already registered")
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "account not found")
	}
	return err
}

// Delete removes an account and its settings. Admins cannot delete
// themselves.
func (s *AccountService) Delete(ctx context.Context, actorID, id uint64) error {
	if actorID == id {
		return newError(ErrForbidden, "cannot delete your own account")
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "account not found")
		}
		return err
	}
	s.log.Info("account deleted", zap.Uint64("account_id", id), zap.Uint64("by", actorID))
	return nil
}

// ResetPassword sets a new password for any account and signs it out
// everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, id uint64, password string) error {
	return s.setPassword(ctx, id, password)
}

// SetRole changes an account's role. Admins cannot change their own role.
func (s *AccountService) SetRole(ctx context.Context, actorID, id uint64, role string) (model.Account, error) {
	if !validRole(role) {
		return model.Account{}, Invalid("role", "must be operator or admin")
	}
	if actorID == id {
		return model.Account{}, newError(ErrForbidden, "cannot change your own role")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return a, err
	}
	a.Role = role
	return a, s.save(ctx, &a)
}

// SetEnabled approves or suspends an account. Disabling revokes its refresh
// tokens; admins cannot disable themselves.
func (s *AccountService) SetEnabled(ctx context.Context, actorID, id uint64, enabled bool) (model.Account, error) {
	if actorID == id && !enabled {
		return model.Account{}, newError(ErrForbidden, "cannot disable your own account")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return a, err
	}
	a.Enabled = model.BoolPtr(enabled)
	if err := s.save(ctx, &a); err != nil {
		return a, err
	}
	if !enabled {
		if err := s.tokens.RevokeAllForAccount(ctx, id); err != nil {
			s.log.Warn("revoke tokens on disable failed", zap.Uint64("account_id", id), zap.Error(err))
		}
	}
	return a, nil
}

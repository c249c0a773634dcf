package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/repository"
	"github.com/netcontrolapp/netcontrol/internal/utils"
)

// Session is an issued access/refresh token pair. The raw refresh token is
// only ever returned here; the store keeps its hash.
type Session struct {
	Account    model.Account
	Access     utils.AccessToken
	Refresh    utils.RefreshToken
	HasRefresh bool
}

// SessionService issues and rotates tokens for enabled accounts.
type SessionService struct {
	accounts   *AccountService
	tokens     TokenStore
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *zap.Logger
}

func NewSessionService(accounts *AccountService, tokens TokenStore, secret string, accessTTL, refreshTTL time.Duration, log *zap.Logger) *SessionService {
	if accounts == nil || tokens == nil {
		panic("nil dependency passed to NewSessionService")
	}
	return &SessionService{accounts: accounts, tokens: tokens, secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, log: log}
}

// Issue signs a new access token and stores a new refresh token for a.
func (s *SessionService) Issue(ctx context.Context, a model.Account) (Session, error) {
	access, err := utils.NewAccessToken(s.secret, a.ID, a.Role, s.accessTTL)
	if err != nil {
		return Session{}, err
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTL)
	if err != nil {
		return Session{}, err
	}
	if err := s.tokens.StoreRefresh(ctx, a.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, err
	}
	return Session{Account: a, Access: access, Refresh: refresh, HasRefresh: true}, nil
}

// Login authenticates and issues a session.
func (s *SessionService) Login(ctx context.Context, username, password string) (Session, error) {
	a, err := s.accounts.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("login", zap.Uint64("account_id", a.ID), zap.String("callsign", a.Callsign))
	return s.Issue(ctx, a)
}

func invalidRefresh() error { return newError(ErrUnauthenticated, "invalid refresh token") }

// owner validates a raw refresh token and resolves its account. Disabled
// accounts cannot refresh.
func (s *SessionService) owner(ctx context.Context, raw string) (string, model.Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", model.Account{}, Invalid("refresh_token", "is required")
	}
	hash := utils.HashRefreshRaw(raw)
	id, err := s.tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return "", model.Account{}, invalidRefresh()
	}
	if err != nil {
		return "", model.Account{}, err
	}
	a, err := s.accounts.Resolve(ctx, id)
	if errors.Is(err, ErrUnauthenticated) {
		return "", model.Account{}, invalidRefresh()
	}
	return hash, a, err
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// is issued.
func (s *SessionService) Refresh(ctx context.Context, raw string) (Session, error) {
	hash, a, err := s.owner(ctx, raw)
	if err != nil {
		return Session{}, err
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return Session{}, err
	}
	return s.Issue(ctx, a)
}

// RefreshAccess issues a new access token and leaves the refresh token in
// place.
func (s *SessionService) RefreshAccess(ctx context.Context, raw string) (Session, error) {
	_, a, err := s.owner(ctx, raw)
	if err != nil {
		return Session{}, err
	}
	access, err := utils.NewAccessToken(s.secret, a.ID, a.Role, s.accessTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: a, Access: access}, nil
}

// Logout revokes one refresh token.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Invalid("refresh_token", "is required")
	}
	hash := utils.HashRefreshRaw(raw)
	if _, err := s.tokens.ValidateRefresh(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalidRefresh()
		}
		return err
	}
	return s.tokens.RevokeByHash(ctx, hash)
}

// LogoutAll revokes every refresh token of an account.
func (s *SessionService) LogoutAll(ctx context.Context, accountID uint64) error {
	return s.tokens.RevokeAllForAccount(ctx, accountID)
}

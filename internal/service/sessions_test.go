package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSessions(f accountFixture) *SessionService {
	return NewSessionService(f.svc, f.tokens, "test-secret", 15*time.Minute, 24*time.Hour, zap.NewNop())
}

func TestLogin_IssuesPair(t *testing.T) {
	f := newAccountFixture()
	a := register(t, f.svc, "alice", "w1aw")
	sessions := newSessions(f)

	s, err := sessions.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, s.Account.ID)
	assert.NotEmpty(t, s.Access.Token)
	assert.True(t, s.HasRefresh)
	assert.Equal(t, 1, f.tokens.Active(a.ID))
}

func TestLogin_PendingApproval(t *testing.T) {
	f := newAccountFixture()
	register(t, f.svc, "alice", "w1aw")
	register(t, f.svc, "bob", "k2bob")

	_, err := newSessions(f).Login(context.Background(), "bob", "secret1")
	assert.True(t, errors.Is(err, ErrPendingApproval))
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAccountFixture()
	a := register(t, f.svc, "alice", "w1aw")
	sessions := newSessions(f)
	ctx := context.Background()

	first, err := sessions.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	second, err := sessions.Refresh(ctx, first.Refresh.Raw)
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh.Raw, second.Refresh.Raw)
	assert.Equal(t, 1, f.tokens.Active(a.ID))

	_, err = sessions.Refresh(ctx, first.Refresh.Raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestRefreshAccess_KeepsRefreshToken(t *testing.T) {
	f := newAccountFixture()
	register(t, f.svc, "alice", "w1aw")
	sessions := newSessions(f)
	ctx := context.Background()

	s, err := sessions.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	again, err := sessions.RefreshAccess(ctx, s.Refresh.Raw)
	require.NoError(t, err)
	assert.False(t, again.HasRefresh)
	assert.NotEmpty(t, again.Access.Token)

	_, err = sessions.RefreshAccess(ctx, s.Refresh.Raw)
	assert.NoError(t, err)
}

func TestRefresh_DisabledAccountRejected(t *testing.T) {
	f := newAccountFixture()
	admin := register(t, f.svc, "alice", "w1aw")
	bob := register(t, f.svc, "bob", "k2bob")
	ctx := context.Background()
	_, err := f.svc.SetEnabled(ctx, admin.ID, bob.ID, true)
	require.NoError(t, err)

	sessions := newSessions(f)
	s, err := sessions.Login(ctx, "bob", "secret1")
	require.NoError(t, err)

	_, err = f.svc.SetEnabled(ctx, admin.ID, bob.ID, false)
	require.NoError(t, err)
	_, err = sessions.RefreshAccess(ctx, s.Refresh.Raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestLogout(t *testing.T) {
	f := newAccountFixture()
	a := register(t, f.svc, "alice", "w1aw")
	sessions := newSessions(f)
	ctx := context.Background()

	s, err := sessions.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NoError(t, sessions.Logout(ctx, s.Refresh.Raw))
	assert.Equal(t, 0, f.tokens.Active(a.ID))

	assert.True(t, errors.Is(sessions.Logout(ctx, s.Refresh.Raw), ErrUnauthenticated))
	assert.True(t, errors.Is(sessions.Logout(ctx, "  "), ErrValidation))

	_, err = sessions.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	_, err = sessions.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NoError(t, sessions.LogoutAll(ctx, a.ID))
	assert.Equal(t, 0, f.tokens.Active(a.ID))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/repository"
	"github.com/netcontrolapp/netcontrol/internal/testutil"
)

type accountFixture struct {
	svc      *AccountService
	accounts *testutil.Accounts
	settings *testutil.Settings
	tokens   *testutil.Tokens
}

func newAccountFixture() accountFixture {
	f := accountFixture{accounts: testutil.NewAccounts(), settings: testutil.NewSettings(), tokens: testutil.NewTokens()}
	f.svc = NewAccountService(f.accounts, f.settings, f.tokens, bcrypt.MinCost, zap.NewNop())
	return f
}

func register(t *testing.T, svc *AccountService, username, callsign string) model.Account {
	t.Helper()
	a, err := svc.Register(context.Background(), RegisterInput{
		Username: username, Callsign: callsign, Email: username + "@example.com", Password: "secret1",
	})
	require.NoError(t, err)
	return a
}

func TestRegister_FirstAccountBootstrapsAdmin(t *testing.T) {
	f := newAccountFixture()
	first := register(t, f.svc, "alice", "w1aw")
	second := register(t, f.svc, "bob", "k2abc")

	assert.Equal(t, model.RoleAdmin, first.Role)
	assert.True(t, first.IsEnabled())
	assert.Equal(t, "W1AW", first.Callsign)

	assert.Equal(t, model.RoleOperator, second.Role)
	assert.False(t, second.IsEnabled())
	assert.True(t, f.settings.Has(first.ID))
}

func TestRegister_ConcurrentFirstRegistrationsYieldOneAdmin(t *testing.T) {
	f := newAccountFixture()
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("op%d", i)
			_, errs[i] = f.svc.Register(context.Background(), RegisterInput{
				Username: name, Callsign: fmt.Sprintf("K%dABC", i), Email: name + "@example.com", Password: "secret1",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	all, err := f.accounts.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, n)
	admins := 0
	for _, a := range all {
		if a.Role == model.RoleAdmin {
			admins++
			assert.True(t, a.IsEnabled())
		} else {
			assert.False(t, a.IsEnabled())
		}
	}
	assert.Equal(t, 1, admins)
}

type busyAccounts struct{ *testutil.Accounts }

func (busyAccounts) CreateRegistered(context.Context, *model.Account, func(*model.Account)) error {
	return repository.ErrLockTimeout
}

func TestRegister_LockTimeoutIsRetryable(t *testing.T) {
	svc := NewAccountService(busyAccounts{testutil.NewAccounts()}, testutil.NewSettings(), testutil.NewTokens(), bcrypt.MinCost, zap.NewNop())
	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice", Callsign: "W1AW", Email: "alice@example.com", Password: "secret1",
	})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestRegister_DuplicateCallsignIgnoresCase(t *testing.T) {
	f := newAccountFixture()
	register(t, f.svc, "alice", "W1AW")
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "bob", Callsign: "w1aw", Email: "bob@example.com", Password: "secret1",
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, Message(err), "callsign")
}

func TestRegister_Validation(t *testing.T) {
	f := newAccountFixture()
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "a!", Callsign: "x", Email: "nope", Password: "secret1"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 3)

	_, err = f.svc.Register(context.Background(), RegisterInput{Username: "alice", Callsign: "W1AW", Email: "a@b.co", Password: "123"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	register(t, f.svc, "alice", "W1AW")
	bob := register(t, f.svc, "bob", "K2ABC")

	_, err := f.svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Authenticate(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.Authenticate(ctx, "bob", "secret1")
	assert.ErrorIs(t, err, ErrPendingApproval)

	_, err = f.svc.SetEnabled(ctx, 1, bob.ID, true)
	require.NoError(t, err)
	a, err := f.svc.Authenticate(ctx, "bob", "secret1")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, a.ID)
}

func TestResolve_LegacyAccountWithoutFlagIsEnabled(t *testing.T) {
	f := newAccountFixture()
	f.accounts.Put(model.Account{ID: 7, Username: "legacy", Callsign: "N0OLD", Role: model.RoleOperator})
	a, err := f.svc.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "N0OLD", a.Callsign)

	_, err = f.svc.Resolve(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSetEnabled_ToggleTwiceRestoresLogin(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	admin := register(t, f.svc, "alice", "W1AW")
	bob := register(t, f.svc, "bob", "K2ABC")
	_, err := f.svc.SetEnabled(ctx, admin.ID, bob.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.tokens.StoreRefresh(ctx, bob.ID, "h", f.svc.now().Add(24*time.Hour)))

	_, err = f.svc.SetEnabled(ctx, admin.ID, bob.ID, false)
	require.NoError(t, err)
	assert.Zero(t, f.tokens.Active(bob.ID))
	_, err = f.svc.Authenticate(ctx, "bob", "secret1")
	assert.ErrorIs(t, err, ErrPendingApproval)

	_, err = f.svc.SetEnabled(ctx, admin.ID, bob.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, "bob", "secret1")
	assert.NoError(t, err)
}

func TestAdminSelfProtection(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	admin := register(t, f.svc, "alice", "W1AW")

	_, err := f.svc.SetEnabled(ctx, admin.ID, admin.ID, false)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.SetRole(ctx, admin.ID, admin.ID, model.RoleOperator)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, admin.ID, admin.ID), ErrForbidden)
}

func TestSetRoleAndDelete(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	admin := register(t, f.svc, "alice", "W1AW")
	bob := register(t, f.svc, "bob", "K2ABC")

	_, err := f.svc.SetRole(ctx, admin.ID, bob.ID, "root")
	assert.ErrorIs(t, err, ErrValidation)
	a, err := f.svc.SetRole(ctx, admin.ID, bob.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, a.IsAdmin())

	require.NoError(t, f.svc.Delete(ctx, admin.ID, bob.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, admin.ID, bob.ID), ErrNotFound)
}

func TestCreateByAdminDefaultsEnabledOperator(t *testing.T) {
	f := newAccountFixture()
	register(t, f.svc, "alice", "W1AW")
	a, err := f.svc.Create(context.Background(), CreateAccountInput{
		Username: "carol", Callsign: "n3xyz", Email: "Carol@Example.com", Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOperator, a.Role)
	assert.True(t, a.IsEnabled())
	assert.Equal(t, "carol@example.com", a.Email)
}

func TestUpdateProfileConflict(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	register(t, f.svc, "alice", "W1AW")
	bob := register(t, f.svc, "bob", "K2ABC")

	taken := "w1aw"
	_, err := f.svc.UpdateProfile(ctx, bob.ID, UpdateProfileInput{Callsign: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	fresh := "k2new"
	a, err := f.svc.UpdateProfile(ctx, bob.ID, UpdateProfileInput{Callsign: &fresh})
	require.NoError(t, err)
	assert.Equal(t, "K2NEW", a.Callsign)
}

func TestChangePasswordRevokesTokens(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()
	alice := register(t, f.svc, "alice", "W1AW")
	require.NoError(t, f.tokens.StoreRefresh(ctx, alice.ID, "h", f.svc.now().Add(24*time.Hour)))

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, alice.ID, "bad", "newsecret"), ErrValidation)
	require.NoError(t, f.svc.ChangePassword(ctx, alice.ID, "secret1", "newsecret"))
	assert.Zero(t, f.tokens.Active(alice.ID))
	_, err := f.svc.Authenticate(ctx, "alice", "newsecret")
	assert.NoError(t, err)
}

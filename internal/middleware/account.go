package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// AccountResolver maps an authenticated subject to its current account. It
// is implemented by service.AccountService.
type AccountResolver interface {
	Resolve(ctx context.Context, id uint64) (model.Account, error)
}

// RequireAccount loads the account behind the token on every request, so a
// deleted or disabled account loses access immediately even while its
// access token is still valid. The role from the database replaces the one
// in the token. Must run after JWTAuth.
func RequireAccount(accounts AccountResolver, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := UserID(c)
			if id == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
			}
			a, err := accounts.Resolve(c.Request().Context(), id)
			switch {
			case errors.Is(err, service.ErrPendingApproval):
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account pending approval", "code": "pending_approval"})
			case errors.Is(err, service.ErrUnauthenticated):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
			case err != nil:
				log.Error("resolve account failed", zap.Uint64("account_id", id), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
			}
			c.Set(KeyAccount, a)
			c.Set(KeyRole, a.Role)
			return next(c)
		}
	}
}

// Account returns the account stored by RequireAccount.
func Account(c echo.Context) (model.Account, bool) {
	a, ok := c.Get(KeyAccount).(model.Account)
	return a, ok
}

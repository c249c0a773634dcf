package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by the auth middlewares.
const (
	KeyUserID  = "user_id"
	KeyRole    = "role"
	KeyAccount = "account"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the token's subject and role claims in the request context. Only
// HS256 tokens signed with secret are accepted. The subject is stored as a
// uint64 under KeyUserID.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			id, role, err := ParseAccessToken(strings.TrimPrefix(auth, "Bearer "), secret)
			switch {
			case errors.Is(err, ErrInvalidClaims):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(KeyUserID, id)
			c.Set(KeyRole, role)
			return next(c)
		}
	}
}

// ErrInvalidClaims is returned for a correctly signed token whose subject is
// not an account id.
var ErrInvalidClaims = errors.New("invalid claims")

// ParseAccessToken validates an HS256 access token signed with secret and
// returns its subject and role. Tokens without an exp claim are rejected.
func ParseAccessToken(raw, secret string) (uint64, string, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, "", err
	}
	if !tok.Valid {
		return 0, "", jwt.ErrTokenSignatureInvalid
	}
	// sub is numeric in tokens we issue and decodes as float64
	id, ok := subject(claims["sub"])
	if !ok {
		return 0, "", ErrInvalidClaims
	}
	role, _ := claims["role"].(string)
	return id, role, nil
}

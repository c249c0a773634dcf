package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/captcha"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// AuthHandler serves registration, sign-in and token endpoints.
type AuthHandler struct {
	Accounts  *service.AccountService
	Sessions  *service.SessionService
	Captcha   *captcha.Verifier
	JWTSecret string
	Log       *zap.Logger
}

func NewAuthHandler(accounts *service.AccountService, sessions *service.SessionService, verifier *captcha.Verifier, jwtSecret string, log *zap.Logger) *AuthHandler {
	if accounts == nil || sessions == nil || verifier == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Accounts: accounts, Sessions: sessions, Captcha: verifier, JWTSecret: jwtSecret, Log: log}
}

type registerReq struct {
	Username       string `json:"username" validate:"required,username"`
	Callsign       string `json:"callsign" validate:"required,callsign"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    model.AccountView `json:"user"`
	Access  tokenPart         `json:"access"`
	Refresh *tokenPart        `json:"refresh,omitempty"`
}

func sessionResp(s service.Session) authResp {
	out := authResp{
		User:   s.Account.View(),
		Access: tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
	}
	if s.HasRefresh {
		out.Refresh = &tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp}
	}
	return out
}

// Register creates an account. The first account is an enabled admin and
// signs in immediately; later accounts wait for approval and get no tokens.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if !h.Captcha.Verify(ctx, req.RecaptchaToken, c.RealIP()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reCAPTCHA verification failed"})
	}
	a, err := h.Accounts.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Callsign: req.Callsign,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !a.IsEnabled() {
		return c.JSON(http.StatusCreated, echo.Map{
			"user":    a.View(),
			"message": "Registration successful. Your account is pending administrator approval.",
		})
	}
	s, err := h.Sessions.Issue(ctx, a)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, sessionResp(s))
}

// Login verifies credentials. A disabled account gets 403 with
// code pending_approval.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	s, err := h.Sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// Refresh rotates the refresh token and returns a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	s, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	s, err := h.Sessions.RefreshAccess(ctx, req.RefreshToken)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"access": tokenPart{Token: s.Access.Token, Expires: s.Access.Exp}})
}

// bearerSubject returns the account id of a valid access token in the
// Authorization header, if any. Logout runs without the JWT middleware.
func (h *AuthHandler) bearerSubject(c echo.Context) (uint64, bool) {
	raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !ok {
		return 0, false
	}
	id, _, err := middleware.ParseAccessToken(raw, h.JWTSecret)
	return id, err == nil
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx, cancel := requestContext(c)
	defer cancel()

	if strings.TrimSpace(req.RefreshToken) != "" {
		if err := h.Sessions.Logout(ctx, req.RefreshToken); err != nil {
			return writeError(c, h.Log, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if id, ok := h.bearerSubject(c); ok {
		if err := h.Sessions.LogoutAll(ctx, id); err != nil {
			return writeError(c, h.Log, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// Me returns the current account.
func (h *AuthHandler) Me(c echo.Context) error {
	a, err := account(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a.View())
}

// ChangePassword replaces the caller's password and signs out every
// session.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	a, err := account(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req passwordReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Accounts.ChangePassword(ctx, a.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return writeError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "Password updated successfully")
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// UserHandler serves the admin account management endpoints.
type UserHandler struct {
	Accounts *service.AccountService
	Log      *zap.Logger
}

func NewUserHandler(accounts *service.AccountService, log *zap.Logger) *UserHandler {
	if accounts == nil {
		panic("nil service passed to NewUserHandler")
	}
	return &UserHandler{Accounts: accounts, Log: log}
}

type createUserReq struct {
	Username string `json:"username" validate:"required,username"`
	Callsign string `json:"callsign" validate:"required,callsign"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=operator admin"`
	Enabled  *bool  `json:"isEnabled"`
}

type updateUserReq struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Callsign *string `json:"callsign" validate:"omitempty,callsign"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type resetPasswordReq struct {
	Password string `json:"password" validate:"required,min=6"`
}

type roleReq struct {
	Role string `json:"role" validate:"required,oneof=operator admin"`
}

type enabledReq struct {
	Enabled *bool `json:"isEnabled" validate:"required"`
}

func views(list []model.Account) []model.AccountView {
	out := make([]model.AccountView, 0, len(list))
	for _, a := range list {
		out = append(out, a.View())
	}
	return out
}

// List returns all accounts.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.Accounts.List(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, views(list))
}

// Create adds an account. It is enabled unless the body says otherwise.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Accounts.Create(ctx, service.CreateAccountInput{
		Username: req.Username,
		Callsign: req.Callsign,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Enabled:  req.Enabled,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, a.View())
}

// Update edits identity fields of any account.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Accounts.UpdateProfile(ctx, id, service.UpdateProfileInput{
		Username: req.Username,
		Callsign: req.Callsign,
		Email:    req.Email,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a.View())
}

// Delete removes an account other than the caller's.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Accounts.Delete(ctx, middleware.UserID(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "User deleted successfully")
}

// ResetPassword sets a new password and signs the account out.
func (h *UserHandler) ResetPassword(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req resetPasswordReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Accounts.ResetPassword(ctx, id, req.Password); err != nil {
		return writeError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "Password reset successfully")
}

// SetRole changes an account's role.
func (h *UserHandler) SetRole(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Accounts.SetRole(ctx, middleware.UserID(c), id, req.Role)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a.View())
}

// SetEnabled approves or suspends an account.
func (h *UserHandler) SetEnabled(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req enabledReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Accounts.SetEnabled(ctx, middleware.UserID(c), id, *req.Enabled)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a.View())
}

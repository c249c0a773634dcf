// Package handler holds the Echo HTTP handlers. Handlers bind and validate
// requests, call the services and translate their errors into responses.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// requestTimeout bounds the store calls made by a single request.
const requestTimeout = 10 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

var (
	callsignTag = regexp.MustCompile(`^[A-Za-z0-9/]{3,10}$`)
	usernameTag = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the callsign and username tags and reports fields
// by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("callsign", func(fl validator.FieldLevel) bool {
		return callsignTag.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameTag.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]service.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, service.FieldError{Field: fe.Field(), Message: tagMessage(fe)})
	}
	return &service.ValidationError{Fields: fields}
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "callsign":
		return "must be 3-10 letters, digits or '/'"
	case "username":
		return "must be 3-30 letters, digits or underscores"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

// bind decodes the body into dst and validates it when a validator is
// registered.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return service.Invalid("body", "invalid request body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

// statusOf maps a service error category to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPendingApproval), errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ...}. Validation errors add field
// details; internal errors are logged and reported generically.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status := statusOf(err)
	body := echo.Map{"error": service.Message(err)}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		body["error"] = "validation failed"
		body["details"] = verr.Fields
	case errors.Is(err, service.ErrPendingApproval):
		body["code"] = "pending_approval"
	case status == http.StatusInternalServerError:
		log.Error("request failed", zap.String("method", c.Request().Method), zap.String("route", c.Path()), zap.Error(err))
	}
	return c.JSON(status, body)
}

// parseID reads a positive numeric path parameter before any store access.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, service.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// actor returns the account resolved by middleware.RequireAccount.
func actor(c echo.Context) (service.Actor, error) {
	a, ok := middleware.Account(c)
	if !ok {
		return service.Actor{}, &service.Error{Kind: service.ErrUnauthenticated, Message: "invalid credentials"}
	}
	return service.ActorOf(a), nil
}

func account(c echo.Context) (model.Account, error) {
	a, ok := middleware.Account(c)
	if !ok {
		return a, &service.Error{Kind: service.ErrUnauthenticated, Message: "invalid credentials"}
	}
	return a, nil
}

// flexID accepts an identifier sent as a JSON number or string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

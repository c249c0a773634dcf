package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/directory"
	"github.com/netcontrolapp/netcontrol/internal/metrics"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// StationLookup is implemented by directory.Client.
type StationLookup interface {
	Lookup(ctx context.Context, callsign, credential string) (*directory.Station, error)
}

// LookupHandler proxies callsign lookups with the caller's stored
// credential.
type LookupHandler struct {
	Settings  *service.SettingsService
	Directory StationLookup
	Log       *zap.Logger
}

func NewLookupHandler(settings *service.SettingsService, dir StationLookup, log *zap.Logger) *LookupHandler {
	if settings == nil || dir == nil {
		panic("nil dependency passed to NewLookupHandler")
	}
	return &LookupHandler{Settings: settings, Directory: dir, Log: log}
}

// Lookup answers 400 without a stored credential, 404 for an unknown
// callsign and 502 when the directory cannot be reached, so the client can
// fall back to manual entry.
func (h *LookupHandler) Lookup(c echo.Context) error {
	callsign := strings.ToUpper(strings.TrimSpace(c.Param("callsign")))
	if !callsignTag.MatchString(callsign) {
		return writeError(c, h.Log, service.Invalid("callsign", "must be 3-10 letters, digits or '/'"))
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cred, err := h.Settings.DirectoryCredential(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}

	st, err := h.Directory.Lookup(ctx, callsign, cred)
	switch {
	case err == nil:
		metrics.DirectoryLookups.WithLabelValues("found").Inc()
		return c.JSON(http.StatusOK, st)
	case errors.Is(err, directory.ErrNotFound):
		metrics.DirectoryLookups.WithLabelValues("not_found").Inc()
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Callsign not found"})
	case errors.Is(err, directory.ErrCredential):
		metrics.DirectoryLookups.WithLabelValues("bad_credential").Inc()
		return writeError(c, h.Log, service.Invalid("qrzApiKey", "QRZ credentials are not configured in settings"))
	}
	metrics.DirectoryLookups.WithLabelValues("error").Inc()
	h.Log.Warn("directory lookup failed", zap.String("callsign", callsign), zap.Error(err))
	return c.JSON(http.StatusBadGateway, echo.Map{
		"error": "Callsign lookup is unavailable, enter the station details manually",
	})
}

package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/service"
	"github.com/netcontrolapp/netcontrol/internal/storage"
)

// SettingsHandler serves per-account settings and the logo upload.
type SettingsHandler struct {
	Settings *service.SettingsService
	Files    storage.Store
	MaxLogo  int64
	Log      *zap.Logger
}

func NewSettingsHandler(settings *service.SettingsService, files storage.Store, maxLogo int64, log *zap.Logger) *SettingsHandler {
	if settings == nil || files == nil {
		panic("nil dependency passed to NewSettingsHandler")
	}
	return &SettingsHandler{Settings: settings, Files: files, MaxLogo: maxLogo, Log: log}
}

type settingsReq struct {
	Theme     *string `json:"theme" validate:"omitempty,oneof=light dark"`
	QRZAPIKey *string `json:"qrzApiKey" validate:"omitempty,max=200"`
}

// Get returns the caller's settings.
func (h *SettingsHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.Settings.Get(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Update changes theme and lookup credential.
func (h *SettingsHandler) Update(c echo.Context) error {
	var req settingsReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.Settings.Update(ctx, middleware.UserID(c), service.SettingsInput{
		Theme:               req.Theme,
		DirectoryCredential: req.QRZAPIKey,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// UploadLogo accepts a single image in the multipart field "logo".
func (h *SettingsHandler) UploadLogo(c echo.Context) error {
	// headroom for multipart framing
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.MaxLogo+64*1024)

	form, err := c.MultipartForm()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return writeError(c, h.Log, service.Invalid("logo", "file is too large"))
		}
		return writeError(c, h.Log, service.Invalid("logo", "no file uploaded"))
	}
	defer func() { _ = form.RemoveAll() }()

	files := form.File["logo"]
	switch {
	case len(files) == 0:
		return writeError(c, h.Log, service.Invalid("logo", "no file uploaded"))
	case len(files) > 1:
		return writeError(c, h.Log, service.Invalid("logo", "only one file may be uploaded"))
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return writeError(c, h.Log, err)
	}
	defer f.Close()

	ctx, cancel := requestContext(c)
	defer cancel()
	st, err := h.Settings.SetLogo(ctx, middleware.UserID(c), service.LogoUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"logo": st.Logo, "message": "Logo uploaded successfully"})
}

// DeleteLogo removes the caller's logo.
func (h *SettingsHandler) DeleteLogo(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Settings.DeleteLogo(ctx, middleware.UserID(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "Logo deleted successfully")
}

// ServeUpload streams a stored file. Only generated logo names resolve.
func (h *SettingsHandler) ServeUpload(c echo.Context) error {
	ref := storage.Ref(c.Param("name"))
	if _, err := storage.NameOf(ref); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	}
	rc, err := h.Files.Open(c.Request().Context(), ref)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentType, contentTypeFor(storage.Ext(ref)))
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), rc)
	return err
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	case "webp":
		return "image/webp"
	}
	return echo.MIMEOctetStream
}

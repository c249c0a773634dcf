package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/report"
	"github.com/netcontrolapp/netcontrol/internal/repository"
	"github.com/netcontrolapp/netcontrol/internal/storage"
)

const maxCredential = 200

// SettingsService manages per-account preferences and the report logo.
type SettingsService struct {
	settings SettingsStore
	files    storage.Store
	maxLogo  int64
	log      *zap.Logger
	now      func() time.Time
}

func NewSettingsService(settings SettingsStore, files storage.Store, maxLogo int64, log *zap.Logger) *SettingsService {
	if settings == nil || files == nil {
		panic("nil dependency passed to NewSettingsService")
	}
	return &SettingsService{settings: settings, files: files, maxLogo: maxLogo, log: log, now: now}
}

// Get returns the account's settings, creating defaults on first access.
func (s *SettingsService) Get(ctx context.Context, accountID uint64) (model.Settings, error) {
	return s.settings.GetOrCreate(ctx, accountID, s.now())
}

// SettingsInput holds optional changes. Nil fields are left unchanged.
type SettingsInput struct {
	Theme               *string
	DirectoryCredential *string
}

// Update changes theme and directory credential.
func (s *SettingsService) Update(ctx context.Context, accountID uint64, in SettingsInput) (model.Settings, error) {
	st, err := s.Get(ctx, accountID)
	if err != nil {
		return st, err
	}
	if in.Theme != nil {
		if *in.Theme != model.ThemeLight && *in.Theme != model.ThemeDark {
			return st, Invalid("theme", "must be light or dark")
		}
		st.Theme = *in.Theme
	}
	if in.DirectoryCredential != nil {
		cred := Sanitize(*in.DirectoryCredential)
		if err := fieldsErr(checkLen(nil, "qrzApiKey", cred, 0, maxCredential)); err != nil {
			return st, err
		}
		st.DirectoryCredential = cred
	}
	return st, s.save(ctx, &st)
}

func (s *SettingsService) save(ctx context.Context, st *model.Settings) error {
	st.UpdatedAt = s.now()
	if err := s.settings.Update(ctx, st); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "settings not found")
		}
		return err
	}
	return nil
}

// DirectoryCredential returns the account's stored lookup credential.
// An unset credential is a validation error.
func (s *SettingsService) DirectoryCredential(ctx context.Context, accountID uint64) (string, error) {
	st, err := s.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if st.DirectoryCredential == "" {
		return "", Invalid("qrzApiKey", "QRZ credentials are not configured in settings")
	}
	return st.DirectoryCredential, nil
}

// LogoUpload is one uploaded image file.
type LogoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SetLogo stores a new logo under a generated name and removes the previous
// one.
func (s *SettingsService) SetLogo(ctx context.Context, accountID uint64, up LogoUpload) (model.Settings, error) {
	if !storage.AllowedLogo(up.Filename, up.ContentType) {
		return model.Settings{}, Invalid("logo", "only jpeg, jpg, png, gif, svg and webp images are allowed")
	}
	if up.Size > s.maxLogo {
		return model.Settings{}, Invalid("logo", "file is too large")
	}
	st, err := s.Get(ctx, accountID)
	if err != nil {
		return st, err
	}
	ref, err := s.files.Save(ctx, storage.NewLogoName(up.Filename), io.LimitReader(up.Body, s.maxLogo+1), up.Size, up.ContentType)
	if err != nil {
		return st, err
	}
	old := st.Logo
	st.Logo = ref
	if err := s.save(ctx, &st); err != nil {
		s.removeFile(ctx, ref)
		return st, err
	}
	if old != "" {
		s.removeFile(ctx, old)
	}
	return st, nil
}

// DeleteLogo clears the logo and removes the stored file.
func (s *SettingsService) DeleteLogo(ctx context.Context, accountID uint64) (model.Settings, error) {
	st, err := s.Get(ctx, accountID)
	if err != nil {
		return st, err
	}
	if st.Logo == "" {
		return st, nil
	}
	old := st.Logo
	st.Logo = ""
	if err := s.save(ctx, &st); err != nil {
		return st, err
	}
	s.removeFile(ctx, old)
	return st, nil
}

func (s *SettingsService) removeFile(ctx context.Context, ref string) {
	if err := s.files.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("remove logo file failed", zap.String("ref", ref), zap.Error(err))
	}
}

// LogoImage loads the account's logo for embedding in a report. Any failure
// yields nil so the report renders without it.
func (s *SettingsService) LogoImage(ctx context.Context, accountID uint64) *report.Image {
	st, err := s.Get(ctx, accountID)
	if err != nil || st.Logo == "" {
		return nil
	}
	rc, err := s.files.Open(ctx, st.Logo)
	if err != nil {
		s.log.Warn("open logo failed", zap.String("ref", st.Logo), zap.Error(err))
		return nil
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, s.maxLogo+1)); err != nil {
		s.log.Warn("read logo failed", zap.String("ref", st.Logo), zap.Error(err))
		return nil
	}
	return &report.Image{Data: buf.Bytes(), Type: storage.Ext(st.Logo)}
}

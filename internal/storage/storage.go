// Package storage keeps uploaded logo images, either on local disk or in an
// S3-compatible bucket. Both backends hand out the same public reference
// form, /uploads/<name>, which the server resolves back through Open.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix is the URL path under which stored files are served.
const PublicPrefix = "/uploads/"

// ErrNotFound is returned when a referenced file does not exist.
var ErrNotFound = errors.New("file not found")

// ErrBadReference is returned for references outside PublicPrefix.
var ErrBadReference = errors.New("invalid file reference")

// Store persists and retrieves files by reference.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

var logoExts = map[string]bool{".jpeg": true, ".jpg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true}

// AllowedLogo reports whether both the file extension and the declared MIME
// type name one of the accepted image formats.
func AllowedLogo(filename, contentType string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if !logoExts[ext] {
		return false
	}
	ct := strings.ToLower(contentType)
	if !strings.HasPrefix(ct, "image/") {
		return false
	}
	for _, t := range []string{"jpeg", "jpg", "png", "gif", "svg", "webp"} {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

// NewLogoName returns a collision-free name that keeps the upload's
// extension, e.g. logo-<uuid>.png.
func NewLogoName(filename string) string {
	return "logo-" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

// Ref turns a stored name into its public reference.
func Ref(name string) string { return PublicPrefix + name }

// NameOf extracts the stored name from a reference. Path separators and
// dot segments are rejected so a reference cannot escape the store.
func NameOf(ref string) (string, error) {
	if !strings.HasPrefix(ref, PublicPrefix) {
		return "", ErrBadReference
	}
	name := strings.TrimPrefix(ref, PublicPrefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrBadReference
	}
	return name, nil
}

// Ext returns the lower-cased extension of a reference without the dot.
func Ext(ref string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(ref)), ".")
}

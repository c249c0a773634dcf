package model

import "time"

// Themes accepted for Settings.Theme.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings holds per-account preferences. There is exactly one row per
// account; it is created lazily on first read.
type Settings struct {
	ID                  uint64    `json:"id"`
	AccountID           uint64    `json:"accountId"`
	Theme               string    `json:"theme"`
	DirectoryCredential string    `json:"qrzApiKey"`
	Logo                string    `json:"logoUrl"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

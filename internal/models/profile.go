// Package models defines the data structures that map to the hosted
// backend's tables and provides the core types used throughout the application.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile represents a blog author's public profile. It is the row the
// backend keeps alongside its auth user, keyed by the same id.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Name returns the display name if set, falling back to the username.
func (p *Profile) Name() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	return p.Username
}

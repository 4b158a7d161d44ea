// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment represents a comment row on a post. Author is populated only when
// the query joins the profiles table.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	PostID    uuid.UUID `json:"post_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined relation.
	Author *Profile `json:"author,omitempty"`
}

// OwnedBy returns true if the comment was written by the given user.
func (c *Comment) OwnedBy(userID uuid.UUID) bool {
	return c.AuthorID == userID
}

// NewComment is the insert payload for the comments table. The backend
// stamps id and timestamps server-side.
type NewComment struct {
	PostID   uuid.UUID `json:"post_id"`
	AuthorID uuid.UUID `json:"author_id"`
	Content  string    `json:"content"`
}

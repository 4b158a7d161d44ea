// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Post represents a blog post row. Author and Categories are populated only
// when the query joins the related tables; plain selects leave them empty.
type Post struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       *string    `json:"excerpt,omitempty"`
	FeaturedImage *string    `json:"featured_image,omitempty"`
	Published     bool       `json:"published"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	AuthorID      uuid.UUID  `json:"author_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Joined relations.
	Author     *Profile   `json:"author,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// IsPublished returns true if the post is publicly visible.
func (p *Post) IsPublished() bool {
	return p.Published
}

// Summary returns the excerpt if present, otherwise a truncated body.
func (p *Post) Summary(maxLen int) string {
	if p.Excerpt != nil && *p.Excerpt != "" {
		return *p.Excerpt
	}
	if maxLen <= 0 || len(p.Content) <= maxLen {
		return p.Content
	}
	return p.Content[:maxLen] + "…"
}

// PostCategory is a row in the post/category join table. Position preserves
// the ordering of categories attached to a post.
type PostCategory struct {
	PostID     uuid.UUID `json:"post_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Position   int       `json:"position"`
}

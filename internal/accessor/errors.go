// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package accessor

import "errors"

// Fixed user-facing strings for failed reads. The underlying cause is
// logged where the failure happens and never surfaces past this package.
const (
	errLoadPosts      = "Failed to load posts"
	errLoadPost       = "Failed to load post"
	errLoadCategories = "Failed to load categories"
	errLoadComments   = "Failed to load comments"
)

var (
	// ErrNotAuthenticated is returned by write operations attempted without
	// a resolvable signed-in user. No request is issued in that case.
	ErrNotAuthenticated = errors.New("You must be logged in to comment")

	// ErrNoPost is returned by comment writes while no post is selected.
	ErrNoPost = errors.New("no post selected")

	// User-facing results for failed comment writes; causes are logged.
	ErrCommentInsert = errors.New("Failed to post comment")
	ErrCommentDelete = errors.New("Failed to delete comment")
)

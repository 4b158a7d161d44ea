// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package accessor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"plume/internal/backend"
	"plume/internal/models"
)

// Comments loads the comment thread of one post, oldest first, with author
// profiles joined, and holds a realtime subscription on the post's comment
// inserts: every pushed insert triggers exactly one refetch. A zero post id
// settles to an empty state with no subscription held.
//
// AddComment deliberately does not update local state: the backend echoes
// the insert over the realtime channel and the refetch picks it up. The
// extra notification round trip is an accepted trade-off, not a defect.
//
// On a failed refetch the previous thread is retained: the error string is
// set and loading cleared, but Data keeps the last good comments so a
// transient failure does not blank an already-rendered thread.
type Comments struct {
	client *backend.Client

	mu      sync.RWMutex
	state   State[[]models.Comment]
	curPost uuid.UUID // mirror of the loop's post id, for write operations

	cmds    chan uuid.UUID
	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once

	initialPost uuid.UUID
}

// NewComments creates the accessor for the given post; uuid.Nil means no
// post selected. Call Start before reading state.
func NewComments(client *backend.Client, postID uuid.UUID) *Comments {
	return &Comments{
		client:      client,
		state:       State[[]models.Comment]{Loading: postID != uuid.Nil},
		cmds:        make(chan uuid.UUID, 4),
		updates:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		curPost:     postID,
		initialPost: postID,
	}
}

// Start launches the loop, the realtime subscription, and the initial
// fetch. Subsequent calls are no-ops.
func (c *Comments) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Close tears down the realtime subscription unconditionally; no state
// mutation happens after it returns the loop to idle.
func (c *Comments) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// State returns a snapshot of the tri-state.
func (c *Comments) State() State[[]models.Comment] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Updates signals after every state change. Closed when the accessor stops.
func (c *Comments) Updates() <-chan struct{} {
	return c.updates
}

// SetPost switches the accessor to another post's thread, tearing down the
// old subscription and opening a new one. uuid.Nil clears the thread.
func (c *Comments) SetPost(postID uuid.UUID) {
	select {
	case c.cmds <- postID:
	case <-c.done:
	}
}

// AddComment inserts a comment on the current post as the current user. The
// identity is resolved fresh from the backend handle, never from cached
// state; without one, ErrNotAuthenticated is returned and nothing is sent.
func (c *Comments) AddComment(ctx context.Context, content string) error {
	postID := c.currentPost()
	if postID == uuid.Nil {
		return ErrNoPost
	}

	user, err := c.client.Auth().GetUser(ctx)
	if err != nil {
		slog.Error("add comment: identity lookup failed", "post_id", postID, "error", err)
		return ErrCommentInsert
	}
	if user == nil {
		return ErrNotAuthenticated
	}

	row := models.NewComment{PostID: postID, AuthorID: user.ID, Content: content}
	if err := c.client.From("comments").Insert(ctx, row); err != nil {
		slog.Error("add comment failed", "post_id", postID, "error", err)
		return ErrCommentInsert
	}
	return nil
}

// DeleteComment removes one of the current user's comments. The delete is
// matched on both the comment id and the author id; the double predicate
// travels with the request, so ownership is enforced by the backend even if
// the caller is compromised.
func (c *Comments) DeleteComment(ctx context.Context, commentID uuid.UUID) error {
	user, err := c.client.Auth().GetUser(ctx)
	if err != nil {
		slog.Error("delete comment: identity lookup failed", "comment_id", commentID, "error", err)
		return ErrCommentDelete
	}
	if user == nil {
		return ErrNotAuthenticated
	}

	match := map[string]any{
		"id":        commentID,
		"author_id": user.ID,
	}
	if err := c.client.From("comments").Delete(ctx, match); err != nil {
		slog.Error("delete comment failed", "comment_id", commentID, "error", err)
		return ErrCommentDelete
	}
	return nil
}

func (c *Comments) currentPost() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curPost
}

func (c *Comments) setCurrentPost(id uuid.UUID) {
	c.mu.Lock()
	c.curPost = id
	c.mu.Unlock()
}

func (c *Comments) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.updates)

	results := make(chan settlement[[]models.Comment], 4)
	var gen uint64
	var sub *backend.Subscription
	var events <-chan backend.Event

	teardown := func() {
		if sub != nil {
			sub.Unsubscribe()
			sub, events = nil, nil
		}
	}
	defer teardown()

	subscribe := func(postID uuid.UUID) {
		s, err := c.client.Channel(backend.CommentsChannel(postID)).
			On(backend.EventInsert).
			Subscribe(ctx)
		if err != nil {
			// The thread still loads without the subscription; it just
			// won't refresh on remote inserts.
			slog.Error("comments subscription failed", "post_id", postID, "error", err)
			return
		}
		sub, events = s, s.Events()
	}

	fetch := func(postID uuid.UUID) {
		gen++
		c.beginLoad()
		go c.fetch(ctx, gen, postID, results)
	}

	postID := c.initialPost
	if postID != uuid.Nil {
		subscribe(postID)
		fetch(postID)
	} else {
		c.settleEmpty()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-c.cmds:
			if id == postID {
				continue
			}
			postID = id
			c.setCurrentPost(id)
			teardown()
			gen++ // invalidate whatever is in flight
			if id == uuid.Nil {
				c.settleEmpty()
				continue
			}
			subscribe(id)
			fetch(id)
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// The channel is scoped to one post, so any insert on it
			// belongs to our thread: refetch once.
			fetch(postID)
		case res := <-results:
			if res.gen != gen {
				continue // superseded fetch, drop the settlement
			}
			c.settle(res)
		}
	}
}

func (c *Comments) fetch(ctx context.Context, gen uint64, postID uuid.UUID, out chan<- settlement[[]models.Comment]) {
	var comments []models.Comment
	err := c.client.From("comments").
		Select("*,author:profiles(*)").
		Eq("post_id", postID).
		Order("created_at", false).
		Get(ctx, &comments)
	if err != nil {
		slog.Error("load comments failed", "post_id", postID, "error", err)
	}

	select {
	case out <- settlement[[]models.Comment]{gen: gen, data: comments, err: err}:
	case <-ctx.Done():
	}
}

func (c *Comments) beginLoad() {
	c.mu.Lock()
	c.state.Loading = true
	c.state.Err = ""
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Comments) settleEmpty() {
	c.mu.Lock()
	c.state = State[[]models.Comment]{}
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Comments) settle(res settlement[[]models.Comment]) {
	c.mu.Lock()
	c.state.Loading = false
	if res.err != nil {
		c.state.Err = errLoadComments // stale Data retained on purpose
	} else {
		c.state.Data = res.data
		c.state.Err = ""
	}
	c.mu.Unlock()
	notify(c.updates)
}

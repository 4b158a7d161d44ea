// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package accessor

import (
	"context"
	"log/slog"
	"sync"

	"plume/internal/backend"
	"plume/internal/models"
)

// PostDetail loads a single post by slug with the author profile and
// categories joined. An empty slug settles immediately to an empty state
// without touching the network; changing the slug re-runs the fetch.
type PostDetail struct {
	client *backend.Client

	mu    sync.RWMutex
	state State[*models.Post]

	cmds    chan string
	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once

	slug string // loop-owned after Start
}

// NewPostDetail creates the accessor. Call Start before reading state.
func NewPostDetail(client *backend.Client, slug string) *PostDetail {
	return &PostDetail{
		client:  client,
		state:   State[*models.Post]{Loading: slug != ""},
		cmds:    make(chan string, 4),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		slug:    slug,
	}
}

// Start launches the accessor's loop. Subsequent calls are no-ops.
func (d *PostDetail) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, d.cancel = context.WithCancel(ctx)
		go d.run(ctx)
	})
}

// Close stops the loop and abandons any in-flight request.
func (d *PostDetail) Close() {
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
	})
}

// State returns a snapshot of the tri-state.
func (d *PostDetail) State() State[*models.Post] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Updates signals after every state change. Closed when the accessor stops.
func (d *PostDetail) Updates() <-chan struct{} {
	return d.updates
}

// SetSlug switches the accessor to another post. An empty slug settles the
// state to empty without a request.
func (d *PostDetail) SetSlug(slug string) {
	select {
	case d.cmds <- slug:
	case <-d.done:
	}
}

func (d *PostDetail) run(ctx context.Context) {
	defer close(d.done)
	defer close(d.updates)

	results := make(chan settlement[*models.Post], 4)
	var gen uint64

	fetch := func() {
		gen++
		d.beginLoad()
		go d.fetch(ctx, gen, d.slug, results)
	}

	if d.slug == "" {
		d.settleEmpty()
	} else {
		fetch()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case slug := <-d.cmds:
			if slug == d.slug {
				continue
			}
			d.slug = slug
			gen++ // invalidate whatever is in flight
			if slug == "" {
				d.settleEmpty()
				continue
			}
			fetch()
		case res := <-results:
			if res.gen != gen {
				continue // superseded fetch, drop the settlement
			}
			d.settle(res)
		}
	}
}

func (d *PostDetail) fetch(ctx context.Context, gen uint64, slug string, out chan<- settlement[*models.Post]) {
	var post models.Post
	err := d.client.From("posts").
		Select("*,author:profiles(*),categories(*)").
		Eq("slug", slug).
		Single().
		Get(ctx, &post)
	if err != nil {
		slog.Error("load post failed", "slug", slug, "error", err)
	}

	res := settlement[*models.Post]{gen: gen, err: err}
	if err == nil {
		res.data = &post
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (d *PostDetail) beginLoad() {
	d.mu.Lock()
	d.state.Loading = true
	d.state.Err = ""
	d.mu.Unlock()
	notify(d.updates)
}

func (d *PostDetail) settleEmpty() {
	d.mu.Lock()
	d.state = State[*models.Post]{}
	d.mu.Unlock()
	notify(d.updates)
}

func (d *PostDetail) settle(res settlement[*models.Post]) {
	d.mu.Lock()
	d.state.Loading = false
	if res.err != nil {
		d.state.Data = nil
		d.state.Err = errLoadPost
	} else {
		d.state.Data = res.data
		d.state.Err = ""
	}
	d.mu.Unlock()
	notify(d.updates)
}

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

// PostList loads one page of published posts, newest first, with the author
// profile joined. Changing the page or page size re-runs the fetch.
type PostList struct {
	client *backend.Client

	mu    sync.RWMutex
	state State[[]models.Post]

	cmds    chan pageWindow
	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once

	// Loop-owned after Start.
	page     int
	pageSize int
}

// pageWindow is a page/size command; non-positive fields mean "keep current".
type pageWindow struct {
	page     int
	pageSize int
}

// NewPostList creates the accessor for the given window. Page defaults to 1
// and pageSize to 10 when out of range. Call Start before reading state.
func NewPostList(client *backend.Client, page, pageSize int) *PostList {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return &PostList{
		client:   client,
		state:    State[[]models.Post]{Loading: true},
		cmds:     make(chan pageWindow, 4),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		page:     page,
		pageSize: pageSize,
	}
}

// Start launches the accessor's loop and the initial fetch. Subsequent calls
// are no-ops.
func (l *PostList) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		go l.run(ctx)
	})
}

// Close stops the loop and abandons any in-flight request.
func (l *PostList) Close() {
	l.closeOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
	})
}

// State returns a snapshot of the tri-state.
func (l *PostList) State() State[[]models.Post] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Updates signals after every state change. The channel coalesces and is
// closed when the accessor stops.
func (l *PostList) Updates() <-chan struct{} {
	return l.updates
}

// SetPage moves the window to another page.
func (l *PostList) SetPage(page int) {
	l.send(pageWindow{page: page})
}

// SetPageSize changes the window size.
func (l *PostList) SetPageSize(size int) {
	l.send(pageWindow{pageSize: size})
}

func (l *PostList) send(w pageWindow) {
	select {
	case l.cmds <- w:
	case <-l.done:
	}
}

func (l *PostList) run(ctx context.Context) {
	defer close(l.done)
	defer close(l.updates)

	results := make(chan settlement[[]models.Post], 4)
	var gen uint64

	fetch := func() {
		gen++
		l.beginLoad()
		go l.fetch(ctx, gen, l.page, l.pageSize, results)
	}
	fetch()

	for {
		select {
		case <-ctx.Done():
			return
		case w := <-l.cmds:
			page, size := l.page, l.pageSize
			if w.page > 0 {
				page = w.page
			}
			if w.pageSize > 0 {
				size = w.pageSize
			}
			if page == l.page && size == l.pageSize {
				continue
			}
			l.page, l.pageSize = page, size
			fetch()
		case res := <-results:
			if res.gen != gen {
				continue // superseded fetch, drop the settlement
			}
			l.settle(res)
		}
	}
}

func (l *PostList) fetch(ctx context.Context, gen uint64, page, size int, out chan<- settlement[[]models.Post]) {
	from := (page - 1) * size
	to := from + size - 1

	var posts []models.Post
	err := l.client.From("posts").
		Select("*,author:profiles(*)").
		Eq("published", true).
		Order("published_at", true).
		Range(from, to).
		Get(ctx, &posts)
	if err != nil {
		slog.Error("load posts failed", "page", page, "page_size", size, "error", err)
	}

	select {
	case out <- settlement[[]models.Post]{gen: gen, data: posts, err: err}:
	case <-ctx.Done():
	}
}

func (l *PostList) beginLoad() {
	l.mu.Lock()
	l.state.Loading = true
	l.state.Err = ""
	l.mu.Unlock()
	notify(l.updates)
}

func (l *PostList) settle(res settlement[[]models.Post]) {
	l.mu.Lock()
	l.state.Loading = false
	if res.err != nil {
		l.state.Err = errLoadPosts
	} else {
		l.state.Data = res.data
		l.state.Err = ""
	}
	l.mu.Unlock()
	notify(l.updates)
}

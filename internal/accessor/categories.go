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

// Categories loads every category ordered by name. It fetches once per
// Start; there is no reactive input beyond activation.
type Categories struct {
	client *backend.Client

	mu    sync.RWMutex
	state State[[]models.Category]

	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

// NewCategories creates the accessor. Call Start before reading state.
func NewCategories(client *backend.Client) *Categories {
	return &Categories{
		client:  client,
		state:   State[[]models.Category]{Loading: true},
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the fetch. Subsequent calls are no-ops.
func (c *Categories) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Close stops the accessor and abandons any in-flight request.
func (c *Categories) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// State returns a snapshot of the tri-state.
func (c *Categories) State() State[[]models.Category] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Updates signals after every state change. Closed when the accessor stops.
func (c *Categories) Updates() <-chan struct{} {
	return c.updates
}

func (c *Categories) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.updates)

	var cats []models.Category
	err := c.client.From("categories").
		Select("*").
		Order("name", false).
		Get(ctx, &cats)
	if err != nil {
		slog.Error("load categories failed", "error", err)
	}

	c.mu.Lock()
	c.state.Loading = false
	if err != nil {
		c.state.Err = errLoadCategories
	} else {
		c.state.Data = cats
	}
	c.mu.Unlock()
	notify(c.updates)

	<-ctx.Done()
}

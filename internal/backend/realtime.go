// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// realtime.go implements the push channel for row change notifications.
// The hosted backend publishes JSON change events on Redis channels named
// realtime:<name>; subscribing to a channel delivers those events until
// Unsubscribe is called.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces the backend's change events in Redis.
const channelPrefix = "realtime:"

// Change event types as published by the backend.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is one row change notification.
type Event struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// CommentsChannel returns the channel name carrying comment changes for one
// post.
func CommentsChannel(postID uuid.UUID) string {
	return "comments:" + postID.String()
}

// Realtime owns the lazily-created Redis connection used for subscriptions.
// Lazy creation keeps a missing realtime endpoint a call-time failure, in
// line with the rest of the handle's misconfiguration policy.
type Realtime struct {
	addr     string
	password string

	mu  sync.Mutex
	rdb *redis.Client
}

func newRealtime(addr, password string) *Realtime {
	return &Realtime{addr: addr, password: password}
}

func (r *Realtime) conn() *redis.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rdb == nil {
		r.rdb = redis.NewClient(&redis.Options{
			Addr:     r.addr,
			Password: r.password,
			DB:       0,
		})
	}
	return r.rdb
}

func (r *Realtime) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rdb == nil {
		return nil
	}
	err := r.rdb.Close()
	r.rdb = nil
	return err
}

// ChannelBuilder configures a realtime subscription before Subscribe opens it.
type ChannelBuilder struct {
	realtime *Realtime
	name     string
	types    []string
}

// On filters delivery to the given change types. Without any On call every
// event on the channel is delivered.
func (b *ChannelBuilder) On(eventType string) *ChannelBuilder {
	b.types = append(b.types, eventType)
	return b
}

// Subscribe opens the channel. It fails if the realtime endpoint cannot
// confirm the subscription. Events arrive on Subscription.Events until
// Unsubscribe.
func (b *ChannelBuilder) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := b.realtime.conn().Subscribe(ctx, channelPrefix+b.name)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.name, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		name:   b.name,
		pubsub: pubsub,
		events: make(chan Event, 16),
		cancel: cancel,
	}

	wanted := make(map[string]bool, len(b.types))
	for _, t := range b.types {
		wanted[t] = true
	}

	go func() {
		defer close(sub.events)
		msgs := pubsub.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("realtime: discarding malformed event",
						"channel", msg.Channel, "error", err)
					continue
				}
				if len(wanted) > 0 && !wanted[ev.Type] {
					continue
				}
				select {
				case sub.events <- ev:
				case <-loopCtx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

// Subscription is an open realtime channel.
type Subscription struct {
	name   string
	pubsub *redis.PubSub
	events chan Event
	cancel context.CancelFunc
	once   sync.Once
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Unsubscribe closes the channel; no event is delivered afterwards. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		if err := s.pubsub.Close(); err != nil {
			slog.Warn("realtime: unsubscribe close failed", "channel", s.name, "error", err)
		}
	})
}

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

// AuthState is the auth accessor's snapshot: current session and user from
// the backend handle plus the matching profile row. Loading is true until
// the initial session has been resolved.
type AuthState struct {
	Session *backend.Session
	User    *backend.User
	Profile *models.Profile
	Loading bool
}

// Auth tracks authentication state. It subscribes to the handle's auth
// state changes; every change overwrites session and user, and a change of
// user triggers a profile lookup. A failed profile lookup is logged and
// leaves Profile nil; it never fails the accessor.
type Auth struct {
	client *backend.Client

	mu    sync.RWMutex
	state AuthState

	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

// NewAuth creates the accessor. Call Start before reading state.
func NewAuth(client *backend.Client) *Auth {
	return &Auth{
		client:  client,
		state:   AuthState{Loading: true},
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start subscribes to auth state changes and launches the loop. Subsequent
// calls are no-ops.
func (a *Auth) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)
		go a.run(ctx)
	})
}

// Close deregisters the auth listener; no state mutation happens afterwards.
func (a *Auth) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
	})
}

// State returns a snapshot of the auth state.
func (a *Auth) State() AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Updates signals after every state change. Closed when the accessor stops.
func (a *Auth) Updates() <-chan struct{} {
	return a.updates
}

// SignIn passes through to the handle and returns its result unchanged.
// State is updated via the auth change subscription, not here.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	return a.client.Auth().SignIn(ctx, email, password)
}

// SignUp passes through to the handle and returns its result unchanged.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	return a.client.Auth().SignUp(ctx, email, password)
}

// SignOut passes through to the handle and returns its result unchanged.
func (a *Auth) SignOut(ctx context.Context) error {
	return a.client.Auth().SignOut(ctx)
}

func (a *Auth) run(ctx context.Context) {
	defer close(a.done)
	defer close(a.updates)

	sub := a.client.Auth().OnAuthStateChange()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case chg, ok := <-sub.Changes():
			if !ok {
				return
			}
			a.apply(ctx, chg)
		}
	}
}

// apply folds one auth change into the state. The profile lookup runs inside
// the loop, so changes are applied strictly in arrival order.
func (a *Auth) apply(ctx context.Context, chg backend.AuthChange) {
	var user *backend.User
	if chg.Session != nil {
		user = chg.Session.User
	}

	a.mu.RLock()
	prev := a.state.User
	prevProfile := a.state.Profile
	a.mu.RUnlock()

	var profile *models.Profile
	switch {
	case user == nil:
		profile = nil
	case prev != nil && prev.ID == user.ID:
		profile = prevProfile // same user, keep what we have
	default:
		profile = a.loadProfile(ctx, user.ID)
	}

	a.mu.Lock()
	a.state = AuthState{Session: chg.Session, User: user, Profile: profile}
	a.mu.Unlock()
	notify(a.updates)
}

func (a *Auth) loadProfile(ctx context.Context, id uuid.UUID) *models.Profile {
	var p models.Profile
	err := a.client.From("profiles").
		Select("*").
		Eq("id", id).
		Single().
		Get(ctx, &p)
	if err != nil {
		slog.Error("load profile failed", "user_id", id, "error", err)
		return nil
	}
	return &p
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshMargin is how long before token expiry the auto-refresher fires.
const refreshMargin = 30 * time.Second

// User is the backend's auth identity. The matching profile row lives in the
// profiles table under the same id.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an authenticated session issued by the backend's token endpoint.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user"`

	// ExpiresAt is parsed from the access token's exp claim after the
	// session is received. Zero when the token carries no expiry.
	ExpiresAt time.Time `json:"-"`
}

// AuthEvent identifies a change in the client's authentication state.
type AuthEvent string

const (
	AuthEventInitialSession AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthChange is delivered to auth state subscribers. Session is nil for
// SIGNED_OUT and for an INITIAL_SESSION with nobody signed in.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// Auth is the authentication sub-client. It holds the current session and a
// table of state-change listeners.
type Auth struct {
	client *Client

	mu        sync.RWMutex
	session   *Session
	listeners map[uuid.UUID]chan AuthChange
}

func newAuth(c *Client) *Auth {
	return &Auth{
		client:    c,
		listeners: make(map[uuid.UUID]chan AuthChange),
	}
}

// Session returns the current session, or nil when signed out.
func (a *Auth) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// SignIn exchanges email and password for a session. On success the session
// becomes current and SIGNED_IN is emitted to subscribers.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := a.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		map[string]string{"email": email, "password": password}, &s)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	a.setSession(&s, AuthEventSignedIn)
	return &s, nil
}

// SignUp registers a new account. Like SignIn it returns and installs the
// session the backend issues for the fresh account.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := a.do(ctx, http.MethodPost, "/auth/v1/signup",
		map[string]string{"email": email, "password": password}, &s)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	a.setSession(&s, AuthEventSignedIn)
	return &s, nil
}

// SignOut revokes the session server-side and clears it locally. The local
// session is cleared and SIGNED_OUT emitted even if the revocation request
// fails; the returned error reports the request outcome.
func (a *Auth) SignOut(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil)
	a.setSession(nil, AuthEventSignedOut)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// GetUser resolves the current identity fresh from the backend. It returns
// (nil, nil) without a network call when no session is held, so callers can
// use it as the authorization gate for write operations.
func (a *Auth) GetUser(ctx context.Context) (*User, error) {
	if a.Session() == nil {
		return nil, nil
	}
	var u User
	if err := a.do(ctx, http.MethodGet, "/auth/v1/user", nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// RefreshSession exchanges the refresh token for a new session and emits
// TOKEN_REFRESHED. It fails when no session is held.
func (a *Auth) RefreshSession(ctx context.Context) (*Session, error) {
	cur := a.Session()
	if cur == nil || cur.RefreshToken == "" {
		return nil, fmt.Errorf("refresh session: no session")
	}
	var s Session
	err := a.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token",
		map[string]string{"refresh_token": cur.RefreshToken}, &s)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	a.setSession(&s, AuthEventTokenRefreshed)
	return &s, nil
}

// StartAutoRefresh runs a background loop refreshing the session shortly
// before its token expires. It returns immediately; the loop stops when ctx
// is cancelled. Refresh failures are logged and retried on the next tick.
func (a *Auth) StartAutoRefresh(ctx context.Context) {
	go func() {
		for {
			wait := time.Minute
			if s := a.Session(); s != nil && !s.ExpiresAt.IsZero() {
				wait = time.Until(s.ExpiresAt.Add(-refreshMargin))
				if wait < time.Second {
					wait = time.Second
				}
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if s := a.Session(); s != nil && !s.ExpiresAt.IsZero() &&
				time.Until(s.ExpiresAt) <= refreshMargin+time.Second {
				if _, err := a.RefreshSession(ctx); err != nil {
					slog.Warn("session auto-refresh failed", "error", err)
				}
			}
		}
	}()
}

// AuthSubscription delivers auth state changes over a channel until
// Unsubscribe is called.
type AuthSubscription struct {
	id   uuid.UUID
	auth *Auth
	ch   chan AuthChange
	once sync.Once
}

// Changes returns the event channel. It is closed by Unsubscribe.
func (s *AuthSubscription) Changes() <-chan AuthChange {
	return s.ch
}

// Unsubscribe deregisters the listener and closes the channel. Safe to call
// more than once.
func (s *AuthSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.auth.mu.Lock()
		delete(s.auth.listeners, s.id)
		close(s.ch)
		s.auth.mu.Unlock()
	})
}

// OnAuthStateChange registers a listener for auth state changes. The current
// state is delivered immediately as INITIAL_SESSION. Events are dropped, not
// blocked on, when a listener stops draining its channel.
func (a *Auth) OnAuthStateChange() *AuthSubscription {
	sub := &AuthSubscription{
		id:   uuid.New(),
		auth: a,
		ch:   make(chan AuthChange, 8),
	}

	a.mu.Lock()
	a.listeners[sub.id] = sub.ch
	sub.ch <- AuthChange{Event: AuthEventInitialSession, Session: a.session}
	a.mu.Unlock()

	return sub
}

// setSession installs (or clears) the session, stamping token expiry, and
// notifies all listeners.
func (a *Auth) setSession(s *Session, event AuthEvent) {
	if s != nil {
		s.ExpiresAt = tokenExpiry(s.AccessToken)
	}

	a.mu.Lock()
	a.session = s
	for _, ch := range a.listeners {
		select {
		case ch <- AuthChange{Event: event, Session: s}:
		default:
			slog.Warn("auth listener not draining, event dropped", "event", event)
		}
	}
	a.mu.Unlock()
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature. The client only schedules refresh from it; validation is the
// backend's job. Returns the zero time when the token has no usable expiry.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// do performs an auth endpoint request: JSON in, JSON out, API key and
// bearer headers attached. out may be nil for endpoints with empty bodies.
func (a *Auth) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("auth marshal: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.client.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", a.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+a.client.bearerToken())

	resp, err := a.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("auth read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("auth unmarshal: %w", err)
	}
	return nil
}

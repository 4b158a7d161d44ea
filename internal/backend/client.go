// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package backend implements the client handle for the hosted blog backend.
// It covers the three capabilities the data layer consumes: token-based
// authentication, a typed query builder over the REST row API, and realtime
// change subscriptions delivered over a Redis channel.
//
// One Client is created at startup and shared by every accessor. All methods
// are safe for concurrent use: configuration is immutable after New, request
// state is per-call, and the auth listener table is guarded by a lock.
package backend

import (
	"net/http"
	"strings"

	"plume/internal/config"
)

// Client is the long-lived handle to the hosted backend.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	auth     *Auth
	realtime *Realtime
}

// New creates the backend handle from configuration. An empty URL or API key
// is accepted; requests made through the handle will fail with transport or
// authorization errors rather than New failing.
func New(cfg *config.Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.HTTPTimeout()},
	}
	c.auth = newAuth(c)
	c.realtime = newRealtime(cfg.RealtimeAddr, cfg.RealtimePassword)
	return c
}

// Auth returns the authentication sub-client.
func (c *Client) Auth() *Auth {
	return c.auth
}

// From starts a query against the named table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// Channel starts a realtime subscription builder for the named channel.
func (c *Client) Channel(name string) *ChannelBuilder {
	return &ChannelBuilder{realtime: c.realtime, name: name}
}

// Close releases the realtime connection. REST requests need no teardown.
func (c *Client) Close() error {
	return c.realtime.close()
}

// bearerToken returns the Authorization token for REST calls: the signed-in
// session's access token when present, the public API key otherwise.
func (c *Client) bearerToken() string {
	if s := c.auth.Session(); s != nil && s.AccessToken != "" {
		return s.AccessToken
	}
	return c.apiKey
}

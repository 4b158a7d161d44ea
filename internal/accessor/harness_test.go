// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// harness_test.go provides a fake hosted backend for accessor tests: the
// REST and auth surfaces as chi routes inside an httptest server, and the
// realtime channel as a miniredis instance. Inserted comments are echoed as
// realtime events the way the hosted service does it.
package accessor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"plume/internal/backend"
	"plume/internal/config"
	"plume/internal/models"
)

const (
	testAccessToken = "test-access-token"
	testEmail       = "ada@example.dev"
	testPassword    = "hunter22"
)

// fakeBackend is the in-memory stand-in for the hosted service.
type fakeBackend struct {
	t  *testing.T
	mr *miniredis.Miniredis

	userID uuid.UUID

	mu           sync.Mutex
	profiles     map[uuid.UUID]models.Profile
	posts        []models.Post
	comments     []models.Comment
	failPosts    bool
	failComments bool
	failCats     bool
	failUser     bool

	holdMu sync.Mutex
	holds  map[string]chan struct{}

	postFetches    atomic.Int64
	commentFetches atomic.Int64
	commentInserts atomic.Int64
	commentDeletes atomic.Int64

	lastRange       atomic.Value // string
	lastDeleteQuery atomic.Value // url.Values
}

// newHarness starts the fake backend and returns it with a client pointed at
// it. One author profile is always seeded.
func newHarness(t *testing.T) (*fakeBackend, *backend.Client) {
	t.Helper()

	fb := &fakeBackend{
		t:        t,
		mr:       miniredis.RunT(t),
		userID:   uuid.New(),
		profiles: make(map[uuid.UUID]models.Profile),
	}
	fb.seedProfile(fb.userID, "ada")

	srv := httptest.NewServer(fb.router())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		BackendURL:         srv.URL,
		APIKey:             "test-anon-key",
		RealtimeAddr:       fb.mr.Addr(),
		HTTPTimeoutSeconds: 5,
	}
	client := backend.New(cfg)
	t.Cleanup(func() { client.Close() })

	return fb, client
}

func (fb *fakeBackend) seedProfile(id uuid.UUID, username string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.profiles[id] = models.Profile{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (fb *fakeBackend) dropProfile(id uuid.UUID) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.profiles, id)
}

// seedPosts adds n published posts with descending published_at, newest
// first matching seed order, plus one category on each.
func (fb *fakeBackend) seedPosts(n int) []models.Post {
	faker := gofakeit.New(42)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := 0; i < n; i++ {
		at := base.Add(-time.Duration(i) * time.Hour)
		fb.posts = append(fb.posts, models.Post{
			ID:          uuid.New(),
			Title:       faker.Sentence(3),
			Slug:        fmt.Sprintf("post-%d", i+1),
			Content:     faker.Paragraph(1, 3, 12, " "),
			Published:   true,
			PublishedAt: &at,
			AuthorID:    fb.userID,
			CreatedAt:   at,
			UpdatedAt:   at,
			Categories: []models.Category{{
				ID:   uuid.New(),
				Name: faker.HackerNoun(),
				Slug: fmt.Sprintf("cat-%d", i+1),
			}},
		})
	}
	return append([]models.Post(nil), fb.posts...)
}

// seedComments adds n comments on a post with ascending created_at.
func (fb *fakeBackend) seedComments(postID uuid.UUID, n int) {
	faker := gofakeit.New(7)
	base := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		fb.comments = append(fb.comments, models.Comment{
			ID:        uuid.New(),
			PostID:    postID,
			AuthorID:  fb.userID,
			Content:   faker.Sentence(6),
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
}

// echoInsert publishes the realtime event the backend emits after a comment
// insert. postID may differ from any stored comment for negative tests.
func (fb *fakeBackend) echoInsert(postID uuid.UUID, record any) {
	payload, err := json.Marshal(map[string]any{
		"table":  "comments",
		"type":   "INSERT",
		"record": record,
	})
	if err != nil {
		fb.t.Fatalf("marshal echo payload: %v", err)
	}
	fb.mr.Publish("realtime:"+backend.CommentsChannel(postID), string(payload))
}

// insertRemoteComment simulates another client commenting: the row appears
// in storage and the realtime echo is published.
func (fb *fakeBackend) insertRemoteComment(postID uuid.UUID, content string) models.Comment {
	now := time.Now()
	cm := models.Comment{
		ID:        uuid.New(),
		PostID:    postID,
		AuthorID:  fb.userID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fb.mu.Lock()
	fb.comments = append(fb.comments, cm)
	fb.mu.Unlock()
	fb.echoInsert(postID, cm)
	return cm
}

func (fb *fakeBackend) setFail(posts, comments, cats bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failPosts, fb.failComments, fb.failCats = posts, comments, cats
}

func (fb *fakeBackend) setFailUser(fail bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failUser = fail
}

// addHold registers a gate for a request key; matching handlers block until
// the returned release function is called.
func (fb *fakeBackend) addHold(key string) func() {
	ch := make(chan struct{})
	fb.holdMu.Lock()
	if fb.holds == nil {
		fb.holds = make(map[string]chan struct{})
	}
	fb.holds[key] = ch
	fb.holdMu.Unlock()
	return func() { close(ch) }
}

func (fb *fakeBackend) holdGate(key string) <-chan struct{} {
	fb.holdMu.Lock()
	defer fb.holdMu.Unlock()
	return fb.holds[key]
}

// holdComments blocks comment fetches for one post until released.
func (fb *fakeBackend) holdComments(postID uuid.UUID) func() {
	return fb.addHold("comments:" + postID.String())
}

// holdPost blocks post fetches for one slug until released.
func (fb *fakeBackend) holdPost(slug string) func() {
	return fb.addHold("posts:" + slug)
}

func (fb *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/v1/token", func(w http.ResponseWriter, req *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(req.Body).Decode(&creds)
		if creds.Email != testEmail || creds.Password != testPassword {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  testAccessToken,
			"token_type":    "bearer",
			"refresh_token": "refresh-abc",
			"expires_in":    3600,
			"user":          map[string]any{"id": fb.userID, "email": testEmail},
		})
	})

	r.Get("/auth/v1/user", func(w http.ResponseWriter, req *http.Request) {
		fb.mu.Lock()
		fail := fb.failUser
		fb.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"unavailable"}`, http.StatusInternalServerError)
			return
		}
		if req.Header.Get("Authorization") != "Bearer "+testAccessToken {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"id": fb.userID, "email": testEmail})
	})

	r.Post("/auth/v1/logout", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/rest/v1/profiles", fb.handleProfiles)
	r.Get("/rest/v1/posts", fb.handlePosts)
	r.Get("/rest/v1/categories", fb.handleCategories)
	r.Get("/rest/v1/comments", fb.handleComments)
	r.Post("/rest/v1/comments", fb.handleCommentInsert)
	r.Delete("/rest/v1/comments", fb.handleCommentDelete)

	return r
}

func (fb *fakeBackend) handleProfiles(w http.ResponseWriter, req *http.Request) {
	id, err := uuid.Parse(eqValue(req, "id"))
	if err != nil {
		http.Error(w, `{"message":"bad id"}`, http.StatusBadRequest)
		return
	}

	fb.mu.Lock()
	p, ok := fb.profiles[id]
	fb.mu.Unlock()

	if wantsSingle(req) {
		if !ok {
			notAcceptable(w)
			return
		}
		writeJSON(w, p)
		return
	}
	rows := []models.Profile{}
	if ok {
		rows = append(rows, p)
	}
	writeJSON(w, rows)
}

func (fb *fakeBackend) handlePosts(w http.ResponseWriter, req *http.Request) {
	fb.postFetches.Add(1)
	fb.lastRange.Store(req.Header.Get("Range"))
	if gate := fb.holdGate("posts:" + eqValue(req, "slug")); gate != nil {
		<-gate
	}

	fb.mu.Lock()
	fail := fb.failPosts
	rows := append([]models.Post(nil), fb.posts...)
	profiles := fb.profiles
	fb.mu.Unlock()

	if fail {
		http.Error(w, `{"message":"storage down"}`, http.StatusInternalServerError)
		return
	}

	if eqValue(req, "published") == "true" {
		filtered := rows[:0]
		for _, p := range rows {
			if p.Published {
				filtered = append(filtered, p)
			}
		}
		rows = filtered
	}
	if slug := eqValue(req, "slug"); slug != "" {
		filtered := []models.Post{}
		for _, p := range rows {
			if p.Slug == slug {
				filtered = append(filtered, p)
			}
		}
		rows = filtered
	}

	if strings.HasPrefix(req.URL.Query().Get("order"), "published_at.desc") {
		sort.Slice(rows, func(i, j int) bool {
			return rows[j].PublishedAt.Before(*rows[i].PublishedAt)
		})
	}

	// Join the author profile when the select embeds it.
	if strings.Contains(req.URL.Query().Get("select"), "author:profiles") {
		for i := range rows {
			if p, ok := profiles[rows[i].AuthorID]; ok {
				author := p
				rows[i].Author = &author
			}
		}
	}

	if from, to, ok := parseRange(req); ok {
		if from >= len(rows) {
			rows = nil
		} else {
			if to >= len(rows) {
				to = len(rows) - 1
			}
			rows = rows[from : to+1]
		}
	}

	if wantsSingle(req) {
		if len(rows) != 1 {
			notAcceptable(w)
			return
		}
		writeJSON(w, rows[0])
		return
	}
	writeJSON(w, rows)
}

func (fb *fakeBackend) handleCategories(w http.ResponseWriter, req *http.Request) {
	fb.mu.Lock()
	fail := fb.failCats
	set := map[string]models.Category{}
	for _, p := range fb.posts {
		for _, c := range p.Categories {
			set[c.Slug] = c
		}
	}
	fb.mu.Unlock()

	if fail {
		http.Error(w, `{"message":"storage down"}`, http.StatusInternalServerError)
		return
	}

	rows := make([]models.Category, 0, len(set))
	for _, c := range set {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	writeJSON(w, rows)
}

func (fb *fakeBackend) handleComments(w http.ResponseWriter, req *http.Request) {
	fb.commentFetches.Add(1)
	if gate := fb.holdGate("comments:" + eqValue(req, "post_id")); gate != nil {
		<-gate
	}

	fb.mu.Lock()
	fail := fb.failComments
	rows := []models.Comment{}
	for _, c := range fb.comments {
		if eqValue(req, "post_id") == c.PostID.String() {
			rows = append(rows, c)
		}
	}
	profiles := fb.profiles
	fb.mu.Unlock()

	if fail {
		http.Error(w, `{"message":"storage down"}`, http.StatusInternalServerError)
		return
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	if strings.Contains(req.URL.Query().Get("select"), "author:profiles") {
		for i := range rows {
			if p, ok := profiles[rows[i].AuthorID]; ok {
				author := p
				rows[i].Author = &author
			}
		}
	}
	writeJSON(w, rows)
}

func (fb *fakeBackend) handleCommentInsert(w http.ResponseWriter, req *http.Request) {
	var row models.NewComment
	if err := json.NewDecoder(req.Body).Decode(&row); err != nil {
		http.Error(w, `{"message":"bad row"}`, http.StatusBadRequest)
		return
	}
	fb.commentInserts.Add(1)

	now := time.Now()
	cm := models.Comment{
		ID:        uuid.New(),
		PostID:    row.PostID,
		AuthorID:  row.AuthorID,
		Content:   row.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fb.mu.Lock()
	fb.comments = append(fb.comments, cm)
	fb.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	fb.echoInsert(cm.PostID, cm)
}

func (fb *fakeBackend) handleCommentDelete(w http.ResponseWriter, req *http.Request) {
	fb.commentDeletes.Add(1)
	fb.lastDeleteQuery.Store(req.URL.Query())

	id := eqValue(req, "id")
	authorID := eqValue(req, "author_id")

	fb.mu.Lock()
	kept := fb.comments[:0]
	for _, c := range fb.comments {
		if c.ID.String() == id && c.AuthorID.String() == authorID {
			continue
		}
		kept = append(kept, c)
	}
	fb.comments = kept
	fb.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// ---------- request helpers ----------

// eqValue extracts the value of a column=eq.value query parameter.
func eqValue(req *http.Request, column string) string {
	return strings.TrimPrefix(req.URL.Query().Get(column), "eq.")
}

func wantsSingle(req *http.Request) bool {
	return req.Header.Get("Accept") == "application/vnd.pgrst.object+json"
}

func parseRange(req *http.Request) (from, to int, ok bool) {
	h := req.Header.Get("Range")
	if h == "" {
		return 0, 0, false
	}
	if n, err := fmt.Sscanf(h, "%d-%d", &from, &to); err != nil || n != 2 {
		return 0, 0, false
	}
	return from, to, true
}

func notAcceptable(w http.ResponseWriter) {
	http.Error(w,
		`{"message":"JSON object requested, multiple (or no) rows returned"}`,
		http.StatusNotAcceptable)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// ---------- test helpers ----------

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settled reports whether a tri-state has settled without error.
func settled[T any](s State[T]) bool {
	return !s.Loading && s.Err == ""
}

// lastDelete returns the query of the most recent delete, or nil.
func (fb *fakeBackend) lastDelete() url.Values {
	v, _ := fb.lastDeleteQuery.Load().(url.Values)
	return v
}

// lastRangeHeader returns the Range header of the most recent posts fetch.
func (fb *fakeBackend) lastRangeHeader() string {
	v, _ := fb.lastRange.Load().(string)
	return v
}

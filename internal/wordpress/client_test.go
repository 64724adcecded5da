package wordpress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"catalog-sync/internal/config"
)

const testToken = "tok-1"

// fakeCMS is a minimal WordPress REST API with JWT auth.
type fakeCMS struct {
	mu       sync.Mutex
	logins   atomic.Int32
	posts    []Post
	users    []user
	created  []map[string]any
	edited   map[int64]map[string]any
	deleted  []string
	status   map[string]int
	media    []string
	nextID   int64
	pageSize int
}

func newFakeCMS() *fakeCMS {
	return &fakeCMS{
		users:    []user{{ID: 3, Name: "someone"}, {ID: 7, Name: "publisher"}},
		edited:   map[int64]map[string]any{},
		status:   map[string]int{},
		nextID:   100,
		pageSize: 100,
	}
}

func (f *fakeCMS) statusFor(key string, def int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[key]; ok {
		return s
	}
	return def
}

func (f *fakeCMS) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+testToken
}

func (f *fakeCMS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jwt-auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		if r.FormValue("username") != "publisher" || r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": testToken})
	})
	mux.HandleFunc("POST /api/jwt-auth/v1/token/validate", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(f.statusFor("validate", http.StatusOK))
	})
	mux.HandleFunc("GET /api/wp/v2/users/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(f.users)
	})
	mux.HandleFunc("GET /api/wp/v2/course", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status := f.statusFor("list", 0); status != 0 {
			w.WriteHeader(status)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		pages := (len(f.posts) + f.pageSize - 1) / f.pageSize
		start := (page - 1) * f.pageSize
		end := min(start+f.pageSize, len(f.posts))
		w.Header().Set("X-WP-TotalPages", strconv.Itoa(pages))
		if start >= len(f.posts) {
			w.Write([]byte("[]"))
			return
		}
		json.NewEncoder(w).Encode(f.posts[start:end])
	})
	mux.HandleFunc("POST /api/wp/v2/course", func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		json.NewDecoder(r.Body).Decode(&data)
		f.mu.Lock()
		f.created = append(f.created, data)
		f.nextID++
		id := f.nextID
		f.mu.Unlock()
		w.WriteHeader(f.statusFor("create", http.StatusCreated))
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
	mux.HandleFunc("PUT /api/wp/v2/course/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var data map[string]any
		json.NewDecoder(r.Body).Decode(&data)
		f.mu.Lock()
		f.edited[id] = data
		f.mu.Unlock()
		w.WriteHeader(f.statusFor("edit", http.StatusOK))
	})
	mux.HandleFunc("DELETE /api/wp/v2/course/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id")+"?force="+r.URL.Query().Get("force"))
		f.mu.Unlock()
		w.WriteHeader(f.statusFor("delete", http.StatusOK))
	})
	mux.HandleFunc("POST /api/wp/v2/media", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.media = append(f.media, r.Header.Get("Content-Disposition")+"|"+string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 55}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeCMS) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(config.MarketingConfig{APIURL: srv.URL + "/api/", Username: "publisher", Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func acf(locator string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"open_edx_meta":{"data_locator":%q}}`, locator))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.MarketingConfig{APIURL: "http://cms"}, nil)
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestUserID(t *testing.T) {
	f := newFakeCMS()
	c := newTestClient(t, f)

	id, err := c.UserID(t.Context())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != 7 {
		t.Errorf("Expected user id 7, got %d", id)
	}
	if _, err := c.UserID(t.Context()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := f.logins.Load(); got != 1 {
		t.Errorf("Expected 1 login, got %d", got)
	}
}

func TestUserIDUnknownUser(t *testing.T) {
	f := newFakeCMS()
	f.users = []user{{ID: 3, Name: "someone"}}
	c := newTestClient(t, f)

	_, err := c.UserID(t.Context())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		validate int
	}{
		{name: "Bad credentials", password: "wrong", validate: http.StatusOK},
		{name: "Token rejected by validate", password: "secret", validate: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeCMS()
			f.status["validate"] = tc.validate
			srv := httptest.NewServer(f.handler())
			defer srv.Close()
			c, _ := New(config.MarketingConfig{APIURL: srv.URL + "/api", Username: "publisher", Password: tc.password}, nil)

			_, err := c.ListPosts(t.Context(), "course")
			if !errors.Is(err, ErrAuth) {
				t.Errorf("Expected ErrAuth, got %v", err)
			}
			if !errors.Is(err, ErrPostList) {
				t.Errorf("Expected ErrPostList, got %v", err)
			}
		})
	}
}

func TestListPostsPaginates(t *testing.T) {
	f := newFakeCMS()
	f.pageSize = 2
	f.posts = []Post{
		{ID: 1, ACF: acf("a")},
		{ID: 2, ACF: json.RawMessage("false")},
		{ID: 3, ACF: acf("c")},
	}
	c := newTestClient(t, f)

	posts, err := c.ListPosts(t.Context(), "course")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("Expected 3 posts, got %d", len(posts))
	}
	if posts[2].ID != 3 {
		t.Errorf("Expected last post id 3, got %d", posts[2].ID)
	}
}

func TestPostField(t *testing.T) {
	testCases := []struct {
		name        string
		acf         string
		expectValue string
		expectOK    bool
		expectError bool
	}{
		{name: "Match", acf: `{"open_edx_meta":{"data_locator":"x"}}`, expectValue: "x", expectOK: true},
		{name: "ACF false", acf: `false`},
		{name: "ACF empty", acf: ``},
		{name: "ACF empty object", acf: `{}`},
		{name: "ACF empty list", acf: `[]`},
		{name: "Missing group", acf: `{"other":{}}`, expectError: true},
		{name: "Missing field", acf: `{"open_edx_meta":{}}`, expectOK: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok, err := Post{ID: 1, ACF: json.RawMessage(tc.acf)}.Field("open_edx_meta", "data_locator")
			if (err != nil) != tc.expectError {
				t.Fatalf("Expected error=%v, got %v", tc.expectError, err)
			}
			if ok != tc.expectOK {
				t.Errorf("Expected ok=%v, got %v", tc.expectOK, ok)
			}
			if v != tc.expectValue {
				t.Errorf("Expected value %q, got %q", tc.expectValue, v)
			}
		})
	}
}

func TestPostWrites(t *testing.T) {
	f := newFakeCMS()
	c := newTestClient(t, f)
	ctx := t.Context()

	id, err := c.CreatePost(ctx, "course", map[string]any{"title": "Intro"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if id != 101 {
		t.Errorf("Expected created id 101, got %d", id)
	}
	if len(f.created) != 1 || f.created[0]["title"] != "Intro" {
		t.Errorf("Expected created payload with title, got %v", f.created)
	}

	if err := c.EditPost(ctx, "course", id, map[string]any{"title": "Intro 2"}); err != nil {
		t.Fatalf("EditPost: %v", err)
	}
	if f.edited[101]["title"] != "Intro 2" {
		t.Errorf("Expected edited payload, got %v", f.edited[101])
	}

	if err := c.DeletePost(ctx, "course", id); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "101?force=true" {
		t.Errorf("Expected forced delete of 101, got %v", f.deleted)
	}
}

func TestPostWriteStatusErrors(t *testing.T) {
	testCases := []struct {
		name   string
		key    string
		status int
		call   func(c *Client) error
		expect error
	}{
		{
			name: "Create answers 200", key: "create", status: http.StatusOK, expect: ErrPostCreate,
			call: func(c *Client) error { _, err := c.CreatePost(t.Context(), "course", map[string]any{}); return err },
		},
		{
			name: "Edit answers 201", key: "edit", status: http.StatusCreated, expect: ErrPostEdit,
			call: func(c *Client) error { return c.EditPost(t.Context(), "course", 5, map[string]any{}) },
		},
		{
			name: "Edit answers 500", key: "edit", status: http.StatusInternalServerError, expect: ErrPostEdit,
			call: func(c *Client) error { return c.EditPost(t.Context(), "course", 5, map[string]any{}) },
		},
		{
			name: "Delete answers 404", key: "delete", status: http.StatusNotFound, expect: ErrPostDelete,
			call: func(c *Client) error { return c.DeletePost(t.Context(), "course", 5) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeCMS()
			f.status[tc.key] = tc.status
			c := newTestClient(t, f)

			err := tc.call(c)
			if !errors.Is(err, tc.expect) {
				t.Fatalf("Expected %v, got %v", tc.expect, err)
			}
			var werr *Error
			if !errors.As(err, &werr) || werr.StatusCode != tc.status {
				t.Errorf("Expected *Error with status %d, got %v", tc.status, err)
			}
		})
	}
}

func TestUnauthorizedLogsInAgain(t *testing.T) {
	f := newFakeCMS()
	c := newTestClient(t, f)
	ctx := t.Context()

	if _, err := c.ListPosts(ctx, "course"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// Swap the cached token for a stale one; the CMS rejects it.
	c.tokens.mu.Lock()
	c.tokens.token = "stale"
	c.tokens.mu.Unlock()

	if _, err := c.ListPosts(ctx, "course"); err != nil {
		t.Fatalf("Expected the request to succeed after a fresh login, got %v", err)
	}
	if got := f.logins.Load(); got != 2 {
		t.Errorf("Expected 2 logins, got %d", got)
	}
}

func TestListPostsFailures(t *testing.T) {
	testCases := []struct {
		name           string
		status         int
		expectedLogins int32
	}{
		{name: "Server error", status: http.StatusInternalServerError, expectedLogins: 1},
		{name: "Rejected after fresh login", status: http.StatusUnauthorized, expectedLogins: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeCMS()
			f.status["list"] = tc.status
			c := newTestClient(t, f)

			_, err := c.ListPosts(t.Context(), "course")
			if !errors.Is(err, ErrPostList) {
				t.Fatalf("Expected ErrPostList, got %v", err)
			}
			if errors.Is(err, ErrPostLookup) {
				t.Errorf("Expected a list failure not to read as a missing post, got %v", err)
			}
			var werr *Error
			if !errors.As(err, &werr) || werr.StatusCode != tc.status {
				t.Errorf("Expected *Error with status %d, got %v", tc.status, err)
			}
			if got := f.logins.Load(); got != tc.expectedLogins {
				t.Errorf("Expected %d logins, got %d", tc.expectedLogins, got)
			}
		})
	}
}

func TestCreateMedia(t *testing.T) {
	f := newFakeCMS()
	c := newTestClient(t, f)

	id, err := c.CreateMedia(t.Context(), "banner.jpg", "image/jpeg", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != 55 {
		t.Errorf("Expected media id 55, got %d", id)
	}
	if len(f.media) != 1 || f.media[0] != `attachment; filename="banner.jpg"|img` {
		t.Errorf("Expected uploaded media, got %v", f.media)
	}
}

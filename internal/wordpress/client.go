package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalog-sync/internal/config"
	"catalog-sync/internal/httpx"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/metrics"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"

	// listPageSize is the largest page the WordPress REST API serves.
	listPageSize = 100
)

// Client talks to the WordPress REST API of a partner's marketing site.
// Every call is made once; failures surface to the caller.
type Client struct {
	APIURL string
	HTTP   *http.Client

	username string
	password string
	tokens   *TokenCache
	log      *logger.Logger

	userMu sync.Mutex
	userID int64
}

func New(cfg config.MarketingConfig, log *logger.Logger) (*Client, error) {
	if cfg.APIURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, &Error{Kind: ErrAuth, Op: "configure", Err: errors.New("api url, username and password are required")}
	}
	if log == nil {
		log = logger.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	tr := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		APIURL:   strings.TrimRight(cfg.APIURL, "/"),
		HTTP:     &http.Client{Timeout: timeout, Transport: tr},
		username: cfg.Username,
		password: cfg.Password,
		log:      log.With("component", "wordpress"),
	}
	c.tokens = NewTokenCache(cfg.TokenTTL, c.login)
	return c, nil
}

// Post is one entry of a post listing. WordPress renders ACF as false when a
// post has no custom fields.
type Post struct {
	ID  int64           `json:"id"`
	ACF json.RawMessage `json:"acf"`
}

// Field returns acf[group][field] as a string. ok is false when the post has
// no custom fields at all; a post with fields but without group is an error.
func (p Post) Field(group, field string) (value string, ok bool, err error) {
	raw := bytes.TrimSpace(p.ACF)
	if len(raw) == 0 || raw[0] != '{' {
		return "", false, nil
	}
	var acf map[string]json.RawMessage
	if err := json.Unmarshal(raw, &acf); err != nil {
		return "", false, err
	}
	if len(acf) == 0 {
		return "", false, nil
	}
	g, found := acf[group]
	if !found {
		return "", false, fmt.Errorf("post %d has no %q field group", p.ID, group)
	}
	var fields map[string]any
	if err := json.Unmarshal(g, &fields); err != nil {
		return "", false, fmt.Errorf("post %d field group %q: %w", p.ID, group, err)
	}
	v, _ := fields[field].(string)
	return v, true, nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

type user struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// login obtains a JWT and checks it against the validate endpoint.
func (c *Client) login(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	payload := form.Encode()

	var tr tokenResponse
	err := httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/jwt-auth/v1/token", strings.NewReader(payload))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", contentTypeForm)
			r.Header.Set("Accept", contentTypeJSON)
			return r, nil
		},
		&tr,
		httpx.NoRetry(),
	)
	if err != nil {
		return "", authError("login", err)
	}
	if tr.Token == "" {
		return "", &Error{Kind: ErrAuth, Op: "login", Err: errors.New("empty token in response")}
	}

	resp, _, err := httpx.DoWithRetry(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/jwt-auth/v1/token/validate", nil)
			if err != nil {
				return nil, err
			}
			r.Header.Set("Authorization", "Bearer "+tr.Token)
			return r, nil
		},
		httpx.NoRetry(),
	)
	if err != nil {
		return "", authError("validate token", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: ErrAuth, Op: "validate token", StatusCode: resp.StatusCode}
	}
	c.log.Debug("obtained cms token", "username", c.username)
	return tr.Token, nil
}

func authError(op string, err error) *Error {
	e := &Error{Kind: ErrAuth, Op: op, Err: err}
	var herr *httpx.HTTPError
	if errors.As(err, &herr) {
		e.StatusCode = herr.StatusCode
		e.Body = string(herr.Body)
		e.Err = nil
	}
	return e
}

// UserID returns the id of the configured user, discovering it on first use.
func (c *Client) UserID(ctx context.Context) (int64, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if c.userID != 0 {
		return c.userID, nil
	}

	_, body, err := c.do(ctx, "list users", http.MethodGet, c.APIURL+"/wp/v2/users/?per_page="+strconv.Itoa(listPageSize), nil, "")
	if err != nil {
		return 0, authError("list users", err)
	}
	var users []user
	if err := json.Unmarshal(body, &users); err != nil {
		return 0, &Error{Kind: ErrAuth, Op: "list users", Err: err}
	}
	for _, u := range users {
		if u.Name == c.username {
			c.userID = u.ID
			return u.ID, nil
		}
	}
	return 0, &Error{Kind: ErrAuth, Op: "list users", Err: fmt.Errorf("no user named %q", c.username)}
}

func (c *Client) postsURL(postType string) string {
	return c.APIURL + "/wp/v2/" + postType
}

// ListPosts returns every post of the given type. Any failure is an ErrPostList;
// it never means the post is absent.
func (c *Client) ListPosts(ctx context.Context, postType string) ([]Post, error) {
	var all []Post
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s?per_page=%d&page=%d", c.postsURL(postType), listPageSize, page)
		resp, body, err := c.do(ctx, "list "+postType, http.MethodGet, u, nil, "")
		if err != nil {
			return nil, cmsError(ErrPostList, "list "+postType, 0, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &Error{Kind: ErrPostList, Op: "list " + postType, StatusCode: resp.StatusCode, Body: string(body)}
		}
		var posts []Post
		if err := json.Unmarshal(body, &posts); err != nil {
			return nil, &Error{Kind: ErrPostList, Op: "list " + postType, Err: err}
		}
		all = append(all, posts...)

		pages, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
		if page >= pages || len(posts) == 0 {
			return all, nil
		}
	}
}

// CreatePost creates a post and returns its id. The CMS must answer 201.
func (c *Client) CreatePost(ctx context.Context, postType string, data any) (int64, error) {
	op := "create " + postType
	b, err := json.Marshal(data)
	if err != nil {
		return 0, &Error{Kind: ErrPostCreate, Op: op, Err: err}
	}
	resp, body, err := c.do(ctx, op, http.MethodPost, c.postsURL(postType), b, contentTypeJSON)
	if err != nil {
		return 0, cmsError(ErrPostCreate, op, 0, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, &Error{Kind: ErrPostCreate, Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == 0 {
		return 0, &Error{Kind: ErrPostCreate, Op: op, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	return created.ID, nil
}

// EditPost replaces the fields of an existing post. The CMS must answer 200.
func (c *Client) EditPost(ctx context.Context, postType string, id int64, data any) error {
	op := "edit " + postType
	b, err := json.Marshal(data)
	if err != nil {
		return &Error{Kind: ErrPostEdit, Op: op, PostID: id, Err: err}
	}
	u := fmt.Sprintf("%s/%d", c.postsURL(postType), id)
	resp, body, err := c.do(ctx, op, http.MethodPut, u, b, contentTypeJSON)
	if err != nil {
		return cmsError(ErrPostEdit, op, id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: ErrPostEdit, Op: op, PostID: id, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// DeletePost permanently deletes a post, bypassing the trash.
func (c *Client) DeletePost(ctx context.Context, postType string, id int64) error {
	op := "delete " + postType
	u := fmt.Sprintf("%s/%d?force=true", c.postsURL(postType), id)
	resp, body, err := c.do(ctx, op, http.MethodDelete, u, nil, "")
	if err != nil {
		return cmsError(ErrPostDelete, op, id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: ErrPostDelete, Op: op, PostID: id, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// CreateMedia uploads a file to the media library and returns its id.
func (c *Client) CreateMedia(ctx context.Context, filename, contentType string, r io.Reader) (int64, error) {
	op := "create media"
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, &Error{Kind: ErrMediaCreate, Op: op, Err: err}
	}
	if contentType == "" {
		contentType = http.DetectContentType(b)
	}
	resp, body, err := c.send(ctx, op, http.MethodPost, c.APIURL+"/wp/v2/media", b, func(h http.Header) {
		h.Set("Content-Type", contentType)
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	})
	if err != nil {
		return 0, cmsError(ErrMediaCreate, op, 0, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, &Error{Kind: ErrMediaCreate, Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, &Error{Kind: ErrMediaCreate, Op: op, Body: string(body), Err: err}
	}
	return created.ID, nil
}

func cmsError(kind error, op string, id int64, err error) *Error {
	e := &Error{Kind: kind, Op: op, PostID: id, Err: err}
	var herr *httpx.HTTPError
	if errors.As(err, &herr) {
		e.StatusCode = herr.StatusCode
		e.Body = string(herr.Body)
		e.Err = nil
	}
	return e
}

func (c *Client) do(ctx context.Context, op, method, u string, body []byte, contentType string) (*http.Response, []byte, error) {
	return c.send(ctx, op, method, u, body, func(h http.Header) {
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
	})
}

// send issues one authenticated request. When the CMS rejects the token with a
// 401 or 403, the token is dropped and the request is sent once more after a
// fresh login.
func (c *Client) send(ctx context.Context, op, method, u string, body []byte, headers func(http.Header)) (*http.Response, []byte, error) {
	resp, respBody, err := c.attempt(ctx, method, u, body, headers)
	if tokenRejected(err) {
		c.tokens.Invalidate()
		c.log.Debug("cms rejected token, logging in again", "op", op)
		resp, respBody, err = c.attempt(ctx, method, u, body, headers)
		if tokenRejected(err) {
			c.tokens.Invalidate()
		}
	}
	if err != nil {
		metrics.CMSRequests.WithLabelValues(op, "error").Inc()
		c.log.Debug("cms request failed", "op", op, "url", u, "error", err)
		return resp, respBody, err
	}
	metrics.CMSRequests.WithLabelValues(op, "ok").Inc()
	return resp, respBody, nil
}

func (c *Client) attempt(ctx context.Context, method, u string, body []byte, headers func(http.Header)) (*http.Response, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}
	return httpx.DoWithRetry(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			var rd io.Reader
			if body != nil {
				rd = bytes.NewReader(body)
			}
			r, err := http.NewRequestWithContext(ctx, method, u, rd)
			if err != nil {
				return nil, err
			}
			r.Header.Set("Accept", contentTypeJSON)
			r.Header.Set("Authorization", "Bearer "+token)
			headers(r.Header)
			return r, nil
		},
		httpx.NoRetry(),
	)
}

func tokenRejected(err error) bool {
	var herr *httpx.HTTPError
	return errors.As(err, &herr) && (herr.StatusCode == http.StatusUnauthorized || herr.StatusCode == http.StatusForbidden)
}

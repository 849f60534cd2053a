package studlyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"studly/internal/config"
	"studly/internal/metrics"
	"studly/internal/model"
)

// ContentAPI is the part of the Studly backend the feed session consumes.
// Records come back raw; normalization is the caller's job.
type ContentAPI interface {
	GetFeed(ctx context.Context, limit, page int) ([]model.RawPost, error)
	GetPosts(ctx context.Context, limit, page int) ([]model.RawPost, error)
	GetPost(ctx context.Context, id string) (model.RawPost, error)
	GetUserPosts(ctx context.Context, username string) ([]model.RawPost, error)
	CreatePost(ctx context.Context, in NewPost) (model.RawPost, error)
	LikePost(ctx context.Context, id string) error
	UnlikePost(ctx context.Context, id string) error
	BookmarkPost(ctx context.Context, id string) error
	UnbookmarkPost(ctx context.Context, id string) error
	GetComments(ctx context.Context, postID string) ([]model.RawComment, error)
	CreateComment(ctx context.Context, postID, content, parentCommentID string) (model.RawComment, error)
	LikeComment(ctx context.Context, commentID, postID string) error
	UnlikeComment(ctx context.Context, commentID, postID string) error
	GetBookmarks(ctx context.Context) ([]model.RawPost, error)
}

// NewPost is the body of a create-post request.
type NewPost struct {
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

// Options tunes an HTTPClient. Zero values pick defaults.
type Options struct {
	Timeout     time.Duration
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseBackoff time.Duration
}

// HTTPClient talks to the Studly REST API with a bearer session token.
type HTTPClient struct {
	baseURL     string
	tokenMu     sync.RWMutex
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

var _ ContentAPI = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, token string, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     newLimiter(opts.RPS, opts.Burst),
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
	}
}

// SetToken swaps the session token after login or logout.
func (c *HTTPClient) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *HTTPClient) currentToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

func (c *HTTPClient) GetFeed(ctx context.Context, limit, page int) ([]model.RawPost, error) {
	var out []model.RawPost
	err := c.getList(ctx, fmt.Sprintf("/posts/feed?limit=%d&page=%d", clamp(limit, 1, config.MaxPageSize), max(page, 1)), "posts", &out)
	return out, err
}

func (c *HTTPClient) GetPosts(ctx context.Context, limit, page int) ([]model.RawPost, error) {
	var out []model.RawPost
	err := c.getList(ctx, fmt.Sprintf("/posts?limit=%d&page=%d", clamp(limit, 1, config.MaxPageSize), max(page, 1)), "posts", &out)
	return out, err
}

func (c *HTTPClient) GetPost(ctx context.Context, id string) (model.RawPost, error) {
	var out model.RawPost
	if id == "" {
		return out, errors.New("empty post id")
	}
	err := c.getObject(ctx, "/posts/"+url.PathEscape(id), "post", &out)
	return out, err
}

func (c *HTTPClient) GetUserPosts(ctx context.Context, username string) ([]model.RawPost, error) {
	if username == "" {
		return nil, errors.New("empty username")
	}
	var out []model.RawPost
	err := c.getList(ctx, "/users/"+url.PathEscape(username)+"/posts", "posts", &out)
	return out, err
}

func (c *HTTPClient) CreatePost(ctx context.Context, in NewPost) (model.RawPost, error) {
	var out model.RawPost
	err := c.send(ctx, http.MethodPost, "/posts", in, "post", &out)
	return out, err
}

func (c *HTTPClient) LikePost(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/like", nil, "", nil)
}

func (c *HTTPClient) UnlikePost(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id)+"/like", nil, "", nil)
}

func (c *HTTPClient) BookmarkPost(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/bookmark", nil, "", nil)
}

func (c *HTTPClient) UnbookmarkPost(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id)+"/bookmark", nil, "", nil)
}

func (c *HTTPClient) GetComments(ctx context.Context, postID string) ([]model.RawComment, error) {
	var out []model.RawComment
	err := c.getList(ctx, "/posts/"+url.PathEscape(postID)+"/comments", "comments", &out)
	return out, err
}

func (c *HTTPClient) CreateComment(ctx context.Context, postID, content, parentCommentID string) (model.RawComment, error) {
	body := struct {
		Content  string `json:"content"`
		ParentID string `json:"parent_id,omitempty"`
	}{Content: content, ParentID: parentCommentID}
	var out model.RawComment
	err := c.send(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", body, "comment", &out)
	return out, err
}

func (c *HTTPClient) LikeComment(ctx context.Context, commentID, postID string) error {
	return c.send(ctx, http.MethodPost, commentLikePath(commentID, postID), nil, "", nil)
}

func (c *HTTPClient) UnlikeComment(ctx context.Context, commentID, postID string) error {
	return c.send(ctx, http.MethodDelete, commentLikePath(commentID, postID), nil, "", nil)
}

func (c *HTTPClient) GetBookmarks(ctx context.Context) ([]model.RawPost, error) {
	var out []model.RawPost
	err := c.getList(ctx, "/bookmarks", "posts", &out)
	return out, err
}

func commentLikePath(commentID, postID string) string {
	return "/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID) + "/like"
}

func (c *HTTPClient) getList(ctx context.Context, path, key string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return errors.Wrap(decodeEnvelope(body, key, out), "decode "+path)
}

func (c *HTTPClient) getObject(ctx context.Context, path, key string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, key, out)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, in any, key string, out any) error {
	body, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return errors.Wrap(decodeEnvelope(body, key, out), "decode "+path)
}

// decodeEnvelope accepts a bare value or one wrapped as {"<key>": ...} or {"data": ...}.
func decodeEnvelope(body []byte, key string, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &env); err == nil {
			for _, k := range []string{key, "data", "items", "results"} {
				if raw, ok := env[k]; ok && k != "" && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
					return json.Unmarshal(raw, out)
				}
			}
		}
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	c.auth(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *HTTPClient) auth(req *http.Request) {
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	// one id per logical request, shared by its retries
	req.Header.Set("X-Request-ID", uuid.New().String())
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(req.URL.Path)
		}
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}
		resp, err := c.httpClient.Do(attemptReq)
		if err == nil {
			if attempt < c.maxAttempts && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) {
				wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
				_ = resp.Body.Close()
				if err := sleep(ctx, jitter(wait)); err != nil {
					return nil, err
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func retryAfter(header string, def time.Duration) time.Duration {
	if header == "" {
		return def
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

// jitter spreads wait by +/-20%.
func jitter(wait time.Duration) time.Duration {
	j := time.Duration(float64(wait) * 0.2)
	if j <= 0 {
		return wait
	}
	return wait - j + time.Duration(time.Now().UnixNano()%int64(2*j))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

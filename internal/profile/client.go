package profile

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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytmdremote/internal/core"
)

// APIError is an error answer from the storage API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage API returned %d: %s", e.StatusCode, e.Message)
}

// Client is a core.ProfileStore backed by a remote storage API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ core.ProfileStore = (*Client)(nil)

type mutationResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// NewClient creates a client for the storage API at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) userPath(handle string, parts ...string) (string, error) {
	if strings.TrimSpace(handle) == "" {
		return "", core.ErrNoHandle
	}
	path := "/api/users/" + url.PathEscape(handle)
	for _, part := range parts {
		path += "/" + url.PathEscape(part)
	}
	return path, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call storage API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode storage response: %w", err)
	}
	return nil
}

// Load fetches history and likes concurrently.
func (c *Client) Load(ctx context.Context, handle string) (core.UserProfile, error) {
	historyPath, err := c.userPath(handle, "history")
	if err != nil {
		return core.UserProfile{}, err
	}
	likesPath, _ := c.userPath(handle, "likes")

	profile := core.UserProfile{Handle: handle}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.call(gctx, http.MethodGet, historyPath, nil, &profile.History)
	})
	g.Go(func() error {
		return c.call(gctx, http.MethodGet, likesPath, nil, &profile.Likes)
	})
	if err := g.Wait(); err != nil {
		return core.UserProfile{}, fmt.Errorf("failed to load profile: %w", err)
	}

	c.logger.Debug("Loaded remote profile",
		zap.String("handle", handle),
		zap.Int("history", len(profile.History)),
		zap.Int("likes", len(profile.Likes)))
	return profile, nil
}

func (c *Client) AddHistory(ctx context.Context, handle string, track core.Track) (int, error) {
	path, err := c.userPath(handle, "history")
	if err != nil {
		return 0, err
	}
	var resp mutationResponse
	if err := c.call(ctx, http.MethodPost, path, track, &resp); err != nil {
		return 0, fmt.Errorf("failed to add history: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) RemoveHistory(ctx context.Context, handle, videoID string) (int, error) {
	path, err := c.userPath(handle, "history", videoID)
	if err != nil {
		return 0, err
	}
	var resp mutationResponse
	if err := c.call(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to remove history item: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) ClearHistory(ctx context.Context, handle string) error {
	path, err := c.userPath(handle, "history")
	if err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// AddLike reports added=false when the API answers "Already liked".
func (c *Client) AddLike(ctx context.Context, handle string, track core.Track) (int, bool, error) {
	path, err := c.userPath(handle, "likes")
	if err != nil {
		return 0, false, err
	}
	var resp mutationResponse
	if err := c.call(ctx, http.MethodPost, path, track, &resp); err != nil {
		return 0, false, fmt.Errorf("failed to add like: %w", err)
	}
	return resp.Count, resp.Message == "", nil
}

func (c *Client) RemoveLike(ctx context.Context, handle, videoID string) (int, error) {
	path, err := c.userPath(handle, "likes", videoID)
	if err != nil {
		return 0, err
	}
	var resp mutationResponse
	if err := c.call(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to remove like: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) ClearLikes(ctx context.Context, handle string) error {
	path, err := c.userPath(handle, "likes")
	if err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to clear likes: %w", err)
	}
	return nil
}

// Seed fetches the recommendation metadata for handle.
func (c *Client) Seed(ctx context.Context, handle string, limit int) (Seed, error) {
	path, err := c.userPath(handle, "recommendations")
	if err != nil {
		return Seed{}, err
	}
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var seed Seed
	if err := c.call(ctx, http.MethodGet, path, nil, &seed); err != nil {
		return Seed{}, fmt.Errorf("failed to get recommendations: %w", err)
	}
	return seed, nil
}

// Package player talks to the desktop music player's local REST API.
package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
)

const (
	defaultSearchCacheSize = 64
	maxResponseBytes       = 8 << 20
	// seekTolerance is how far a read-back position may be from the request
	// before the requested value is trusted instead.
	seekTolerance = 5
)

var errInvalidPayload = errors.New("invalid player payload")

// LikeState is the player's rating of the playing track.
type LikeState string

const (
	LikeUnknown     LikeState = ""
	LikeIndifferent LikeState = "INDIFFERENT"
	LikeLike        LikeState = "LIKE"
	LikeDislike     LikeState = "DISLIKE"
)

// StatusError is a non-2xx answer from the player.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("player returned status %d for %s %s", e.StatusCode, e.Method, e.Path)
}

func (e *StatusError) Unwrap() error {
	return core.ErrRemoteUnavailable
}

// ErrorRecorder receives one call per failed player request.
type ErrorRecorder interface {
	RecordGatewayError(endpoint string)
}

// Client implements core.PlayerGateway over HTTP.
//
// Reads that feed the UI fail soft: errors are logged and a neutral default
// is returned. Mutations and snapshot reads return their error.
type Client struct {
	mutex   sync.RWMutex
	baseURL string

	httpClient *http.Client
	logger     *zap.Logger
	cache      *lru.Cache[string, []core.Track]
	failures   ErrorRecorder
}

var _ core.PlayerGateway = (*Client)(nil)

// NewClient creates a client for the player API rooted at baseURL.
func NewClient(baseURL string, config core.PlayerConfig, logger *zap.Logger) (*Client, error) {
	size := config.SearchCacheSize
	if size <= 0 {
		size = defaultSearchCacheSize
	}
	cache, err := lru.New[string, []core.Track](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		cache:      cache,
	}, nil
}

// SetErrorRecorder installs a metrics sink for failed requests.
func (c *Client) SetErrorRecorder(recorder ErrorRecorder) {
	c.failures = recorder
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.baseURL
}

// Retarget points the client at another player and reports whether the
// address changed. Cached search results are dropped on a change.
func (c *Client) Retarget(baseURL string) bool {
	baseURL = strings.TrimRight(baseURL, "/")

	c.mutex.Lock()
	if baseURL == "" || baseURL == c.baseURL {
		c.mutex.Unlock()
		return false
	}
	previous := c.baseURL
	c.baseURL = baseURL
	c.mutex.Unlock()

	c.cache.Purge()
	c.logger.Info("Player target changed",
		zap.String("from", previous),
		zap.String("to", baseURL))
	return true
}

// BaseURLFromQuery resolves the player address from the ip/host and port
// query parameters, falling back to config.
func BaseURLFromQuery(query url.Values, config core.PlayerConfig) string {
	host := query.Get("ip")
	if host == "" {
		host = query.Get("host")
	}
	if host == "" {
		host = config.Host
	}

	port := config.Port
	if p, err := strconv.Atoi(query.Get("port")); err == nil && p > 0 && p <= 65535 {
		port = p
	}
	return core.PlayerConfig{Host: host, Port: port}.BaseURL()
}

// do sends one request and returns the response body. A 204 yields a nil body.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError(path)
		return nil, fmt.Errorf("failed to call %s %s: %w: %w", method, path, core.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(path)
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordError(path)
		return nil, fmt.Errorf("failed to read %s response: %w: %w", path, core.ErrRemoteUnavailable, err)
	}
	return body, nil
}

func (c *Client) recordError(path string) {
	if c.failures != nil {
		c.failures.RecordGatewayError(endpointLabel(path))
	}
}

// endpointLabel drops index segments so metrics keep a bounded label set.
func endpointLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	return "/" + segments[0]
}

func (c *Client) command(ctx context.Context, method, path string, payload any) error {
	_, err := c.do(ctx, method, path, payload)
	return err
}

// read performs a GET for the fail-soft accessors. ok is false when the
// caller should use its default.
func (c *Client) read(ctx context.Context, path string) ([]byte, bool) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.logger.Debug("Player read failed, using default", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil, false
	}
	return body, true
}

// GetQueue returns the remote queue. An error means no fresh snapshot.
func (c *Client) GetQueue(ctx context.Context) ([]core.QueueEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse queue: %w", errInvalidPayload)
	}
	return parseQueue(body), nil
}

// GetCurrentTrack returns the playing track, or core.NoCurrentTrack when the
// player cannot be read.
func (c *Client) GetCurrentTrack(ctx context.Context) core.PlaybackState {
	body, ok := c.read(ctx, "/song")
	if !ok {
		return core.NoCurrentTrack
	}
	return parseSong(body)
}

// Ping reports whether the player answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/song", nil)
	return err
}

func (c *Client) Enqueue(ctx context.Context, videoID string, mode core.InsertMode) error {
	return c.command(ctx, http.MethodPost, "/queue", map[string]string{
		"videoId":        videoID,
		"insertPosition": mode.String(),
	})
}

func (c *Client) DeleteAtIndex(ctx context.Context, index int) error {
	return c.command(ctx, http.MethodDelete, "/queue/"+strconv.Itoa(index), nil)
}

func (c *Client) SetCurrentIndex(ctx context.Context, index int) error {
	return c.command(ctx, http.MethodPatch, "/queue", map[string]int{"index": index})
}

func (c *Client) MoveEntry(ctx context.Context, fromIndex, toIndex int) error {
	return c.command(ctx, http.MethodPatch, "/queue/"+strconv.Itoa(fromIndex), map[string]int{"toIndex": toIndex})
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.command(ctx, http.MethodDelete, "/queue", nil)
}

func (c *Client) Play(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/play", nil)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/pause", nil)
}

func (c *Client) TogglePlay(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/toggle-play", nil)
}

func (c *Client) Next(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/next", nil)
}

func (c *Client) Previous(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/previous", nil)
}

// SeekTo moves playback to seconds and returns the position the player
// reports afterwards, or seconds when the report is not believable.
func (c *Client) SeekTo(ctx context.Context, seconds float64) float64 {
	if err := c.command(ctx, http.MethodPost, "/seek-to", map[string]float64{"seconds": seconds}); err != nil {
		c.logger.Warn("Failed to seek", zap.Float64("seconds", seconds), zap.Error(err))
		return seconds
	}

	actual := max(0, math.Round(c.GetCurrentTrack(ctx).PositionSeconds))
	if actual > 0 || math.Abs(actual-seconds) < seekTolerance {
		return actual
	}
	return seconds
}

func (c *Client) GoBack(ctx context.Context, seconds int) error {
	return c.command(ctx, http.MethodPost, "/go-back", map[string]int{"seconds": seconds})
}

func (c *Client) GoForward(ctx context.Context, seconds int) error {
	return c.command(ctx, http.MethodPost, "/go-forward", map[string]int{"seconds": seconds})
}

// GetVolume returns the player volume, or {0, false} when it cannot be read.
func (c *Client) GetVolume(ctx context.Context) core.VolumeState {
	body, ok := c.read(ctx, "/volume")
	if !ok {
		return core.VolumeState{}
	}
	return parseVolume(body)
}

// SetVolume sets the volume and returns the read-back value when it looks
// applied, otherwise the requested value.
func (c *Client) SetVolume(ctx context.Context, percent int) core.VolumeState {
	percent = min(100, max(0, percent))
	requested := core.VolumeState{Percent: percent}

	if err := c.command(ctx, http.MethodPost, "/volume", map[string]int{"volume": percent}); err != nil {
		c.logger.Warn("Failed to set volume", zap.Int("volume", percent), zap.Error(err))
		return requested
	}

	current := c.GetVolume(ctx)
	if current.Percent > 0 || (current.Percent == 0 && percent == 0) {
		return current
	}
	return requested
}

func (c *Client) ToggleMute(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/toggle-mute", nil)
}

func (c *Client) GetRepeatMode(ctx context.Context) core.RepeatMode {
	body, ok := c.read(ctx, "/repeat-mode")
	if !ok {
		return core.RepeatNone
	}
	return parseRepeatMode(body)
}

// CycleRepeatMode advances NONE → ALL → ONE and returns the new mode.
func (c *Client) CycleRepeatMode(ctx context.Context) core.RepeatMode {
	if err := c.command(ctx, http.MethodPost, "/switch-repeat", map[string]int{"iteration": 1}); err != nil {
		c.logger.Warn("Failed to switch repeat mode", zap.Error(err))
	}
	return c.GetRepeatMode(ctx)
}

func (c *Client) GetShuffle(ctx context.Context) bool {
	body, ok := c.read(ctx, "/shuffle")
	if !ok {
		return false
	}
	return gjson.GetBytes(body, "state").Bool()
}

func (c *Client) ToggleShuffle(ctx context.Context) bool {
	if err := c.command(ctx, http.MethodPost, "/shuffle", nil); err != nil {
		c.logger.Warn("Failed to toggle shuffle", zap.Error(err))
	}
	return c.GetShuffle(ctx)
}

// Search returns normalized tracks for query. Results are cached per
// normalized query.
func (c *Client) Search(ctx context.Context, query string) ([]core.Track, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if key == "" {
		return nil, nil
	}
	if cached, ok := c.cache.Get(key); ok {
		return append([]core.Track(nil), cached...), nil
	}

	body, err := c.do(ctx, http.MethodPost, "/search", map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse search results: %w", errInvalidPayload)
	}

	tracks := parseSearch(body)
	c.cache.Add(key, tracks)

	c.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("results", len(tracks)))
	return append([]core.Track(nil), tracks...), nil
}

// GetLikeState returns the player's rating of the playing track. Players
// without the endpoint answer 404, which yields LikeUnknown silently.
func (c *Client) GetLikeState(ctx context.Context) LikeState {
	body, err := c.do(ctx, http.MethodGet, "/like-state", nil)
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			c.logger.Debug("Failed to get like state", zap.Error(err))
		}
		return LikeUnknown
	}

	switch state := LikeState(gjson.GetBytes(body, "state").String()); state {
	case LikeLike, LikeDislike, LikeIndifferent:
		return state
	default:
		return LikeUnknown
	}
}

func (c *Client) Like(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/like", nil)
}

func (c *Client) Dislike(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/dislike", nil)
}

// Rate applies a like or dislike to the playing track.
func (c *Client) Rate(ctx context.Context, rating core.Rating) error {
	switch rating {
	case core.RatingLike:
		return c.Like(ctx)
	case core.RatingDislike:
		return c.Dislike(ctx)
	default:
		return fmt.Errorf("unknown rating %q", rating)
	}
}

func (c *Client) GetFullscreen(ctx context.Context) bool {
	body, ok := c.read(ctx, "/fullscreen")
	if !ok {
		return false
	}
	return gjson.GetBytes(body, "state").Bool()
}

func (c *Client) SetFullscreen(ctx context.Context, on bool) error {
	return c.command(ctx, http.MethodPost, "/fullscreen", map[string]bool{"state": on})
}

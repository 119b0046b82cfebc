package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
	"ytmdremote/internal/profile"
)

var errStageDown = errors.New("stage player offline")

// stagePlayer is an in-memory remote player.
type stagePlayer struct {
	mutex    sync.Mutex
	queue    []core.Track
	current  int
	paused   bool
	volume   core.VolumeState
	repeat   core.RepeatMode
	shuffled bool
	results  map[string][]core.Track
	offline  bool
	pings    int

	ratings    []core.Rating
	fullscreen bool
}

func newStagePlayer(tracks ...core.Track) *stagePlayer {
	current := -1
	if len(tracks) > 0 {
		current = 0
	}
	return &stagePlayer{
		queue:   append([]core.Track(nil), tracks...),
		current: current,
		volume:  core.VolumeState{Percent: core.DefaultVolume},
		repeat:  core.RepeatNone,
		results: make(map[string][]core.Track),
	}
}

func stageTrack(id string) core.Track {
	return core.Track{ID: id, Title: "Title " + id, Artist: "Artist " + id}
}

func (p *stagePlayer) Ping(context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pings++
	if p.offline {
		return errStageDown
	}
	return nil
}

func (p *stagePlayer) GetQueue(context.Context) ([]core.QueueEntry, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.offline {
		return nil, core.ErrRemoteUnavailable
	}
	entries := make([]core.QueueEntry, len(p.queue))
	for i, t := range p.queue {
		entries[i] = core.QueueEntry{Track: t, Position: i, IsCurrent: i == p.current}
	}
	return entries, nil
}

func (p *stagePlayer) GetCurrentTrack(context.Context) core.PlaybackState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	state := core.NoCurrentTrack
	if p.current >= 0 && p.current < len(p.queue) {
		t := p.queue[p.current]
		state.CurrentTrack = &t
		state.DurationSeconds = 200
		state.IsPaused = p.paused
	}
	return state
}

func (p *stagePlayer) Enqueue(_ context.Context, videoID string, mode core.InsertMode) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	t := stageTrack(videoID)
	if mode == core.InsertAfterCurrent && p.current >= 0 {
		at := p.current + 1
		p.queue = append(p.queue[:at], append([]core.Track{t}, p.queue[at:]...)...)
		return nil
	}
	p.queue = append(p.queue, t)
	return nil
}

func (p *stagePlayer) DeleteAtIndex(_ context.Context, index int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if index < 0 || index >= len(p.queue) {
		return core.ErrRemoteUnavailable
	}
	p.queue = append(p.queue[:index], p.queue[index+1:]...)
	switch {
	case index == p.current:
		p.current = -1
	case index < p.current:
		p.current--
	}
	return nil
}

func (p *stagePlayer) SetCurrentIndex(_ context.Context, index int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.current = index
	return nil
}

func (p *stagePlayer) MoveEntry(_ context.Context, from, to int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.queue[from], p.queue[to] = p.queue[to], p.queue[from]
	return nil
}

func (p *stagePlayer) Play(context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.paused = false
	return nil
}

func (p *stagePlayer) Pause(context.Context) error { return nil }

func (p *stagePlayer) ClearQueue(context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.queue = nil
	p.current = -1
	return nil
}

func (p *stagePlayer) SeekTo(_ context.Context, seconds float64) float64 { return seconds }
func (p *stagePlayer) GoBack(context.Context, int) error                 { return nil }
func (p *stagePlayer) GoForward(context.Context, int) error              { return nil }

func (p *stagePlayer) TogglePlay(context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.offline {
		return core.ErrRemoteUnavailable
	}
	p.paused = !p.paused
	return nil
}

func (p *stagePlayer) Next(context.Context) error     { return nil }
func (p *stagePlayer) Previous(context.Context) error { return nil }

func (p *stagePlayer) GetVolume(context.Context) core.VolumeState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.volume
}

func (p *stagePlayer) SetVolume(_ context.Context, percent int) core.VolumeState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.volume.Percent = percent
	return p.volume
}

func (p *stagePlayer) ToggleMute(context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.volume.IsMuted = !p.volume.IsMuted
	return nil
}

func (p *stagePlayer) GetRepeatMode(context.Context) core.RepeatMode {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.repeat
}

func (p *stagePlayer) CycleRepeatMode(context.Context) core.RepeatMode {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	switch p.repeat {
	case core.RepeatNone:
		p.repeat = core.RepeatAll
	case core.RepeatAll:
		p.repeat = core.RepeatOne
	default:
		p.repeat = core.RepeatNone
	}
	return p.repeat
}

func (p *stagePlayer) GetShuffle(context.Context) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.shuffled
}

func (p *stagePlayer) ToggleShuffle(context.Context) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.shuffled = !p.shuffled
	return p.shuffled
}

func (p *stagePlayer) Search(_ context.Context, query string) ([]core.Track, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.results[query], nil
}

func (p *stagePlayer) Rate(_ context.Context, rating core.Rating) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.offline {
		return core.ErrRemoteUnavailable
	}
	p.ratings = append(p.ratings, rating)
	return nil
}

func (p *stagePlayer) GetFullscreen(context.Context) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.fullscreen
}

func (p *stagePlayer) SetFullscreen(_ context.Context, on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.offline {
		return core.ErrRemoteUnavailable
	}
	p.fullscreen = on
	return nil
}

// stageTarget records where the remote API pointed the player.
type stageTarget struct {
	mutex     sync.Mutex
	baseURL   string
	retargets int
}

func (s *stageTarget) BaseURL() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.baseURL
}

func (s *stageTarget) Retarget(baseURL string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if baseURL == s.baseURL {
		return false
	}
	s.baseURL = baseURL
	s.retargets++
	return true
}

func testServerConfig() *core.ServerConfig {
	return &core.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func newFileStore(t *testing.T) *profile.FileStore {
	t.Helper()
	config := core.DefaultConfig().Storage
	config.DataDir = t.TempDir()
	store, err := profile.NewFileStore(config, zap.NewNop())
	require.NoError(t, err)
	return store
}

// newTestSession builds a session over p with no real timers or delays.
func newTestSession(p core.PlayerGateway, profiles core.ProfileStore) *core.Session {
	config := core.DefaultConfig()
	config.Engine.PollInterval = time.Millisecond
	config.Engine.SettleDelay = 0
	config.Engine.DeleteSpacing = 0
	config.Engine.PostDeleteDelay = 0
	config.Engine.VerifyDelay = time.Millisecond
	config.Engine.RetryVerifyDelay = time.Millisecond

	session := core.NewSession(config, p, profiles, zap.NewNop())
	session.Synchronizer().Progress().SetTickerFactory(func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() {}
	})
	return session
}

type testEnv struct {
	player  *stagePlayer
	store   *profile.FileStore
	session *core.Session
	server  *Server
	http    *httptest.Server
}

func newTestEnv(t *testing.T, options Options, tracks ...core.Track) *testEnv {
	t.Helper()
	env := &testEnv{player: newStagePlayer(tracks...), store: newFileStore(t)}
	env.session = newTestSession(env.player, env.store)

	if options.Profiles == nil {
		options.Profiles = env.store
	}
	if options.Session == nil {
		options.Session = env.session
	}
	if options.Player == nil {
		options.Player = env.player
	}
	env.server = NewServer(testServerConfig(), options, zap.NewNop())
	env.http = httptest.NewServer(env.server.Handler())
	t.Cleanup(func() {
		env.http.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	status, data := e.do(t, method, path, body)
	require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
	return status
}

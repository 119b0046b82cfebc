package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errFakeRemote = errors.New("fake remote failure")

// fakePlayer is an in-memory remote player with a scriptable queue.
type fakePlayer struct {
	mutex sync.Mutex

	queue   []Track
	current int

	// hideReads hides tracks enqueued since the last reveal for that many GetQueue calls.
	hideReads   int
	hidden      []Track
	dropEnqueue bool
	enqueueErr  error
	deleteErr   map[int]error
	queueErr    error
	setIndexErr error

	song          PlaybackState
	volume        VolumeState
	repeat        RepeatMode
	shuffled      bool
	searchResults map[string][]Track
	searchErr     map[string]error
	searchDelay   time.Duration

	enqueueCalls  []string
	deleteCalls   []int
	setIndexCalls []int
	moveCalls     [][2]int
	playCalls     int
	getQueueCalls int
	volumeReads   int
	searchCalls   []string
}

func newFakePlayer(tracks ...Track) *fakePlayer {
	current := -1
	if len(tracks) > 0 {
		current = 0
	}
	return &fakePlayer{
		queue:         append([]Track(nil), tracks...),
		current:       current,
		repeat:        RepeatNone,
		deleteErr:     make(map[int]error),
		searchResults: make(map[string][]Track),
		searchErr:     make(map[string]error),
		song:          NoCurrentTrack,
	}
}

func track(id string) Track {
	return Track{ID: id, Title: "Title " + id, Artist: "Artist " + id}
}

func (f *fakePlayer) ids() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ids := make([]string, len(f.queue))
	for i, t := range f.queue {
		ids[i] = t.ID
	}
	return ids
}

func (f *fakePlayer) GetQueue(context.Context) ([]QueueEntry, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.getQueueCalls++
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	if f.hideReads > 0 {
		f.hideReads--
	} else if len(f.hidden) > 0 {
		f.queue = append(f.queue, f.hidden...)
		f.hidden = nil
	}

	entries := make([]QueueEntry, len(f.queue))
	for i, t := range f.queue {
		entries[i] = QueueEntry{Track: t, Position: i, IsCurrent: i == f.current}
	}
	return entries, nil
}

func (f *fakePlayer) GetCurrentTrack(context.Context) PlaybackState {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	state := f.song
	if state.CurrentTrack == nil && f.current >= 0 && f.current < len(f.queue) {
		t := f.queue[f.current]
		state.CurrentTrack = &t
	}
	return state
}

func (f *fakePlayer) Enqueue(_ context.Context, videoID string, mode InsertMode) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.enqueueCalls = append(f.enqueueCalls, videoID)
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	if f.dropEnqueue {
		return nil
	}
	t := track(videoID)
	for _, pending := range f.hidden {
		if pending.ID == videoID {
			return nil
		}
	}
	if f.hideReads > 0 {
		f.hidden = append(f.hidden, t)
		return nil
	}
	if mode == InsertAfterCurrent && f.current >= 0 {
		at := f.current + 1
		f.queue = append(f.queue[:at], append([]Track{t}, f.queue[at:]...)...)
		return nil
	}
	f.queue = append(f.queue, t)
	return nil
}

func (f *fakePlayer) DeleteAtIndex(_ context.Context, index int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.deleteCalls = append(f.deleteCalls, index)
	if err := f.deleteErr[index]; err != nil {
		return err
	}
	if index < 0 || index >= len(f.queue) {
		return errFakeRemote
	}
	f.queue = append(f.queue[:index], f.queue[index+1:]...)
	switch {
	case index == f.current:
		f.current = -1
	case index < f.current:
		f.current--
	}
	return nil
}

func (f *fakePlayer) SetCurrentIndex(_ context.Context, index int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.setIndexCalls = append(f.setIndexCalls, index)
	if f.setIndexErr != nil {
		return f.setIndexErr
	}
	f.current = index
	return nil
}

func (f *fakePlayer) MoveEntry(_ context.Context, from, to int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.moveCalls = append(f.moveCalls, [2]int{from, to})
	f.queue[from], f.queue[to] = f.queue[to], f.queue[from]
	return nil
}

func (f *fakePlayer) Play(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.playCalls++
	f.song.IsPaused = false
	return nil
}

func (f *fakePlayer) Pause(context.Context) error { return nil }

func (f *fakePlayer) ClearQueue(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.queue = nil
	f.current = -1
	return nil
}

func (f *fakePlayer) SeekTo(_ context.Context, seconds float64) float64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.song.PositionSeconds = seconds
	return seconds
}

func (f *fakePlayer) GoBack(context.Context, int) error    { return nil }
func (f *fakePlayer) GoForward(context.Context, int) error { return nil }

func (f *fakePlayer) TogglePlay(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.song.IsPaused = !f.song.IsPaused
	return nil
}

func (f *fakePlayer) Next(context.Context) error     { return nil }
func (f *fakePlayer) Previous(context.Context) error { return nil }

func (f *fakePlayer) GetVolume(context.Context) VolumeState {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.volumeReads++
	return f.volume
}

func (f *fakePlayer) SetVolume(_ context.Context, percent int) VolumeState {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.volume = VolumeState{Percent: percent}
	return f.volume
}

func (f *fakePlayer) ToggleMute(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.volume.IsMuted = !f.volume.IsMuted
	return nil
}

func (f *fakePlayer) GetRepeatMode(context.Context) RepeatMode {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.repeat
}

func (f *fakePlayer) CycleRepeatMode(context.Context) RepeatMode {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	switch f.repeat {
	case RepeatNone:
		f.repeat = RepeatAll
	case RepeatAll:
		f.repeat = RepeatOne
	default:
		f.repeat = RepeatNone
	}
	return f.repeat
}

func (f *fakePlayer) GetShuffle(context.Context) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.shuffled
}

func (f *fakePlayer) ToggleShuffle(context.Context) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.shuffled = !f.shuffled
	return f.shuffled
}

func (f *fakePlayer) Search(ctx context.Context, query string) ([]Track, error) {
	f.mutex.Lock()
	f.searchCalls = append(f.searchCalls, query)
	results := f.searchResults[query]
	err := f.searchErr[query]
	delay := f.searchDelay
	f.mutex.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (f *fakePlayer) Rate(context.Context, Rating) error       { return nil }
func (f *fakePlayer) GetFullscreen(context.Context) bool       { return false }
func (f *fakePlayer) SetFullscreen(context.Context, bool) error { return nil }

// memoryProfiles is an in-memory ProfileStore.
type memoryProfiles struct {
	mutex    sync.Mutex
	profiles map[string]*UserProfile
	loadErr  error
	loads    int
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{profiles: make(map[string]*UserProfile)}
}

func (m *memoryProfiles) get(handle string) *UserProfile {
	p, ok := m.profiles[handle]
	if !ok {
		p = &UserProfile{Handle: handle}
		m.profiles[handle] = p
	}
	return p
}

func (m *memoryProfiles) Load(_ context.Context, handle string) (UserProfile, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.loads++
	if m.loadErr != nil {
		return UserProfile{}, m.loadErr
	}
	p := m.get(handle)
	return UserProfile{
		Handle:  handle,
		History: append([]Track(nil), p.History...),
		Likes:   append([]Track(nil), p.Likes...),
	}, nil
}

func (m *memoryProfiles) AddHistory(_ context.Context, handle string, t Track) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p := m.get(handle)
	history := []Track{t}
	for _, existing := range p.History {
		if existing.ID != t.ID {
			history = append(history, existing)
		}
	}
	p.History = history
	return len(history), nil
}

func (m *memoryProfiles) RemoveHistory(_ context.Context, handle, videoID string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p := m.get(handle)
	var kept []Track
	for _, existing := range p.History {
		if existing.ID != videoID {
			kept = append(kept, existing)
		}
	}
	p.History = kept
	return len(kept), nil
}

func (m *memoryProfiles) ClearHistory(_ context.Context, handle string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.get(handle).History = nil
	return nil
}

func (m *memoryProfiles) AddLike(_ context.Context, handle string, t Track) (int, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p := m.get(handle)
	if p.IsLiked(t.ID) {
		return len(p.Likes), false, nil
	}
	p.Likes = append(p.Likes, t)
	return len(p.Likes), true, nil
}

func (m *memoryProfiles) RemoveLike(_ context.Context, handle, videoID string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p := m.get(handle)
	var kept []Track
	for _, existing := range p.Likes {
		if existing.ID != videoID {
			kept = append(kept, existing)
		}
	}
	p.Likes = kept
	return len(kept), nil
}

func (m *memoryProfiles) ClearLikes(_ context.Context, handle string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.get(handle).Likes = nil
	return nil
}

// fastEngineConfig keeps the production shape with millisecond delays.
func fastEngineConfig() EngineConfig {
	config := DefaultConfig().Engine
	config.PollInterval = time.Millisecond
	config.SettleDelay = time.Millisecond
	config.DeleteSpacing = 0
	config.PostDeleteDelay = time.Millisecond
	config.VerifyDelay = time.Millisecond
	config.RetryVerifyDelay = time.Millisecond
	return config
}

func newTestEngine(player *fakePlayer) *Engine {
	return NewEngine(player, fastEngineConfig(), zap.NewNop())
}

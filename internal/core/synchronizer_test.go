package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

type countingRefresher struct {
	calls int
}

func (c *countingRefresher) RefreshQueue(context.Context) ([]QueueEntry, error) {
	c.calls++
	return nil, nil
}

func newTestSynchronizer(player *fakePlayer, queue QueueRefresher) (*Synchronizer, *fakeClock) {
	clock := newFakeClock()
	s := NewSynchronizer(player, queue, DefaultConfig().Sync, zap.NewNop())
	s.now = clock.Now
	s.progress.SetTickerFactory((&manualTicks{}).factory)
	return s, clock
}

func playing(id string, position, duration float64) PlaybackState {
	t := track(id)
	return PlaybackState{
		CurrentTrack:    &t,
		PositionSeconds: position,
		DurationSeconds: duration,
		RepeatMode:      RepeatNone,
	}
}

func TestSynchronizer_VolumeSuppressionWindow(t *testing.T) {
	player := newFakePlayer()
	player.volume = VolumeState{Percent: 50}
	s, clock := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)
	if got := s.State().VolumePercent; got != 50 {
		t.Fatalf("initial volume = %d, want 50", got)
	}

	s.SetVolume(ctx, 20)
	player.volume = VolumeState{Percent: 90}

	clock.Advance(100 * time.Millisecond)
	s.Tick(ctx)
	if got := s.State().VolumePercent; got != 20 {
		t.Errorf("volume inside suppression window = %d, want 20", got)
	}

	clock.Advance(700 * time.Millisecond)
	s.Tick(ctx)
	if got := s.State().VolumePercent; got != 90 {
		t.Errorf("volume after suppression window = %d, want 90", got)
	}
}

func TestSynchronizer_VolumeGlitches(t *testing.T) {
	player := newFakePlayer()
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)
	if got := s.State().VolumePercent; got != DefaultVolume {
		t.Fatalf("first sync with zero volume = %d, want %d", got, DefaultVolume)
	}

	player.volume = VolumeState{Percent: 0, IsMuted: false}
	s.Tick(ctx)
	if got := s.State(); got.VolumePercent != DefaultVolume || got.IsMuted {
		t.Errorf("zero while unmuted = (%d, %v), want (%d, false)", got.VolumePercent, got.IsMuted, DefaultVolume)
	}

	player.volume = VolumeState{Percent: 150}
	s.Tick(ctx)
	if got := s.State().VolumePercent; got != DefaultVolume {
		t.Errorf("out of range volume applied: %d", got)
	}

	player.volume = VolumeState{Percent: 0, IsMuted: true}
	s.Tick(ctx)
	if got := s.State(); got.VolumePercent != 0 || !got.IsMuted {
		t.Errorf("muted zero = (%d, %v), want (0, true)", got.VolumePercent, got.IsMuted)
	}
}

func TestSynchronizer_TimeResyncPolicy(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 30, 200)
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 30 {
		t.Fatalf("position after first tick = %v, want 30", got)
	}

	s.Progress().SetPosition(33)
	player.song.PositionSeconds = 0
	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 33 {
		t.Errorf("zero elapsed while playing overwrote position: %v, want 33", got)
	}

	player.song.PositionSeconds = 45
	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 45 {
		t.Errorf("nonzero elapsed ignored: %v, want 45", got)
	}

	player.song.PositionSeconds = 0
	player.song.IsPaused = true
	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 0 {
		t.Errorf("paused zero elapsed ignored: %v, want 0", got)
	}
}

func TestSynchronizer_TimeSuppressionAndTrackChange(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 10, 200)
	s, clock := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)
	s.Seek(ctx, 100)
	player.song.PositionSeconds = 12

	clock.Advance(time.Second)
	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 100 {
		t.Errorf("position inside suppression window = %v, want 100", got)
	}

	player.song = playing(idB, 3, 180)
	s.Tick(ctx)
	state := s.State()
	if state.CurrentTrackID() != idB || state.PositionSeconds != 3 {
		t.Errorf("track change = (%s, %v), want (%s, 3)", state.CurrentTrackID(), state.PositionSeconds, idB)
	}

	s.Seek(ctx, 50)
	player.song.PositionSeconds = 60
	clock.Advance(5 * time.Second)
	s.Tick(ctx)
	if got := s.State().PositionSeconds; got != 60 {
		t.Errorf("position after suppression window = %v, want 60", got)
	}
}

func TestSynchronizer_TrackChangeUsesNewDuration(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 10, 60)
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)

	player.song = playing(idB, 90, 200)
	s.Tick(ctx)
	state := s.State()
	if state.PositionSeconds != 90 || state.DurationSeconds != 200 {
		t.Errorf("after track change = %v/%v, want 90/200", state.PositionSeconds, state.DurationSeconds)
	}
	if got := s.Progress().Position(); got != 90 {
		t.Errorf("progress position = %v, want 90", got)
	}
}

func TestSynchronizer_RefreshCadence(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 10, 200)
	refresher := &countingRefresher{}
	s, _ := newTestSynchronizer(player, refresher)
	defer s.Progress().Stop()
	ctx := context.Background()

	s.Tick(ctx)
	if s.State().RepeatMode != RepeatNone {
		t.Fatalf("initial repeat = %s, want NONE", s.State().RepeatMode)
	}

	player.repeat = RepeatAll
	s.Tick(ctx)
	if got := s.State().RepeatMode; got != RepeatAll {
		t.Errorf("repeat on 2nd tick = %s, want ALL", got)
	}

	player.repeat = RepeatOne
	player.shuffled = true
	s.Tick(ctx)
	if got := s.State(); got.RepeatMode != RepeatAll || got.IsShuffled {
		t.Errorf("settings changed on 3rd tick: %s, %v", got.RepeatMode, got.IsShuffled)
	}
	s.Tick(ctx)
	if got := s.State(); got.RepeatMode != RepeatOne || !got.IsShuffled {
		t.Errorf("settings on 4th tick = %s, %v, want ONE, true", got.RepeatMode, got.IsShuffled)
	}

	for i := 0; i < 4; i++ {
		s.Tick(ctx)
	}
	// track change on tick 1, then ticks 4 and 8
	if refresher.calls != 3 {
		t.Errorf("queue refreshes = %d, want 3", refresher.calls)
	}

	player.song = playing(idB, 0, 100)
	s.Tick(ctx)
	if refresher.calls != 4 {
		t.Errorf("queue refreshes after track change = %d, want 4", refresher.calls)
	}
}

func TestSynchronizer_LikeDerivedFromProfile(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 10, 200)
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()

	likes := map[string]bool{idA: true}
	s.SetLikeResolver(func(id string) *bool {
		liked := likes[id]
		return &liked
	})

	s.Tick(context.Background())
	if liked := s.State().IsLiked; liked == nil || !*liked {
		t.Errorf("IsLiked = %v, want true", liked)
	}

	likes[idA] = false
	s.RefreshLike()
	if liked := s.State().IsLiked; liked == nil || *liked {
		t.Errorf("IsLiked after RefreshLike = %v, want false", liked)
	}
}

func TestSynchronizer_NoCurrentTrack(t *testing.T) {
	player := newFakePlayer()
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()

	s.Tick(context.Background())
	state := s.State()
	if state.CurrentTrack != nil || !state.IsPaused || state.IsPlaying() {
		t.Errorf("state without a track = %+v", state)
	}
}

func TestSynchronizer_IntentsAndSubscribers(t *testing.T) {
	player := newFakePlayer()
	player.song = playing(idA, 10, 200)
	s, _ := newTestSynchronizer(player, nil)
	defer s.Progress().Stop()
	ctx := context.Background()

	updates, cancel := s.Subscribe()
	defer cancel()

	s.Tick(ctx)
	select {
	case state := <-updates:
		if state.CurrentTrackID() != idA {
			t.Errorf("published track = %q, want %q", state.CurrentTrackID(), idA)
		}
	default:
		t.Fatal("Tick did not publish a state")
	}

	if mode := s.ToggleRepeat(ctx); mode != RepeatAll {
		t.Errorf("ToggleRepeat() = %s, want ALL", mode)
	}
	if on := s.ToggleShuffle(ctx); !on {
		t.Error("ToggleShuffle() = false, want true")
	}
	if err := s.TogglePlay(ctx); err != nil {
		t.Fatalf("TogglePlay() unexpected error: %v", err)
	}
	if !s.State().IsPaused {
		t.Error("TogglePlay() did not pause")
	}
	if err := s.ToggleMute(ctx); err != nil {
		t.Fatalf("ToggleMute() unexpected error: %v", err)
	}
	if !s.State().IsMuted {
		t.Error("ToggleMute() did not mute")
	}

	s.Progress().SetPosition(100)
	if err := s.SeekRelative(ctx, -10); err != nil {
		t.Fatalf("SeekRelative() unexpected error: %v", err)
	}
	if got := s.State().PositionSeconds; got != 90 {
		t.Errorf("position after going back = %v, want 90", got)
	}
}

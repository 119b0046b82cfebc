package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Playback State Synchronization
// The remote player has no push channel, so a fixed-interval poll reconciles the
// locally displayed state with it. Local interactions open short suppression
// windows during which the poll does not overwrite the touched field.

// Field identifies a locally editable part of the playback state.
type Field int

const (
	// FieldTime covers position and play/pause.
	FieldTime Field = iota
	// FieldVolume covers volume and mute.
	FieldVolume
)

// LikeResolver reports whether trackID is liked by the active user, or nil when unknown.
type LikeResolver func(trackID string) *bool

// QueueRefresher reloads the queue mirror.
type QueueRefresher interface {
	RefreshQueue(ctx context.Context) ([]QueueEntry, error)
}

// Synchronizer owns the PlaybackState and keeps it aligned with the remote player.
type Synchronizer struct {
	gateway  PlaybackGateway
	queue    QueueRefresher
	config   SyncConfig
	logger   *zap.Logger
	progress *ProgressTicker
	metrics  MetricsRecorder
	now      func() time.Time

	mutex          sync.RWMutex
	state          PlaybackState
	tick           int
	observed       bool
	volumeObserved bool
	lastTrackID    string
	localTouch     map[Field]time.Time
	likes          LikeResolver

	subscribersMutex sync.Mutex
	subscribers      map[int]chan PlaybackState
	nextSubscriber   int
}

// NewSynchronizer creates a synchronizer; queue may be nil when no mirror needs refreshing.
func NewSynchronizer(gateway PlaybackGateway, queue QueueRefresher, config SyncConfig, logger *zap.Logger) *Synchronizer {
	if config.QueueRefreshEvery <= 0 {
		config.QueueRefreshEvery = 4
	}
	if config.SettingsRefreshEvery <= 0 {
		config.SettingsRefreshEvery = 2
	}

	s := &Synchronizer{
		gateway:     gateway,
		queue:       queue,
		config:      config,
		logger:      logger,
		progress:    NewProgressTicker(config.ProgressInterval),
		metrics:     nopRecorder{},
		now:         time.Now,
		state:       NoCurrentTrack,
		localTouch:  make(map[Field]time.Time),
		subscribers: make(map[int]chan PlaybackState),
	}
	s.progress.OnAdvance(func(float64) {
		s.publish()
	})
	return s
}

// SetMetrics installs a recorder for poll ticks.
func (s *Synchronizer) SetMetrics(recorder MetricsRecorder) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s.metrics = recorder
}

// SetLikeResolver installs the lookup used to derive the liked flag.
func (s *Synchronizer) SetLikeResolver(resolver LikeResolver) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.likes = resolver
}

// Progress exposes the local progress ticker.
func (s *Synchronizer) Progress() *ProgressTicker {
	return s.progress
}

// State returns a copy of the current playback state with the interpolated position.
func (s *Synchronizer) State() PlaybackState {
	s.mutex.RLock()
	state := s.state
	s.mutex.RUnlock()

	if state.CurrentTrack != nil {
		track := *state.CurrentTrack
		state.CurrentTrack = &track
	}
	state.PositionSeconds = s.progress.Position()
	return state
}

// Run polls the remote player until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	s.logger.Info("Starting playback synchronizer",
		zap.Duration("interval", s.config.PollInterval))

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	defer s.progress.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Playback synchronizer stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one poll cycle.
func (s *Synchronizer) Tick(ctx context.Context) {
	s.metrics.RecordPollTick()
	remote := s.gateway.GetCurrentTrack(ctx)

	s.mutex.Lock()
	s.tick++
	tick := s.tick
	trackChanged := !s.observed || remote.CurrentTrackID() != s.lastTrackID
	timeSuppressed := s.suppressedUnsafe(FieldTime, s.config.TimeSuppression)
	volumeSuppressed := s.suppressedUnsafe(FieldVolume, s.config.VolumeSuppression)
	s.mutex.Unlock()

	refreshSettings := trackChanged || tick%s.config.SettingsRefreshEvery == 0
	var (
		repeat   RepeatMode
		shuffled bool
		volume   VolumeState
	)
	if refreshSettings {
		repeat = s.gateway.GetRepeatMode(ctx)
		shuffled = s.gateway.GetShuffle(ctx)
	}
	if !volumeSuppressed {
		volume = s.gateway.GetVolume(ctx)
	}

	s.mutex.Lock()
	if trackChanged {
		s.logger.Debug("Track changed",
			zap.String("from", s.lastTrackID),
			zap.String("to", remote.CurrentTrackID()))
	}
	s.lastTrackID = remote.CurrentTrackID()
	s.observed = true

	s.state.CurrentTrack = remote.CurrentTrack
	s.state.DurationSeconds = remote.DurationSeconds
	if trackChanged || !timeSuppressed {
		s.state.IsPaused = remote.IsPaused
	}
	if refreshSettings {
		s.state.RepeatMode = repeat
		s.state.IsShuffled = shuffled
		s.state.IsLiked = s.resolveLikeUnsafe()
	}
	if !volumeSuppressed {
		s.applyVolumeUnsafe(volume)
	}
	playing := s.state.IsPlaying()
	s.mutex.Unlock()

	// The position is written before the ticker restarts so a fresh goroutine
	// never advances from a stale value.
	switch {
	case trackChanged:
		s.progress.Reset(playing, remote.PositionSeconds, remote.DurationSeconds)
	case timeSuppressed:
		// keep the local position while the user is seeking
		s.progress.Update(playing, remote.DurationSeconds)
	default:
		if remote.PositionSeconds > 0 || remote.IsPaused {
			s.progress.SetPosition(remote.PositionSeconds)
		}
		s.progress.Update(playing, remote.DurationSeconds)
	}

	if s.queue != nil && (trackChanged || tick%s.config.QueueRefreshEvery == 0) {
		if _, err := s.queue.RefreshQueue(ctx); err != nil {
			s.logger.Debug("Queue refresh during poll failed", zap.Error(err))
		}
	}

	s.publish()
}

// applyVolumeUnsafe requires s.mutex.
func (s *Synchronizer) applyVolumeUnsafe(volume VolumeState) {
	if volume.Percent < 0 || volume.Percent > 100 {
		s.logger.Debug("Ignoring out of range volume", zap.Int("volume", volume.Percent))
		return
	}

	firstSample := !s.volumeObserved
	s.volumeObserved = true

	if volume.Percent == 0 && !volume.IsMuted {
		switch {
		case s.state.VolumePercent > 0:
			s.state.IsMuted = false
			return
		case firstSample:
			s.state.VolumePercent = DefaultVolume
			s.state.IsMuted = false
			return
		}
	}

	s.state.VolumePercent = volume.Percent
	s.state.IsMuted = volume.IsMuted
}

// resolveLikeUnsafe requires s.mutex.
func (s *Synchronizer) resolveLikeUnsafe() *bool {
	if s.likes == nil || s.state.CurrentTrack == nil {
		return nil
	}
	return s.likes(s.state.CurrentTrack.ID)
}

// suppressedUnsafe requires s.mutex.
func (s *Synchronizer) suppressedUnsafe(field Field, window time.Duration) bool {
	touched, ok := s.localTouch[field]
	if !ok {
		return false
	}
	return s.now().Sub(touched) < window
}

// MarkLocal records a direct user interaction with field.
func (s *Synchronizer) MarkLocal(field Field) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.localTouch[field] = s.now()
}

// RefreshLike re-derives the liked flag after the profile changed.
func (s *Synchronizer) RefreshLike() {
	s.mutex.Lock()
	s.state.IsLiked = s.resolveLikeUnsafe()
	s.mutex.Unlock()
	s.publish()
}

// Seek moves playback to seconds and returns the position the player reports.
func (s *Synchronizer) Seek(ctx context.Context, seconds float64) float64 {
	s.MarkLocal(FieldTime)
	actual := s.gateway.SeekTo(ctx, seconds)
	s.progress.SetPosition(actual)
	s.publish()
	return actual
}

// SeekRelative skips backwards for negative seconds and forwards otherwise.
func (s *Synchronizer) SeekRelative(ctx context.Context, seconds int) error {
	s.MarkLocal(FieldTime)

	var err error
	if seconds < 0 {
		err = s.gateway.GoBack(ctx, -seconds)
	} else {
		err = s.gateway.GoForward(ctx, seconds)
	}
	if err != nil {
		return err
	}

	s.progress.SetPosition(s.progress.Position() + float64(seconds))
	s.publish()
	return nil
}

// SetVolume applies percent (clamped to 0..100) and adopts the player's answer.
func (s *Synchronizer) SetVolume(ctx context.Context, percent int) VolumeState {
	percent = max(0, min(100, percent))
	s.MarkLocal(FieldVolume)

	applied := s.gateway.SetVolume(ctx, percent)

	s.mutex.Lock()
	s.state.VolumePercent = applied.Percent
	s.state.IsMuted = applied.IsMuted
	s.volumeObserved = true
	s.mutex.Unlock()

	s.publish()
	return applied
}

// TogglePlay flips play/pause.
func (s *Synchronizer) TogglePlay(ctx context.Context) error {
	s.MarkLocal(FieldTime)
	if err := s.gateway.TogglePlay(ctx); err != nil {
		return err
	}

	s.mutex.Lock()
	s.state.IsPaused = !s.state.IsPaused
	playing := s.state.IsPlaying()
	duration := s.state.DurationSeconds
	s.mutex.Unlock()

	s.progress.Update(playing, duration)
	s.publish()
	return nil
}

// ToggleMute flips the mute flag.
func (s *Synchronizer) ToggleMute(ctx context.Context) error {
	s.MarkLocal(FieldVolume)
	if err := s.gateway.ToggleMute(ctx); err != nil {
		return err
	}

	s.mutex.Lock()
	s.state.IsMuted = !s.state.IsMuted
	s.mutex.Unlock()

	s.publish()
	return nil
}

// ToggleRepeat advances the repeat mode and returns the new one.
func (s *Synchronizer) ToggleRepeat(ctx context.Context) RepeatMode {
	mode := s.gateway.CycleRepeatMode(ctx)

	s.mutex.Lock()
	s.state.RepeatMode = mode
	s.mutex.Unlock()

	s.publish()
	return mode
}

// ToggleShuffle flips shuffle and returns the new state.
func (s *Synchronizer) ToggleShuffle(ctx context.Context) bool {
	shuffled := s.gateway.ToggleShuffle(ctx)

	s.mutex.Lock()
	s.state.IsShuffled = shuffled
	s.mutex.Unlock()

	s.publish()
	return shuffled
}

// Next skips to the next track and resyncs immediately.
func (s *Synchronizer) Next(ctx context.Context) error {
	if err := s.gateway.Next(ctx); err != nil {
		return err
	}
	s.Tick(ctx)
	return nil
}

// Previous goes back one track and resyncs immediately.
func (s *Synchronizer) Previous(ctx context.Context) error {
	if err := s.gateway.Previous(ctx); err != nil {
		return err
	}
	s.Tick(ctx)
	return nil
}

// Subscribe returns a channel of state updates and a function to cancel it.
// Slow subscribers miss updates rather than blocking the poll loop.
func (s *Synchronizer) Subscribe() (<-chan PlaybackState, func()) {
	s.subscribersMutex.Lock()
	defer s.subscribersMutex.Unlock()

	id := s.nextSubscriber
	s.nextSubscriber++
	ch := make(chan PlaybackState, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subscribersMutex.Lock()
			defer s.subscribersMutex.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

func (s *Synchronizer) publish() {
	state := s.State()

	s.subscribersMutex.Lock()
	defer s.subscribersMutex.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}

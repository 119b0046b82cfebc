package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ytmdremote/internal/i18n"
)

// Session turns user intents into engine and synchronizer calls, keeps the
// active user's profile cached and reports outcomes as notifications.
type Session struct {
	config      *Config
	player      PlayerGateway
	profiles    ProfileStore
	engine      *Engine
	sync        *Synchronizer
	recommender *Recommender
	notifier    *Notifier
	localizer   *i18n.Localizer
	inflight    *InFlight
	logger      *zap.Logger

	mutex   sync.RWMutex
	handle  string
	profile *UserProfile

	recommendations      []Track
	recommendationsLimit int

	searchMutex  sync.Mutex
	searchSeq    uint64
	cancelSearch context.CancelFunc
}

// NewSession wires the engine, synchronizer and recommender around player.
func NewSession(config *Config, player PlayerGateway, profiles ProfileStore, logger *zap.Logger) *Session {
	engine := NewEngine(player, config.Engine, logger.Named("engine"))

	s := &Session{
		config:      config,
		player:      player,
		profiles:    profiles,
		engine:      engine,
		sync:        NewSynchronizer(player, engine, config.Sync, logger.Named("sync")),
		recommender: NewRecommender(player, logger.Named("recommender")),
		notifier:    NewNotifier(config.App.NotificationTTL, logger.Named("notify")),
		localizer:   i18n.NewLocalizer(config.App.Language),
		inflight:    NewInFlight(),
		logger:      logger,
		handle:      strings.TrimSpace(config.App.Handle),
	}
	s.sync.SetLikeResolver(s.isLiked)
	return s
}

// Engine returns the queue reconciliation engine.
func (s *Session) Engine() *Engine { return s.engine }

// Synchronizer returns the playback synchronizer.
func (s *Session) Synchronizer() *Synchronizer { return s.sync }

// Notifier returns the notification hub.
func (s *Session) Notifier() *Notifier { return s.notifier }

// Localizer returns the message localizer.
func (s *Session) Localizer() *i18n.Localizer { return s.localizer }

// InFlight returns the table of running intents.
func (s *Session) InFlight() *InFlight { return s.inflight }

// SetMetrics forwards recorder to the engine and synchronizer.
func (s *Session) SetMetrics(recorder MetricsRecorder) {
	s.engine.SetMetrics(recorder)
	s.sync.SetMetrics(recorder)
}

// Run starts the poll loop and blocks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if s.Handle() != "" {
		if _, err := s.reloadProfile(ctx); err != nil {
			s.logger.Warn("Failed to load profile at startup, continuing", zap.Error(err))
		}
	}
	s.sync.Run(ctx)
	return nil
}

// Handle returns the active user handle, or "".
func (s *Session) Handle() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.handle
}

// SetHandle switches the active user and loads their profile.
func (s *Session) SetHandle(ctx context.Context, handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return ErrNoHandle
	}

	s.mutex.Lock()
	s.handle = handle
	s.profile = nil
	s.recommendations = nil
	s.mutex.Unlock()

	if _, err := s.reloadProfile(ctx); err != nil {
		return err
	}
	s.sync.RefreshLike()
	s.notifier.Publish(NotifyInfo, s.localizer.T("notify.handle_set", handle))
	return nil
}

// Profile returns the cached profile, loading it on first use.
func (s *Session) Profile(ctx context.Context) (UserProfile, error) {
	s.mutex.RLock()
	handle := s.handle
	cached := s.profile
	s.mutex.RUnlock()

	if handle == "" {
		return UserProfile{}, ErrNoHandle
	}
	if cached != nil {
		return *cached, nil
	}
	return s.reloadProfile(ctx)
}

// reloadProfile replaces the cache with the store's copy. On failure the
// cache is emptied so readers see no data instead of stale data.
func (s *Session) reloadProfile(ctx context.Context) (UserProfile, error) {
	handle := s.Handle()
	if handle == "" {
		return UserProfile{}, ErrNoHandle
	}

	profile, err := s.profiles.Load(ctx, handle)
	if err != nil {
		s.logger.Warn("Failed to load profile", zap.String("handle", handle), zap.Error(err))
		s.mutex.Lock()
		s.profile = nil
		s.mutex.Unlock()
		return UserProfile{Handle: handle}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	profile.Handle = handle

	s.mutex.Lock()
	if s.handle == handle {
		s.profile = &profile
		s.recommendations = nil
	}
	s.mutex.Unlock()
	return profile, nil
}

func (s *Session) isLiked(trackID string) *bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.profile == nil {
		return nil
	}
	liked := s.profile.IsLiked(trackID)
	return &liked
}

// PlayNow replaces the queue with track and starts it.
func (s *Session) PlayNow(ctx context.Context, track Track) (PlaybackState, error) {
	done, ok := s.inflight.Begin(playKey(track.ID))
	if !ok {
		s.notifier.Publish(NotifyInfo, s.localizer.T("error.in_flight", track.Title))
		return NoCurrentTrack, ErrOperationInFlight
	}
	defer done()

	state, err := s.engine.PlayNow(ctx, track)
	if err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.play_failed", track.Title, s.reason(err)))
		return state, err
	}

	s.recordHistory(ctx, track)
	s.notifier.Publish(NotifySuccess, s.localizer.T("notify.now_playing", track.Title, track.Artist))
	return state, nil
}

// AddToQueue enqueues track at the end or right after the current entry.
func (s *Session) AddToQueue(ctx context.Context, track Track, mode InsertMode) error {
	done, ok := s.inflight.Begin(addKey(track.ID))
	if !ok {
		s.notifier.Publish(NotifyInfo, s.localizer.T("error.in_flight", track.Title))
		return ErrOperationInFlight
	}
	defer done()

	if err := s.engine.EnqueueTrack(ctx, track, mode); err != nil {
		key := "error.add_failed"
		if errors.Is(err, ErrTrackNotVisible) {
			key = "error.track_not_visible"
		}
		s.notifier.Publish(NotifyError, s.localizer.T(key, track.Title))
		return err
	}

	s.recordHistory(ctx, track)
	key := "notify.added_to_queue"
	if mode == InsertAfterCurrent {
		key = "notify.added_next"
	}
	s.notifier.Publish(NotifySuccess, s.localizer.T(key, track.Title))
	return nil
}

// Remove deletes the queue entry addressed by entryKey unless it is playing.
func (s *Session) Remove(ctx context.Context, entryKey string) error {
	entry, err := s.engine.RemoveEntry(ctx, entryKey, s.sync.State().CurrentTrackID())
	switch {
	case errors.Is(err, ErrEntryIsCurrent):
		s.notifier.Publish(NotifyError, s.localizer.T("error.remove_current"))
		return err
	case err != nil:
		s.notifier.Publish(NotifyError, s.localizer.T("error.remove_failed"))
		return err
	}

	title := entry.Track.Title
	if title == "" {
		title = entry.Track.ID
	}
	s.notifier.Publish(NotifySuccess, s.localizer.T("notify.removed_from_queue", title))
	return nil
}

// Move shifts the entry addressed by entryKey one slot.
func (s *Session) Move(ctx context.Context, entryKey string, direction Direction) error {
	entry, ok := s.engine.Mirror().FindByKey(entryKey)
	if !ok {
		s.notifier.Publish(NotifyError, s.localizer.T("error.move_failed"))
		return opError(opMove, entryKey, ErrEntryNotFound)
	}

	if err := s.engine.MoveEntry(ctx, entry, direction); err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.move_failed"))
		return err
	}
	return nil
}

// ClearQueue removes every entry except the playing one.
func (s *Session) ClearQueue(ctx context.Context) (int, error) {
	deleted, err := s.engine.ClearExceptCurrent(ctx, s.sync.State().CurrentTrackID())
	if err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.clear_failed"))
		return deleted, err
	}

	s.notifier.Publish(NotifySuccess, s.localizer.T("notify.queue_cleared", deleted))
	return deleted, nil
}

// JumpTo plays the entry addressed by entryKey after confirming it is still
// at the same position.
func (s *Session) JumpTo(ctx context.Context, entryKey string) error {
	entry, ok := s.engine.Mirror().FindByKey(entryKey)
	if !ok {
		s.notifier.Publish(NotifyError, s.localizer.T("error.jump_failed"))
		return opError(opJump, entryKey, ErrEntryNotFound)
	}

	queue, err := s.engine.RefreshQueue(ctx)
	if err != nil || entry.Position >= len(queue) || queue[entry.Position].Track.ID != entry.Track.ID {
		s.notifier.Publish(NotifyError, s.localizer.T("error.jump_failed"))
		return opError(opJump, "entry moved", ErrEntryNotFound)
	}

	if err := s.engine.JumpTo(ctx, entry); err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.jump_failed"))
		return err
	}
	s.notifier.Publish(NotifySuccess, s.localizer.T("notify.now_playing", entry.Track.Title, entry.Track.Artist))
	return nil
}

// ToggleLike likes track, or unlikes it when it is already liked, and
// reports the resulting state.
func (s *Session) ToggleLike(ctx context.Context, track Track) (bool, error) {
	handle := s.Handle()
	if handle == "" {
		s.notifier.Publish(NotifyError, s.localizer.T("error.no_handle"))
		return false, ErrNoHandle
	}
	if track.ID == "" {
		return false, ErrInvalidTrack
	}

	profile, err := s.Profile(ctx)
	if err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.like_failed"))
		return false, err
	}

	liked := !profile.IsLiked(track.ID)
	if liked {
		_, _, err = s.profiles.AddLike(ctx, handle, track)
	} else {
		_, err = s.profiles.RemoveLike(ctx, handle, track.ID)
	}
	if err != nil {
		s.logger.Warn("Failed to update likes", zap.String("videoId", track.ID), zap.Error(err))
		s.notifier.Publish(NotifyError, s.localizer.T("error.like_failed"))
		return !liked, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if _, err := s.reloadProfile(ctx); err != nil {
		s.logger.Warn("Failed to reload profile after like, continuing", zap.Error(err))
	}
	s.sync.RefreshLike()

	key := "notify.unliked"
	if liked {
		key = "notify.liked"
	}
	s.notifier.Publish(NotifySuccess, s.localizer.T(key, track.Title))
	return liked, nil
}

// ToggleRepeat cycles the repeat mode and announces the new one.
func (s *Session) ToggleRepeat(ctx context.Context) RepeatMode {
	mode := s.sync.ToggleRepeat(ctx)
	s.notifier.Publish(NotifyInfo, s.localizer.T("notify.repeat_mode", mode))
	return mode
}

func (s *Session) ToggleShuffle(ctx context.Context) bool {
	shuffled := s.sync.ToggleShuffle(ctx)
	key := "notify.shuffle_off"
	if shuffled {
		key = "notify.shuffle_on"
	}
	s.notifier.Publish(NotifyInfo, s.localizer.T(key))
	return shuffled
}

// Rate sends a like or dislike for the playing track to the player. It does
// not touch the stored profile; ToggleLike owns that.
func (s *Session) Rate(ctx context.Context, rating Rating) error {
	if rating != RatingLike && rating != RatingDislike {
		return ErrInvalidRating
	}
	if err := s.player.Rate(ctx, rating); err != nil {
		s.logger.Warn("Failed to rate track", zap.String("rating", string(rating)), zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) Fullscreen(ctx context.Context) bool {
	return s.player.GetFullscreen(ctx)
}

func (s *Session) SetFullscreen(ctx context.Context, on bool) error {
	if err := s.player.SetFullscreen(ctx, on); err != nil {
		s.logger.Warn("Failed to set fullscreen", zap.Bool("on", on), zap.Error(err))
		return err
	}
	return nil
}

// AddHistory records track in the active user's history.
func (s *Session) AddHistory(ctx context.Context, track Track) error {
	handle := s.Handle()
	if handle == "" {
		return ErrNoHandle
	}
	if track.ID == "" {
		return ErrInvalidTrack
	}

	if _, err := s.profiles.AddHistory(ctx, handle, track); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if _, err := s.reloadProfile(ctx); err != nil {
		s.logger.Warn("Failed to reload profile after history update, continuing", zap.Error(err))
	}
	return nil
}

// recordHistory is the best-effort history append after a successful play or enqueue.
func (s *Session) recordHistory(ctx context.Context, track Track) {
	if s.Handle() == "" {
		return
	}
	if err := s.AddHistory(context.WithoutCancel(ctx), track); err != nil {
		s.logger.Warn("Failed to record history, continuing",
			zap.String("videoId", track.ID),
			zap.Error(err))
	}
}

// Recommendations returns up to limit tracks for the active user. Results are
// cached until the profile changes.
func (s *Session) Recommendations(ctx context.Context, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = s.config.App.RecommendationLimit
	}

	s.mutex.RLock()
	cached := s.recommendations
	cachedLimit := s.recommendationsLimit
	s.mutex.RUnlock()
	if cached != nil && cachedLimit == limit {
		return append([]Track(nil), cached...), nil
	}

	profile, err := s.Profile(ctx)
	if err != nil {
		return nil, err
	}

	tracks, err := s.recommender.Recommend(ctx, profile.History, profile.Likes, limit)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	if s.handle == profile.Handle {
		s.recommendations = tracks
		s.recommendationsLimit = limit
	}
	s.mutex.Unlock()
	return append([]Track(nil), tracks...), nil
}

// Search runs a track search. Starting a new search cancels the previous
// one, whose caller then receives ErrSearchSuperseded.
func (s *Session) Search(ctx context.Context, query string) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.searchMutex.Lock()
	if s.cancelSearch != nil {
		s.cancelSearch()
	}
	s.searchSeq++
	seq := s.searchSeq
	s.cancelSearch = cancel
	s.searchMutex.Unlock()

	tracks, err := s.player.Search(searchCtx, query)

	s.searchMutex.Lock()
	superseded := seq != s.searchSeq
	if !superseded {
		s.cancelSearch = nil
	}
	s.searchMutex.Unlock()

	if superseded {
		return nil, ErrSearchSuperseded
	}
	if err != nil {
		s.notifier.Publish(NotifyError, s.localizer.T("error.search_failed"))
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return tracks, nil
}

// reason maps an engine failure to a localized explanation.
func (s *Session) reason(err error) string {
	switch {
	case errors.Is(err, ErrRemoteUnavailable):
		return s.localizer.T("reason.unavailable")
	case errors.Is(err, ErrTrackNotFound):
		return s.localizer.T("reason.not_found")
	case errors.Is(err, ErrEnqueueFailed):
		return s.localizer.T("reason.enqueue_failed")
	case errors.Is(err, ErrSetIndexFailed), errors.Is(err, ErrPlayFailed):
		return s.localizer.T("reason.select_failed")
	default:
		return s.localizer.T("error.generic")
	}
}

package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ytmdremote/pkg/fuzzy"
)

// Queue Reconciliation Engine
// The remote queue only offers "insert" and "delete by index", and other clients
// may edit it at any time. Every operation therefore re-reads the queue and
// re-locates its target by id right before each index-based mutation.

const (
	opPlayNow        = "playNow"
	opEnqueue        = "enqueueTrack"
	opRemove         = "removeEntry"
	opMove           = "moveEntry"
	opClear          = "clearExceptCurrent"
	opJump           = "jumpTo"
	reasonNotFound   = "target track did not appear in the queue"
	reasonNotVisible = "enqueued track not visible after retry"
)

// Engine performs multi-step queue mutations and owns the queue mirror.
type Engine struct {
	gateway  QueueGateway
	config   EngineConfig
	logger   *zap.Logger
	mirror   *QueueMirror
	matcher  *fuzzy.Normalizer
	metrics  MetricsRecorder
	now      func() time.Time
	deletion *rate.Limiter
}

// NewEngine creates an engine for the given gateway.
func NewEngine(gateway QueueGateway, config EngineConfig, logger *zap.Logger) *Engine {
	limit := rate.Inf
	if config.DeleteSpacing > 0 {
		limit = rate.Every(config.DeleteSpacing)
	}
	if config.PollAttempts <= 0 {
		config.PollAttempts = 1
	}

	return &Engine{
		gateway:  gateway,
		config:   config,
		logger:   logger,
		mirror:   NewQueueMirror(),
		matcher:  fuzzy.NewNormalizer(),
		metrics:  nopRecorder{},
		now:      time.Now,
		deletion: rate.NewLimiter(limit, 1),
	}
}

// SetMetrics installs a recorder for operation outcomes.
func (e *Engine) SetMetrics(recorder MetricsRecorder) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	e.metrics = recorder
}

// Queue returns the mirrored queue.
func (e *Engine) Queue() []QueueEntry {
	return e.mirror.Snapshot()
}

// Mirror exposes the mirror for read-only consumers.
func (e *Engine) Mirror() *QueueMirror {
	return e.mirror
}

// RefreshQueue reloads the mirror from the remote queue.
func (e *Engine) RefreshQueue(ctx context.Context) ([]QueueEntry, error) {
	entries, err := e.gateway.GetQueue(ctx)
	if err != nil {
		e.logger.Debug("Failed to refresh queue mirror", zap.Error(err))
		return e.mirror.Snapshot(), fmt.Errorf("failed to refresh queue: %w", err)
	}

	e.mirror.Replace(entries, e.now())
	e.metrics.SetQueueSize(len(entries))
	return entries, nil
}

// refreshMirror is the best-effort refresh run at the end of every operation.
func (e *Engine) refreshMirror(ctx context.Context, op string) {
	if _, err := e.RefreshQueue(ctx); err != nil {
		e.logger.Warn("Failed to refresh queue mirror, continuing",
			zap.String("op", op),
			zap.Error(err))
	}
}

// PlayNow makes track the only entry in the queue and starts playing it.
func (e *Engine) PlayNow(ctx context.Context, track Track) (state PlaybackState, err error) {
	if track.ID == "" {
		return NoCurrentTrack, opError(opPlayNow, "", ErrInvalidTrack)
	}

	start := e.now()
	defer func() {
		e.metrics.RecordOperation(opPlayNow, statusOf(err), e.now().Sub(start))
	}()

	// Mutations already issued cannot be rolled back, so later steps ignore cancellation.
	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opPlayNow)

	logger := e.logger.With(zap.String("videoId", track.ID), zap.String("title", track.Title))
	logger.Info("Playing track now")

	queue, fetchErr := e.gateway.GetQueue(ctx)
	if fetchErr != nil {
		logger.Warn("Failed to read queue before play now, assuming empty", zap.Error(fetchErr))
		queue = nil
	}

	if e.locate(queue, track.ID) < 0 {
		if len(queue) >= e.config.QueueCapacity {
			e.evictForCapacity(mctx, queue)
			e.sleep(mctx, e.config.SettleDelay)
		}

		if enqueueErr := e.gateway.Enqueue(mctx, track.ID, e.config.PlayNowInsertMode); enqueueErr != nil {
			return NoCurrentTrack, opError(opPlayNow, "player rejected the track",
				fmt.Errorf("%w: %w", ErrEnqueueFailed, enqueueErr))
		}
		e.sleep(mctx, e.config.SettleDelay)
	} else {
		logger.Debug("Track already queued, skipping insertion")
	}

	target, found, pollErr := e.waitForTrack(ctx, track.ID)
	if pollErr != nil {
		return NoCurrentTrack, opError(opPlayNow, "cancelled while waiting for the queue", pollErr)
	}
	if !found {
		logger.Warn("Track never appeared in queue", zap.Int("attempts", e.config.PollAttempts))
		return NoCurrentTrack, opError(opPlayNow, reasonNotFound, ErrTrackNotFound)
	}

	e.trimAround(mctx, target)
	e.sleep(mctx, e.config.PostDeleteDelay)

	queue, fetchErr = e.gateway.GetQueue(mctx)
	if fetchErr != nil {
		return NoCurrentTrack, opError(opPlayNow, "queue unreadable after trimming",
			fmt.Errorf("%w: %w", ErrTrackNotFound, fetchErr))
	}
	index := e.locate(queue, target.Track.ID)
	if index < 0 {
		return NoCurrentTrack, opError(opPlayNow, "target vanished after trimming", ErrTrackNotFound)
	}

	if setErr := e.gateway.SetCurrentIndex(mctx, queue[index].Position); setErr != nil {
		return NoCurrentTrack, opError(opPlayNow, "could not select the track",
			fmt.Errorf("%w: %w", ErrSetIndexFailed, setErr))
	}
	if playErr := e.gateway.Play(mctx); playErr != nil {
		return NoCurrentTrack, opError(opPlayNow, "could not start playback",
			fmt.Errorf("%w: %w", ErrPlayFailed, playErr))
	}

	e.sleep(mctx, e.config.SettleDelay)
	state = e.gateway.GetCurrentTrack(mctx)

	logger.Info("Track is now playing", zap.Int("position", queue[index].Position))
	return state, nil
}

// waitForTrack polls the queue until an entry matching videoID shows up.
// Only context cancellation is reported as an error.
func (e *Engine) waitForTrack(ctx context.Context, videoID string) (QueueEntry, bool, error) {
	for attempt := 1; attempt <= e.config.PollAttempts; attempt++ {
		queue, err := e.gateway.GetQueue(ctx)
		if err != nil {
			e.logger.Debug("Failed to read queue while polling",
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if index := e.locate(queue, videoID); index >= 0 {
			return queue[index], true, nil
		}

		if attempt == e.config.PollAttempts {
			break
		}
		if err := e.sleep(ctx, e.config.PollInterval); err != nil {
			return QueueEntry{}, false, err
		}
	}
	return QueueEntry{}, false, nil
}

// trimAround deletes everything except target from a fresh read of the queue.
func (e *Engine) trimAround(ctx context.Context, target QueueEntry) {
	queue, err := e.gateway.GetQueue(ctx)
	if err != nil {
		e.logger.Warn("Failed to read queue before trimming, continuing", zap.Error(err))
		return
	}

	var positions []int
	for _, entry := range queue {
		if entry.Track.ID == target.Track.ID {
			continue
		}
		if e.config.KeepCurrentOnPlay && entry.IsCurrent {
			continue
		}
		positions = append(positions, entry.Position)
	}

	deleted := e.deleteDescending(ctx, opPlayNow, positions)
	e.logger.Debug("Trimmed queue around target",
		zap.String("videoId", target.Track.ID),
		zap.Int("deleted", deleted),
		zap.Int("requested", len(positions)))
}

// evictForCapacity frees room in a full queue without touching the current entry.
func (e *Engine) evictForCapacity(ctx context.Context, queue []QueueEntry) {
	var positions []int
	for _, entry := range queue {
		if !entry.IsCurrent {
			positions = append(positions, entry.Position)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))
	if len(positions) > e.config.EvictBatchMax {
		positions = positions[:e.config.EvictBatchMax]
	}

	e.logger.Info("Queue at capacity, evicting entries",
		zap.Int("queueLength", len(queue)),
		zap.Int("capacity", e.config.QueueCapacity),
		zap.Int("evicting", len(positions)))

	e.deleteDescending(ctx, opPlayNow, positions)
}

// deleteDescending deletes positions from the highest index down so earlier
// indices stay valid. Failures are logged and skipped.
func (e *Engine) deleteDescending(ctx context.Context, op string, positions []int) int {
	sorted := append([]int(nil), positions...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	deleted := 0
	for _, position := range sorted {
		if err := e.deletion.Wait(ctx); err != nil {
			e.logger.Warn("Delete pacing interrupted", zap.String("op", op), zap.Error(err))
			return deleted
		}
		if err := e.gateway.DeleteAtIndex(ctx, position); err != nil {
			e.logger.Warn("Failed to delete queue entry, continuing",
				zap.String("op", op),
				zap.Int("position", position),
				zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}

// EnqueueTrack adds track with the given insert mode and verifies that it
// became visible, retrying the insert once.
func (e *Engine) EnqueueTrack(ctx context.Context, track Track, mode InsertMode) (err error) {
	if track.ID == "" {
		return opError(opEnqueue, "", ErrInvalidTrack)
	}

	start := e.now()
	defer func() {
		e.metrics.RecordOperation(opEnqueue, statusOf(err), e.now().Sub(start))
	}()

	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opEnqueue)

	if enqueueErr := e.gateway.Enqueue(mctx, track.ID, mode); enqueueErr != nil {
		return opError(opEnqueue, "player rejected the track",
			fmt.Errorf("%w: %w", ErrEnqueueFailed, enqueueErr))
	}

	e.sleep(mctx, e.config.VerifyDelay)
	if e.isVisible(mctx, track.ID) {
		e.logger.Info("Track enqueued",
			zap.String("videoId", track.ID),
			zap.Stringer("mode", mode))
		return nil
	}

	e.logger.Warn("Enqueued track not visible yet, retrying once",
		zap.String("videoId", track.ID))
	if retryErr := e.gateway.Enqueue(mctx, track.ID, mode); retryErr != nil {
		e.logger.Warn("Failed to re-enqueue track, continuing",
			zap.String("videoId", track.ID),
			zap.Error(retryErr))
	}

	e.sleep(mctx, e.config.RetryVerifyDelay)
	if e.isVisible(mctx, track.ID) {
		e.logger.Info("Track enqueued after retry", zap.String("videoId", track.ID))
		return nil
	}

	return opError(opEnqueue, reasonNotVisible, ErrTrackNotVisible)
}

func (e *Engine) isVisible(ctx context.Context, videoID string) bool {
	queue, err := e.gateway.GetQueue(ctx)
	if err != nil {
		e.logger.Debug("Failed to read queue for verification", zap.Error(err))
		return false
	}
	return e.locate(queue, videoID) >= 0
}

// RemoveEntry deletes the entry addressed by a composite "trackId-position" key
// and returns it. The position is only a hint: when the fresh queue holds a
// different track there, the track is located again by id. The playing entry
// is never deleted.
func (e *Engine) RemoveEntry(ctx context.Context, entryKey, currentTrackID string) (QueueEntry, error) {
	trackID, position, err := ParseEntryKey(entryKey)
	if err != nil {
		return QueueEntry{}, opError(opRemove, entryKey, err)
	}

	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opRemove)

	queue, fetchErr := e.gateway.GetQueue(ctx)
	if fetchErr != nil {
		e.logger.Warn("Failed to read queue before removal, using mirror", zap.Error(fetchErr))
		queue = e.mirror.Snapshot()
	}

	if trackID != "" && (position >= len(queue) || queue[position].Track.ID != trackID) {
		moved := e.locate(queue, trackID)
		if moved < 0 {
			return QueueEntry{}, opError(opRemove, entryKey, ErrEntryNotFound)
		}
		e.logger.Debug("Queue entry moved before removal",
			zap.String("videoId", trackID),
			zap.Int("keyPosition", position),
			zap.Int("position", moved))
		position = moved
	}
	if position >= len(queue) {
		return QueueEntry{}, opError(opRemove, entryKey, ErrEntryNotFound)
	}

	entry := queue[position]
	if entry.IsCurrent || (currentTrackID != "" && entry.Track.ID == currentTrackID) {
		return entry, opError(opRemove, entry.Track.Title, ErrEntryIsCurrent)
	}

	if delErr := e.gateway.DeleteAtIndex(mctx, position); delErr != nil {
		return entry, opError(opRemove, entry.Track.Title, fmt.Errorf("%w: %w", ErrDeleteFailed, delErr))
	}

	e.logger.Info("Removed queue entry",
		zap.String("videoId", entry.Track.ID),
		zap.Int("position", position))
	return entry, nil
}

// ParseEntryKey splits a composite entry key into its track id and position.
// Video ids may contain dashes, so only the last one separates the index.
func ParseEntryKey(entryKey string) (string, int, error) {
	sep := strings.LastIndex(entryKey, "-")
	if sep < 0 || sep == len(entryKey)-1 {
		return "", 0, ErrInvalidEntryKey
	}
	position, err := strconv.Atoi(entryKey[sep+1:])
	if err != nil || position < 0 {
		return "", 0, ErrInvalidEntryKey
	}
	return entryKey[:sep], position, nil
}

// MoveEntry shifts entry one slot up or down. Moves past either end are ignored.
func (e *Engine) MoveEntry(ctx context.Context, entry QueueEntry, direction Direction) error {
	target := entry.Position - 1
	if direction == Down {
		target = entry.Position + 1
	}

	length := e.mirror.Len()
	if target < 0 || target > length-1 {
		e.logger.Debug("Move at queue boundary ignored",
			zap.Int("position", entry.Position),
			zap.Int("queueLength", length))
		return nil
	}

	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opMove)

	if err := e.gateway.MoveEntry(mctx, entry.Position, target); err != nil {
		return opError(opMove, entry.Track.Title, fmt.Errorf("failed to move entry: %w", err))
	}
	return nil
}

// ClearExceptCurrent deletes every entry that is not playing and reports how many were removed.
func (e *Engine) ClearExceptCurrent(ctx context.Context, currentTrackID string) (int, error) {
	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opClear)

	queue, err := e.gateway.GetQueue(ctx)
	if err != nil {
		return 0, opError(opClear, "queue unreadable", err)
	}

	var positions []int
	for _, entry := range queue {
		if entry.IsCurrent || (currentTrackID != "" && entry.Track.ID == currentTrackID) {
			continue
		}
		positions = append(positions, entry.Position)
	}

	deleted := e.deleteDescending(mctx, opClear, positions)
	e.logger.Info("Cleared queue except current",
		zap.Int("deleted", deleted),
		zap.Int("requested", len(positions)))
	return deleted, nil
}

// JumpTo selects entry's position and starts playback. The position is used as given.
func (e *Engine) JumpTo(ctx context.Context, entry QueueEntry) error {
	mctx := context.WithoutCancel(ctx)
	defer e.refreshMirror(mctx, opJump)

	if err := e.gateway.SetCurrentIndex(mctx, entry.Position); err != nil {
		return opError(opJump, entry.Track.Title, fmt.Errorf("%w: %w", ErrSetIndexFailed, err))
	}
	if err := e.gateway.Play(mctx); err != nil {
		return opError(opJump, entry.Track.Title, fmt.Errorf("%w: %w", ErrPlayFailed, err))
	}
	return nil
}

// locate returns the slice index of the best match for videoID, or -1.
func (e *Engine) locate(queue []QueueEntry, videoID string) int {
	if len(queue) == 0 {
		return -1
	}
	ids := make([]string, len(queue))
	for i, entry := range queue {
		ids[i] = entry.Track.ID
	}

	index, match := e.matcher.MatchID(ids, videoID)
	if index >= 0 && match != fuzzy.MatchExact {
		e.logger.Debug("Located track by loose id match",
			zap.String("videoId", videoID),
			zap.String("matched", ids[index]),
			zap.Stringer("match", match))
	}
	return index
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

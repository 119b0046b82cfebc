package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable wraps transport failures and non-2xx answers from the player.
	ErrRemoteUnavailable = errors.New("remote player unavailable")
	// ErrEnqueueFailed is returned when the player rejects an enqueue request.
	ErrEnqueueFailed = errors.New("enqueue failed")
	// ErrTrackNotFound is returned when a target track never shows up in the queue.
	ErrTrackNotFound = errors.New("track not found in queue")
	// ErrTrackNotVisible is returned when an enqueued track is still absent after the retry.
	ErrTrackNotVisible = errors.New("track not visible in queue after retry")
	// ErrSetIndexFailed is returned when the player refuses to switch the current entry.
	ErrSetIndexFailed = errors.New("set current index failed")
	// ErrPlayFailed is returned when the play command fails.
	ErrPlayFailed = errors.New("play failed")
	// ErrInvalidEntryKey is returned for composite keys without a trailing index.
	ErrInvalidEntryKey = errors.New("invalid queue entry key")
	// ErrEntryNotFound is returned when a queue position no longer exists.
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrEntryIsCurrent is returned when removing the entry that is playing.
	ErrEntryIsCurrent = errors.New("queue entry is currently playing")
	// ErrDeleteFailed is returned when an index delete fails on the critical path.
	ErrDeleteFailed = errors.New("delete failed")
	// ErrInvalidTrack is returned for tracks without an id.
	ErrInvalidTrack = errors.New("track has no video id")
	// ErrNoHandle is returned for profile operations while no handle is set.
	ErrNoHandle = errors.New("no user handle set")
	// ErrOperationInFlight is returned when the same intent is already running.
	ErrOperationInFlight = errors.New("operation already in progress")
	// ErrSearchSuperseded is returned for a search replaced by a newer one.
	ErrSearchSuperseded = errors.New("search superseded")
	// ErrInvalidRating is returned for ratings other than like and dislike.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrStorage wraps profile store failures.
	ErrStorage = errors.New("profile storage failure")
)

// OperationError carries the failed engine operation and a readable reason.
type OperationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(op, reason string, err error) error {
	return &OperationError{Op: op, Reason: reason, Err: err}
}

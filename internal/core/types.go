package core

import (
	"context"
	"strconv"
)

// InsertMode selects where the remote player places an enqueued track.
type InsertMode int

const (
	// InsertAtEnd appends the track to the end of the remote queue.
	InsertAtEnd InsertMode = iota
	// InsertAfterCurrent places the track right after the playing entry.
	InsertAfterCurrent
)

// String returns the wire value used by the remote player API.
func (m InsertMode) String() string {
	if m == InsertAfterCurrent {
		return "INSERT_AFTER_CURRENT_VIDEO"
	}
	return "INSERT_AT_END"
}

// ParseInsertMode accepts the wire values as well as the short forms "end" and "next".
func ParseInsertMode(s string) (InsertMode, bool) {
	switch s {
	case "INSERT_AT_END", "end", "at_end", "":
		return InsertAtEnd, true
	case "INSERT_AFTER_CURRENT_VIDEO", "next", "after_current":
		return InsertAfterCurrent, true
	default:
		return InsertAtEnd, false
	}
}

// RepeatMode mirrors the remote player's repeat setting.
type RepeatMode string

const (
	// RepeatNone disables repeat.
	RepeatNone RepeatMode = "NONE"
	// RepeatAll repeats the whole queue.
	RepeatAll RepeatMode = "ALL"
	// RepeatOne repeats the current track.
	RepeatOne RepeatMode = "ONE"
)

// Direction is used when moving a queue entry by one slot.
type Direction int

const (
	// Up moves an entry towards position 0.
	Up Direction = iota
	// Down moves an entry towards the end of the queue.
	Down
)

// Track is the immutable value shared by queue, history, likes and recommendations.
// ID is the only stable join key.
type Track struct {
	ID           string `json:"videoId"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album,omitempty"`
	DurationText string `json:"duration,omitempty"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
}

// QueueEntry is a track at a momentary position in the remote queue.
// Position is only valid for the snapshot it was read from.
type QueueEntry struct {
	Track     Track `json:"track"`
	Position  int   `json:"position"`
	IsCurrent bool  `json:"isCurrent"`
}

// Key returns the composite entry id used to address a queue row.
func (e QueueEntry) Key() string {
	return EntryKey(e.Track.ID, e.Position)
}

// EntryKey builds the composite "trackId-position" key.
func EntryKey(trackID string, position int) string {
	return trackID + "-" + strconv.Itoa(position)
}

// VolumeState is the remote player's volume as reported by the gateway.
type VolumeState struct {
	Percent int  `json:"volume"`
	IsMuted bool `json:"isMuted"`
}

// PlaybackState is the synchronizer-owned view of the remote player.
type PlaybackState struct {
	CurrentTrack    *Track     `json:"currentTrack"`
	IsPaused        bool       `json:"isPaused"`
	PositionSeconds float64    `json:"positionSeconds"`
	DurationSeconds float64    `json:"durationSeconds"`
	VolumePercent   int        `json:"volume"`
	IsMuted         bool       `json:"isMuted"`
	RepeatMode      RepeatMode `json:"repeatMode"`
	IsShuffled      bool       `json:"isShuffled"`
	IsLiked         *bool      `json:"isLiked"`
}

// CurrentTrackID returns the playing track's id, or "" when nothing is playing.
func (s PlaybackState) CurrentTrackID() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

// IsPlaying reports whether a track is loaded and not paused.
func (s PlaybackState) IsPlaying() bool {
	return s.CurrentTrack != nil && !s.IsPaused
}

// NoCurrentTrack is returned by the gateway when the remote cannot be reached.
var NoCurrentTrack = PlaybackState{IsPaused: true, RepeatMode: RepeatNone}

// UserProfile is the per-handle history and likes.
type UserProfile struct {
	Handle  string  `json:"-"`
	History []Track `json:"history"`
	Likes   []Track `json:"likes"`
}

// IsLiked reports whether the profile contains a like for trackID.
func (p UserProfile) IsLiked(trackID string) bool {
	for _, t := range p.Likes {
		if t.ID == trackID {
			return true
		}
	}
	return false
}

// RecommendationSeed is derived from history and likes; it is never persisted.
type RecommendationSeed struct {
	HeadCandidates []Track
	ArtistTerms    []string
	KeywordTerms   []string
	ExcludeIDs     map[string]bool
}

// Rating is a player-level like/dislike.
type Rating string

const (
	// RatingLike marks the playing track as liked in the remote player.
	RatingLike Rating = "like"
	// RatingDislike marks the playing track as disliked in the remote player.
	RatingDislike Rating = "dislike"
)

// QueueGateway is the subset of the remote player the reconciliation engine uses.
type QueueGateway interface {
	GetQueue(ctx context.Context) ([]QueueEntry, error)
	GetCurrentTrack(ctx context.Context) PlaybackState
	Enqueue(ctx context.Context, videoID string, mode InsertMode) error
	DeleteAtIndex(ctx context.Context, index int) error
	SetCurrentIndex(ctx context.Context, index int) error
	MoveEntry(ctx context.Context, fromIndex, toIndex int) error
	Play(ctx context.Context) error
}

// PlaybackGateway is the subset of the remote player the synchronizer uses.
type PlaybackGateway interface {
	GetCurrentTrack(ctx context.Context) PlaybackState
	SeekTo(ctx context.Context, seconds float64) float64
	GoBack(ctx context.Context, seconds int) error
	GoForward(ctx context.Context, seconds int) error
	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	GetVolume(ctx context.Context) VolumeState
	SetVolume(ctx context.Context, percent int) VolumeState
	ToggleMute(ctx context.Context) error
	GetRepeatMode(ctx context.Context) RepeatMode
	CycleRepeatMode(ctx context.Context) RepeatMode
	GetShuffle(ctx context.Context) bool
	ToggleShuffle(ctx context.Context) bool
}

// Searcher runs a free-text track search against the remote player.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Track, error)
}

// PlayerGateway is the full remote player surface.
type PlayerGateway interface {
	QueueGateway
	PlaybackGateway
	Searcher
	Pause(ctx context.Context) error
	ClearQueue(ctx context.Context) error
	Rate(ctx context.Context, rating Rating) error
	GetFullscreen(ctx context.Context) bool
	SetFullscreen(ctx context.Context, on bool) error
}

// ProfileStore persists history and likes per user handle.
type ProfileStore interface {
	Load(ctx context.Context, handle string) (UserProfile, error)
	AddHistory(ctx context.Context, handle string, track Track) (int, error)
	RemoveHistory(ctx context.Context, handle, videoID string) (int, error)
	ClearHistory(ctx context.Context, handle string) error
	// AddLike returns false when the track was already liked.
	AddLike(ctx context.Context, handle string, track Track) (count int, added bool, err error)
	RemoveLike(ctx context.Context, handle, videoID string) (int, error)
	ClearLikes(ctx context.Context, handle string) error
}

// Package profile persists per-handle listening history and likes.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
)

const defaultCacheSize = 128

var unsafeHandleChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeHandle maps a handle to the file-name-safe key used on disk.
func SanitizeHandle(handle string) string {
	return unsafeHandleChars.ReplaceAllString(handle, "_")
}

// Seed is the recommendation metadata served by the storage API.
type Seed struct {
	FirstTwo []core.Track `json:"firstTwo"`
	Artists  []string     `json:"artists"`
	Keywords []string     `json:"keywords"`
	Seen     []string     `json:"seen"`
	Limit    int          `json:"limit"`
}

// FileStore keeps one pretty-printed JSON document per handle in a directory.
// All access is serialized by a single mutex; loaded documents are cached.
type FileStore struct {
	dir          string
	historyLimit int
	logger       *zap.Logger

	mutex sync.Mutex
	cache *lru.Cache[string, core.UserProfile]
}

var _ core.ProfileStore = (*FileStore)(nil)

// NewFileStore opens (and creates if needed) the data directory.
func NewFileStore(config core.StorageConfig, logger *zap.Logger) (*FileStore, error) {
	if config.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	size := config.ProfileCacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, core.UserProfile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}

	limit := config.HistoryLimit
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}

	logger.Info("Profile store ready", zap.String("dir", config.DataDir))
	return &FileStore{
		dir:          config.DataDir,
		historyLimit: limit,
		logger:       logger,
		cache:        cache,
	}, nil
}

func keyFor(handle string) (string, error) {
	if strings.TrimSpace(handle) == "" {
		return "", core.ErrNoHandle
	}
	return SanitizeHandle(handle), nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// readUnsafe returns the stored document for key. A missing file is an empty
// profile. Requires s.mutex.
func (s *FileStore) readUnsafe(key string) (core.UserProfile, error) {
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return core.UserProfile{}, nil
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("failed to read profile %s: %w", key, err)
	}

	var profile core.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return core.UserProfile{}, fmt.Errorf("failed to decode profile %s: %w", key, err)
	}
	s.cache.Add(key, profile)
	return profile, nil
}

// writeUnsafe replaces the document for key through a temp file and rename.
// Requires s.mutex.
func (s *FileStore) writeUnsafe(key string, profile core.UserProfile) error {
	if profile.History == nil {
		profile.History = []core.Track{}
	}
	if profile.Likes == nil {
		profile.Likes = []core.Track{}
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profile %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profile %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace profile %s: %w", key, err)
	}

	s.cache.Add(key, profile)
	s.logger.Debug("Saved profile",
		zap.String("handle", key),
		zap.Int("history", len(profile.History)),
		zap.Int("likes", len(profile.Likes)))
	return nil
}

// update loads, mutates and saves the document for handle under the lock.
func (s *FileStore) update(handle string, mutate func(*core.UserProfile) bool) (core.UserProfile, error) {
	key, err := keyFor(handle)
	if err != nil {
		return core.UserProfile{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	profile, err := s.readUnsafe(key)
	if err != nil {
		return core.UserProfile{}, err
	}
	if !mutate(&profile) {
		return profile, nil
	}
	if err := s.writeUnsafe(key, profile); err != nil {
		return core.UserProfile{}, err
	}
	return profile, nil
}

// Load returns a copy of the stored history and likes for handle.
func (s *FileStore) Load(_ context.Context, handle string) (core.UserProfile, error) {
	key, err := keyFor(handle)
	if err != nil {
		return core.UserProfile{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	profile, err := s.readUnsafe(key)
	if err != nil {
		return core.UserProfile{}, err
	}
	return core.UserProfile{
		Handle:  handle,
		History: append([]core.Track{}, profile.History...),
		Likes:   append([]core.Track{}, profile.Likes...),
	}, nil
}

// AddHistory moves track to the front of the history, dropping any older
// entry with the same id and anything past the history limit.
func (s *FileStore) AddHistory(_ context.Context, handle string, track core.Track) (int, error) {
	if track.ID == "" {
		return 0, core.ErrInvalidTrack
	}
	profile, err := s.update(handle, func(p *core.UserProfile) bool {
		history := make([]core.Track, 0, min(len(p.History)+1, s.historyLimit))
		history = append(history, track)
		for _, existing := range p.History {
			if len(history) == s.historyLimit {
				break
			}
			if existing.ID != track.ID {
				history = append(history, existing)
			}
		}
		p.History = history
		return true
	})
	return len(profile.History), err
}

func (s *FileStore) RemoveHistory(_ context.Context, handle, videoID string) (int, error) {
	profile, err := s.update(handle, func(p *core.UserProfile) bool {
		p.History = without(p.History, videoID)
		return true
	})
	return len(profile.History), err
}

func (s *FileStore) ClearHistory(_ context.Context, handle string) error {
	_, err := s.update(handle, func(p *core.UserProfile) bool {
		p.History = nil
		return true
	})
	return err
}

// AddLike appends track to the likes unless it is already there.
func (s *FileStore) AddLike(_ context.Context, handle string, track core.Track) (int, bool, error) {
	if track.ID == "" {
		return 0, false, core.ErrInvalidTrack
	}
	added := false
	profile, err := s.update(handle, func(p *core.UserProfile) bool {
		if p.IsLiked(track.ID) {
			return false
		}
		p.Likes = append(append([]core.Track{}, p.Likes...), track)
		added = true
		return true
	})
	return len(profile.Likes), added, err
}

// RemoveLike drops videoID from the likes. Removing a track that is not liked succeeds.
func (s *FileStore) RemoveLike(_ context.Context, handle, videoID string) (int, error) {
	profile, err := s.update(handle, func(p *core.UserProfile) bool {
		p.Likes = without(p.Likes, videoID)
		return true
	})
	return len(profile.Likes), err
}

func (s *FileStore) ClearLikes(_ context.Context, handle string) error {
	_, err := s.update(handle, func(p *core.UserProfile) bool {
		p.Likes = nil
		return true
	})
	return err
}

// Seed derives the recommendation metadata for handle.
func (s *FileStore) Seed(ctx context.Context, handle string, limit int) (Seed, error) {
	if limit <= 0 {
		limit = core.DefaultRecommendationLimit
	}
	profile, err := s.Load(ctx, handle)
	if err != nil {
		return Seed{}, err
	}
	return SeedFromProfile(profile, limit), nil
}

// SeedFromProfile renders the derived seed in its wire shape. Seen lists the
// ids of the head candidates.
func SeedFromProfile(profile core.UserProfile, limit int) Seed {
	derived := core.DeriveSeed(profile.History, profile.Likes)

	seed := Seed{
		FirstTwo: append([]core.Track{}, derived.HeadCandidates...),
		Artists:  append([]string{}, derived.ArtistTerms...),
		Keywords: append([]string{}, derived.KeywordTerms...),
		Seen:     make([]string, 0, len(derived.HeadCandidates)),
		Limit:    limit,
	}
	for _, head := range derived.HeadCandidates {
		seed.Seen = append(seed.Seen, head.ID)
	}
	return seed
}

// without returns a fresh slice of tracks minus videoID.
func without(tracks []core.Track, videoID string) []core.Track {
	kept := make([]core.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID != videoID {
			kept = append(kept, t)
		}
	}
	return kept
}

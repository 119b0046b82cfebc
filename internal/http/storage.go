package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
	"ytmdremote/internal/flood"
	"ytmdremote/internal/profile"
)

// ProfileBackend is the store behind the storage API.
type ProfileBackend interface {
	core.ProfileStore
	Seed(ctx context.Context, handle string, limit int) (profile.Seed, error)
}

type storageAPI struct {
	profiles ProfileBackend
	gate     *flood.Floodgate
	metrics  *Metrics
	logger   *zap.Logger
}

type mutationResult struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

func counted(n int) mutationResult {
	return mutationResult{Success: true, Count: &n}
}

func (a *storageAPI) routes(r chi.Router) {
	r.Get("/health", handleStorageHealth)
	r.Get("/limits", a.getLimits)

	r.Route("/users/{handle}", func(r chi.Router) {
		r.Get("/history", a.getHistory)
		r.Get("/likes", a.getLikes)
		r.Get("/recommendations", a.getRecommendations)

		r.Group(func(r chi.Router) {
			r.Use(a.limitWrites)
			r.Post("/history", a.addHistory)
			r.Delete("/history/{videoId}", a.removeHistory)
			r.Delete("/history", a.clearHistory)
			r.Post("/likes", a.addLike)
			r.Delete("/likes/{videoId}", a.removeLike)
			r.Delete("/likes", a.clearLikes)
		})
	})
}

func handleStorageHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// pathParam returns the unescaped value of a route parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if value, err := url.PathUnescape(raw); err == nil {
		return value
	}
	return raw
}

func (a *storageAPI) respond(w http.ResponseWriter, op string, status int, body any) {
	a.metrics.RecordStorageRequest(op, status)
	writeJSON(w, status, body)
}

// fail maps a store error to a status code and logs server-side failures.
func (a *storageAPI) fail(w http.ResponseWriter, op, message string, err error) {
	switch {
	case errors.Is(err, core.ErrNoHandle):
		a.respond(w, op, http.StatusBadRequest, map[string]string{"error": "Nickname is required"})
	case errors.Is(err, core.ErrInvalidTrack):
		a.respond(w, op, http.StatusBadRequest, map[string]string{"error": "Invalid item: videoId is required"})
	default:
		a.logger.Error("Storage request failed", zap.String("op", op), zap.Error(err))
		a.respond(w, op, http.StatusInternalServerError, map[string]string{"error": message})
	}
}

// getLimits reports the write limiter; an unlimited server answers with
// zero values.
func (a *storageAPI) getLimits(w http.ResponseWriter, _ *http.Request) {
	var stats flood.Stats
	if a.gate != nil {
		stats = a.gate.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *storageAPI) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := pathParam(r, "handle")
		if a.gate != nil && strings.TrimSpace(handle) != "" && !a.gate.Allow(profile.SanitizeHandle(handle)) {
			a.metrics.RecordRateLimited()
			a.logger.Warn("Rate limited profile write",
				zap.String("handle", handle),
				zap.Int("activeHandles", a.gate.Stats().ActiveKeys))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeTrack(r *http.Request) (core.Track, error) {
	var track core.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		return core.Track{}, core.ErrInvalidTrack
	}
	if strings.TrimSpace(track.ID) == "" {
		return core.Track{}, core.ErrInvalidTrack
	}
	return track, nil
}

func (a *storageAPI) getHistory(w http.ResponseWriter, r *http.Request) {
	p, err := a.profiles.Load(r.Context(), pathParam(r, "handle"))
	if err != nil {
		a.fail(w, "getHistory", "Failed to get history", err)
		return
	}
	a.respond(w, "getHistory", http.StatusOK, p.History)
}

func (a *storageAPI) addHistory(w http.ResponseWriter, r *http.Request) {
	handle := pathParam(r, "handle")
	if strings.TrimSpace(handle) == "" {
		a.fail(w, "addHistory", "", core.ErrNoHandle)
		return
	}
	track, err := decodeTrack(r)
	if err != nil {
		a.fail(w, "addHistory", "", err)
		return
	}
	count, err := a.profiles.AddHistory(r.Context(), handle, track)
	if err != nil {
		a.fail(w, "addHistory", "Failed to add history", err)
		return
	}
	a.respond(w, "addHistory", http.StatusOK, counted(count))
}

func (a *storageAPI) removeHistory(w http.ResponseWriter, r *http.Request) {
	count, err := a.profiles.RemoveHistory(r.Context(), pathParam(r, "handle"), pathParam(r, "videoId"))
	if err != nil {
		a.fail(w, "removeHistory", "Failed to remove history item", err)
		return
	}
	a.respond(w, "removeHistory", http.StatusOK, counted(count))
}

func (a *storageAPI) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.profiles.ClearHistory(r.Context(), pathParam(r, "handle")); err != nil {
		a.fail(w, "clearHistory", "Failed to clear history", err)
		return
	}
	a.respond(w, "clearHistory", http.StatusOK, mutationResult{Success: true})
}

func (a *storageAPI) getLikes(w http.ResponseWriter, r *http.Request) {
	p, err := a.profiles.Load(r.Context(), pathParam(r, "handle"))
	if err != nil {
		a.fail(w, "getLikes", "Failed to get likes", err)
		return
	}
	a.respond(w, "getLikes", http.StatusOK, p.Likes)
}

func (a *storageAPI) addLike(w http.ResponseWriter, r *http.Request) {
	handle := pathParam(r, "handle")
	if strings.TrimSpace(handle) == "" {
		a.fail(w, "addLike", "", core.ErrNoHandle)
		return
	}
	track, err := decodeTrack(r)
	if err != nil {
		a.fail(w, "addLike", "", err)
		return
	}
	count, added, err := a.profiles.AddLike(r.Context(), handle, track)
	if err != nil {
		a.fail(w, "addLike", "Failed to add like", err)
		return
	}
	result := counted(count)
	if !added {
		result.Message = "Already liked"
	}
	a.respond(w, "addLike", http.StatusOK, result)
}

func (a *storageAPI) removeLike(w http.ResponseWriter, r *http.Request) {
	count, err := a.profiles.RemoveLike(r.Context(), pathParam(r, "handle"), pathParam(r, "videoId"))
	if err != nil {
		a.fail(w, "removeLike", "Failed to remove like", err)
		return
	}
	a.respond(w, "removeLike", http.StatusOK, counted(count))
}

func (a *storageAPI) clearLikes(w http.ResponseWriter, r *http.Request) {
	if err := a.profiles.ClearLikes(r.Context(), pathParam(r, "handle")); err != nil {
		a.fail(w, "clearLikes", "Failed to clear likes", err)
		return
	}
	a.respond(w, "clearLikes", http.StatusOK, mutationResult{Success: true})
}

func (a *storageAPI) getRecommendations(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = core.DefaultRecommendationLimit
	}
	seed, err := a.profiles.Seed(r.Context(), pathParam(r, "handle"), limit)
	if err != nil {
		a.fail(w, "getRecommendations", "Failed to get recommendations", err)
		return
	}
	a.respond(w, "getRecommendations", http.StatusOK, seed)
}

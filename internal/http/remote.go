package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
	"ytmdremote/internal/player"
)

type remoteAPI struct {
	session      *core.Session
	target       Targeter
	playerConfig core.PlayerConfig
	logger       *zap.Logger
}

type trackRequest struct {
	Track    core.Track `json:"track"`
	Position string     `json:"position"`
}

func (a *remoteAPI) routes(r chi.Router) {
	r.Use(a.retarget)
	r.Get("/target", a.getTarget)
	r.Get("/state", a.getState)
	r.Get("/notifications", a.getNotifications)

	r.Get("/queue", a.getQueue)
	r.Post("/queue", a.addToQueue)
	r.Delete("/queue", a.clearQueue)
	r.Delete("/queue/{entryKey}", a.removeEntry)
	r.Post("/queue/{entryKey}/move", a.moveEntry)
	r.Post("/queue/{entryKey}/jump", a.jumpTo)
	r.Post("/play-now", a.playNow)

	r.Post("/seek", a.seek)
	r.Post("/go-back", a.skip(-1))
	r.Post("/go-forward", a.skip(1))
	r.Post("/volume", a.setVolume)
	r.Post("/toggle-play", a.command(a.session.Synchronizer().TogglePlay))
	r.Post("/toggle-mute", a.command(a.session.Synchronizer().ToggleMute))
	r.Post("/next", a.command(a.session.Synchronizer().Next))
	r.Post("/previous", a.command(a.session.Synchronizer().Previous))
	r.Post("/repeat", a.toggleRepeat)
	r.Post("/shuffle", a.toggleShuffle)
	r.Post("/rate", a.rate)
	r.Get("/fullscreen", a.getFullscreen)
	r.Put("/fullscreen", a.setFullscreen)

	r.Get("/search", a.search)
	r.Get("/handle", a.getHandle)
	r.Put("/handle", a.setHandle)
	r.Post("/like", a.toggleLike)
	r.Get("/recommendations", a.recommendations)
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidTrack),
		errors.Is(err, core.ErrInvalidEntryKey),
		errors.Is(err, core.ErrInvalidRating),
		errors.Is(err, core.ErrNoHandle):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrEntryNotFound),
		errors.Is(err, core.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEntryIsCurrent),
		errors.Is(err, core.ErrOperationInFlight),
		errors.Is(err, core.ErrSearchSuperseded):
		return http.StatusConflict
	case errors.Is(err, core.ErrRemoteUnavailable),
		errors.Is(err, core.ErrEnqueueFailed),
		errors.Is(err, core.ErrTrackNotVisible),
		errors.Is(err, core.ErrSetIndexFailed),
		errors.Is(err, core.ErrPlayFailed),
		errors.Is(err, core.ErrDeleteFailed),
		errors.Is(err, core.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *remoteAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("Remote request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return errBadRequest
	}
	return nil
}

var errBadRequest = errors.New("invalid request body")

func (a *remoteAPI) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// retarget moves the player client when a request names a player with the
// ip, host or port query parameters. The new address sticks for later
// requests that name none.
func (a *remoteAPI) retarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.target != nil && hasTargetQuery(r) {
			baseURL := player.BaseURLFromQuery(r.URL.Query(), a.playerConfig)
			if a.target.Retarget(baseURL) {
				a.logger.Debug("Request retargeted the player", zap.String("path", r.URL.Path), zap.String("baseUrl", baseURL))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func hasTargetQuery(r *http.Request) bool {
	query := r.URL.Query()
	return query.Has("ip") || query.Has("host") || query.Has("port")
}

func (a *remoteAPI) getTarget(w http.ResponseWriter, r *http.Request) {
	baseURL := player.BaseURLFromQuery(r.URL.Query(), a.playerConfig)
	if a.target != nil {
		baseURL = a.target.BaseURL()
	}
	writeJSON(w, http.StatusOK, map[string]string{"baseUrl": baseURL})
}

func (a *remoteAPI) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Synchronizer().State())
}

func (a *remoteAPI) getNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Notifier().Active())
}

// getQueue refreshes the mirror and falls back to the last copy when the
// player is unreachable.
func (a *remoteAPI) getQueue(w http.ResponseWriter, r *http.Request) {
	engine := a.session.Engine()
	queue, err := engine.RefreshQueue(r.Context())
	if err != nil {
		queue = engine.Queue()
	}
	if queue == nil {
		queue = []core.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, queue)
}

func (a *remoteAPI) playNow(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	state, err := a.session.PlayNow(r.Context(), req.Track)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *remoteAPI) addToQueue(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	mode, ok := core.ParseInsertMode(req.Position)
	if !ok {
		a.badRequest(w, errors.New("position must be \"end\" or \"next\""))
		return
	}
	if err := a.session.AddToQueue(r.Context(), req.Track, mode); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "position": mode.String()})
}

func (a *remoteAPI) removeEntry(w http.ResponseWriter, r *http.Request) {
	if err := a.session.Remove(r.Context(), pathParam(r, "entryKey")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func parseDirection(s string) (core.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return core.Up, true
	case "down":
		return core.Down, true
	default:
		return 0, false
	}
}

func (a *remoteAPI) moveEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	direction, ok := parseDirection(req.Direction)
	if !ok {
		a.badRequest(w, errors.New("direction must be \"up\" or \"down\""))
		return
	}
	if err := a.session.Move(r.Context(), pathParam(r, "entryKey"), direction); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *remoteAPI) clearQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := a.session.ClearQueue(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": removed})
}

func (a *remoteAPI) jumpTo(w http.ResponseWriter, r *http.Request) {
	if err := a.session.JumpTo(r.Context(), pathParam(r, "entryKey")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *remoteAPI) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := decodeBody(r, &req); err != nil || req.Seconds == nil || *req.Seconds < 0 {
		a.badRequest(w, errors.New("seconds must be a non-negative number"))
		return
	}
	position := a.session.Synchronizer().Seek(r.Context(), *req.Seconds)
	writeJSON(w, http.StatusOK, map[string]float64{"positionSeconds": position})
}

// skip returns a handler for go-back (sign -1) and go-forward (sign 1).
func (a *remoteAPI) skip(sign int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Seconds int `json:"seconds"`
		}
		if err := decodeBody(r, &req); err != nil || req.Seconds <= 0 {
			a.badRequest(w, errors.New("seconds must be a positive integer"))
			return
		}
		if err := a.session.Synchronizer().SeekRelative(r.Context(), sign*req.Seconds); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a.session.Synchronizer().State())
	}
}

func (a *remoteAPI) setVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *int `json:"volume"`
	}
	if err := decodeBody(r, &req); err != nil || req.Volume == nil {
		a.badRequest(w, errors.New("volume is required"))
		return
	}
	writeJSON(w, http.StatusOK, a.session.Synchronizer().SetVolume(r.Context(), *req.Volume))
}

func (a *remoteAPI) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a.session.Synchronizer().State())
	}
}

func (a *remoteAPI) toggleRepeat(w http.ResponseWriter, r *http.Request) {
	mode := a.session.ToggleRepeat(r.Context())
	writeJSON(w, http.StatusOK, map[string]core.RepeatMode{"repeatMode": mode})
}

func (a *remoteAPI) toggleShuffle(w http.ResponseWriter, r *http.Request) {
	shuffled := a.session.ToggleShuffle(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"isShuffled": shuffled})
}

func (a *remoteAPI) rate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating core.Rating `json:"rating"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	if err := a.session.Rate(r.Context(), req.Rating); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.Rating{"rating": req.Rating})
}

func (a *remoteAPI) getFullscreen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"fullscreen": a.session.Fullscreen(r.Context())})
}

func (a *remoteAPI) setFullscreen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fullscreen *bool `json:"fullscreen"`
	}
	if err := decodeBody(r, &req); err != nil || req.Fullscreen == nil {
		a.badRequest(w, errors.New("fullscreen is required"))
		return
	}
	if err := a.session.SetFullscreen(r.Context(), *req.Fullscreen); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"fullscreen": *req.Fullscreen})
}

func (a *remoteAPI) search(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.session.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []core.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (a *remoteAPI) getHandle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"handle": a.session.Handle()})
}

func (a *remoteAPI) setHandle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	if err := a.session.SetHandle(r.Context(), req.Handle); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"handle": a.session.Handle()})
}

func (a *remoteAPI) toggleLike(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	liked, err := a.session.ToggleLike(r.Context(), req.Track)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (a *remoteAPI) recommendations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tracks, err := a.session.Recommendations(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []core.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

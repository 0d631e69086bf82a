package api

import (
	"context"
	"net/http"
	"strings"
)

// AvatarDependencies defines the avatar pool operations used by handlers.
type AvatarDependencies interface {
	Avatars(ctx context.Context) (PoolView, error)
	Recycle(ctx context.Context, id string) error
	SyncAvatars(ctx context.Context) (int, error)
}

type syncResponse struct {
	Added int `json:"added"`
}

// AvatarsHandler handles avatar pool requests.
type AvatarsHandler struct {
	deps AvatarDependencies
}

// NewAvatarsHandler creates a new avatars handler.
func NewAvatarsHandler(deps AvatarDependencies) *AvatarsHandler {
	return &AvatarsHandler{deps: deps}
}

// HandleGetAvatars handles GET /avatars.
func (h *AvatarsHandler) HandleGetAvatars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	view, err := h.deps.Avatars(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.get_avatars", err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSync handles POST /avatars/sync.
func (h *AvatarsHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	added, err := h.deps.SyncAvatars(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.sync_avatars", err))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Added: added})
}

// HandleRecycle handles POST /avatars/{id}/recycle.
func (h *AvatarsHandler) HandleRecycle(w http.ResponseWriter, r *http.Request) {
	const op = "api.recycle_avatar"
	id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/avatars/"), "/recycle")
	if !ok || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Recycle(r.Context(), id); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

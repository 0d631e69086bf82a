package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/avatarcast/internal/domain/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
	maxScriptRunes   = 5000

	idempotencyHeader = "Idempotency-Key"
)

// GenerationDependencies defines the generation operations used by handlers.
type GenerationDependencies interface {
	// Submit queues req and returns its job ID. A known request ID returns
	// the original job ID with duplicate set.
	Submit(ctx context.Context, requestID string, req model.GenerationRequest) (jobID string, duplicate bool, err error)
	Job(ctx context.Context, id string) (model.GenerationJob, error)
	Jobs(ctx context.Context, state model.JobState, limit int) ([]model.GenerationJob, error)
}

// generationRequest is the body of POST /generations.
type generationRequest struct {
	RequestID  string `json:"request_id"`
	Script     string `json:"script"`
	Tone       string `json:"tone"`
	Language   string `json:"language"`
	VoiceHint  string `json:"voice_hint"`
	PromptHint string `json:"prompt_hint"`
}

func (g generationRequest) validate() error {
	switch {
	case strings.TrimSpace(g.Script) == "":
		return errors.New("missing script")
	case len([]rune(g.Script)) > maxScriptRunes:
		return errors.New("script too long")
	case len(g.RequestID) > 128:
		return errors.New("request_id too long")
	}
	return nil
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// GenerationsHandler handles generation requests.
type GenerationsHandler struct {
	deps         GenerationDependencies
	defaultLimit int
	maxLimit     int
}

// NewGenerationsHandler creates a new generations handler.
func NewGenerationsHandler(deps GenerationDependencies, defaultLimit, maxLimit int) *GenerationsHandler {
	return &GenerationsHandler{deps: deps, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// HandleGenerations handles POST /generations and GET /generations.
func (h *GenerationsHandler) HandleGenerations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *GenerationsHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_generation"
	var req generationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	jobID, duplicate, err := h.deps.Submit(r.Context(), req.RequestID, model.GenerationRequest{
		Script:     req.Script,
		Tone:       req.Tone,
		Language:   req.Language,
		VoiceHint:  req.VoiceHint,
		PromptHint: req.PromptHint,
	})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/generations/"+jobID)
	if duplicate {
		writeJSON(w, http.StatusOK, submitResponse{JobID: jobID, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: "accepted"})
}

// handleList handles GET /generations?state=S&limit=N.
func (h *GenerationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_generations"
	q := r.URL.Query()
	limit := h.defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	state := model.JobState(strings.ToLower(q.Get("state")))
	if state != "" && !state.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	jobs, err := h.deps.Jobs(r.Context(), state, limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleGetGeneration handles GET /generations/{id}.
func (h *GenerationsHandler) HandleGetGeneration(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_generation"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/generations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	job, err := h.deps.Job(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/okian/avatarcast/pkg/metrics"
)

const replicateName = "replicate"

// Replicate runs a SadTalker model on Replicate. It needs a real audio
// file; native refs are rejected at submit.
type Replicate struct {
	cfg  Config
	rest restClient
}

var _ Provider = (*Replicate)(nil)

// NewReplicate creates the adapter. cfg.Version is the model version hash.
func NewReplicate(cfg Config) *Replicate {
	cfg = cfg.withDefaults()
	return &Replicate{
		cfg:  cfg,
		rest: newRESTClient(cfg.BaseURL, cfg.HTTPClient, map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
	}
}

// Name implements Provider.
func (r *Replicate) Name() string { return replicateName }

// Configured implements Provider.
func (r *Replicate) Configured() bool {
	return r.cfg.APIKey != "" && r.cfg.BaseURL != "" && r.cfg.Version != ""
}

type replicateInput struct {
	SourceImage string `json:"source_image"`
	DrivenAudio string `json:"driven_audio"`
	Preprocess  string `json:"preprocess"`
	Still       bool   `json:"still"`
	Enhancer    string `json:"enhancer,omitempty"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Submit implements Provider.
func (r *Replicate) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	switch {
	case !r.Configured():
		return "", r.submitErr(ErrNotConfigured)
	case req.ImageURL == "":
		return "", r.submitErr(ErrMissingImage)
	case req.Audio.Native || req.Audio.URL == "":
		return "", r.submitErr(ErrNativeAudioUnsupported)
	}

	body := struct {
		Version string         `json:"version"`
		Input   replicateInput `json:"input"`
	}{
		Version: r.cfg.Version,
		Input: replicateInput{
			SourceImage: req.ImageURL,
			DrivenAudio: req.Audio.URL,
			Preprocess:  "full",
			Still:       true,
			Enhancer:    "gfpgan",
		},
	}

	var out replicatePrediction
	if err := r.rest.do(ctx, http.MethodPost, "/v1/predictions", body, &out); err != nil {
		return "", r.submitErr(err)
	}
	if out.ID == "" {
		return "", r.submitErr(ErrMalformedStatus)
	}
	metrics.RecordVideoSubmission(replicateName, "accepted")
	return out.ID, nil
}

func (r *Replicate) submitErr(err error) error {
	metrics.RecordVideoSubmission(replicateName, "rejected")
	return &SubmitError{Provider: replicateName, Err: err}
}

// Poll implements Poller.
func (r *Replicate) Poll(ctx context.Context, jobID string) (PollResult, error) {
	var out replicatePrediction
	if err := r.rest.do(ctx, http.MethodGet, "/v1/predictions/"+url.PathEscape(jobID), nil, &out); err != nil {
		return PollResult{}, err
	}
	var res PollResult
	switch out.Status {
	case "starting":
		res.Status = StatusQueued
	case "processing":
		res.Status = StatusProcessing
	case "succeeded":
		res.Status = StatusSucceeded
		res.VideoURL = outputURL(out.Output)
	case "failed", "canceled":
		res.Status = StatusFailed
		res.Detail = rawString(out.Error)
	default:
		res.Status = Status(out.Status)
	}
	return res, nil
}

// Resolve implements Provider.
func (r *Replicate) Resolve(ctx context.Context, jobID string) (string, error) {
	return Resolve(ctx, r, replicateName, jobID, r.cfg.PollInterval, r.cfg.MaxAttempts, r.cfg.Logger)
}

// outputURL accepts both a single URL and a list whose last entry is the
// final video.
func outputURL(raw json.RawMessage) string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[len(list)-1]
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

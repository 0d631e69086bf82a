package video

import (
	"context"
	"net/http"
	"net/url"

	"github.com/okian/avatarcast/pkg/metrics"
)

const didName = "did"

// DID renders talks with the D-ID API. Native audio refs are spoken by
// D-ID's Microsoft voices.
type DID struct {
	cfg  Config
	rest restClient
}

var _ Provider = (*DID)(nil)

// NewDID creates the adapter. APIKey is the Basic credential D-ID issues.
func NewDID(cfg Config) *DID {
	cfg = cfg.withDefaults()
	return &DID{
		cfg:  cfg,
		rest: newRESTClient(cfg.BaseURL, cfg.HTTPClient, map[string]string{"Authorization": "Basic " + cfg.APIKey}),
	}
}

// Name implements Provider.
func (d *DID) Name() string { return didName }

// Configured implements Provider.
func (d *DID) Configured() bool { return d.cfg.APIKey != "" && d.cfg.BaseURL != "" }

type didVoice struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type didScript struct {
	Type     string    `json:"type"`
	AudioURL string    `json:"audio_url,omitempty"`
	Input    string    `json:"input,omitempty"`
	Provider *didVoice `json:"provider,omitempty"`
}

type didTalkRequest struct {
	SourceURL string    `json:"source_url"`
	Script    didScript `json:"script"`
	Config    struct {
		Stitch bool `json:"stitch"`
	} `json:"config"`
}

type didTalk struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     *struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
	} `json:"error"`
}

// Submit implements Provider.
func (d *DID) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !d.Configured() {
		return "", d.submitErr(ErrNotConfigured)
	}
	if req.ImageURL == "" {
		return "", d.submitErr(ErrMissingImage)
	}

	body := didTalkRequest{SourceURL: req.ImageURL}
	body.Config.Stitch = true
	if req.Audio.Native {
		body.Script = didScript{
			Type:     "text",
			Input:    req.Audio.Text,
			Provider: &didVoice{Type: "microsoft", VoiceID: req.Audio.Voice},
		}
	} else {
		body.Script = didScript{Type: "audio", AudioURL: req.Audio.URL}
	}

	var out didTalk
	if err := d.rest.do(ctx, http.MethodPost, "/talks", body, &out); err != nil {
		return "", d.submitErr(err)
	}
	if out.ID == "" {
		return "", d.submitErr(ErrMalformedStatus)
	}
	metrics.RecordVideoSubmission(didName, "accepted")
	return out.ID, nil
}

func (d *DID) submitErr(err error) error {
	metrics.RecordVideoSubmission(didName, "rejected")
	return &SubmitError{Provider: didName, Err: err}
}

// Poll implements Poller.
func (d *DID) Poll(ctx context.Context, jobID string) (PollResult, error) {
	var out didTalk
	if err := d.rest.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(jobID), nil, &out); err != nil {
		return PollResult{}, err
	}
	res := PollResult{VideoURL: out.ResultURL}
	switch out.Status {
	case "created":
		res.Status = StatusQueued
	case "started":
		res.Status = StatusProcessing
	case "done":
		res.Status = StatusSucceeded
	case "error", "rejected":
		res.Status = StatusFailed
		if e := out.Error; e != nil {
			res.Detail = firstNonEmpty(e.Description, e.Kind)
		}
	default:
		res.Status = Status(out.Status)
	}
	return res, nil
}

// Resolve implements Provider.
func (d *DID) Resolve(ctx context.Context, jobID string) (string, error) {
	return Resolve(ctx, d, didName, jobID, d.cfg.PollInterval, d.cfg.MaxAttempts, d.cfg.Logger)
}

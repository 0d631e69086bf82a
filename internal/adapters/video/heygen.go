package video

import (
	"context"
	"net/http"
	"net/url"

	"github.com/okian/avatarcast/pkg/metrics"
)

const heyGenName = "heygen"

// Portrait output suited to short-form social video.
const (
	heyGenWidth  = 720
	heyGenHeight = 1280
)

// HeyGen renders talking photos with the HeyGen API.
type HeyGen struct {
	cfg  Config
	rest restClient
}

var _ Provider = (*HeyGen)(nil)

// NewHeyGen creates the adapter.
func NewHeyGen(cfg Config) *HeyGen {
	cfg = cfg.withDefaults()
	return &HeyGen{
		cfg:  cfg,
		rest: newRESTClient(cfg.BaseURL, cfg.HTTPClient, map[string]string{"X-Api-Key": cfg.APIKey}),
	}
}

// Name implements Provider.
func (h *HeyGen) Name() string { return heyGenName }

// Configured implements Provider.
func (h *HeyGen) Configured() bool { return h.cfg.APIKey != "" && h.cfg.BaseURL != "" }

type heyGenVoice struct {
	Type      string `json:"type"`
	AudioURL  string `json:"audio_url,omitempty"`
	InputText string `json:"input_text,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"`
}

type heyGenInput struct {
	Character struct {
		Type            string `json:"type"`
		TalkingPhotoURL string `json:"talking_photo_url"`
		Style           string `json:"talking_photo_style,omitempty"`
	} `json:"character"`
	Voice heyGenVoice `json:"voice"`
}

type heyGenGenerateRequest struct {
	VideoInputs []heyGenInput `json:"video_inputs"`
	Dimension   struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimension"`
	Title string `json:"title,omitempty"`
}

type heyGenGenerateResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Data struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

// Submit implements Provider.
func (h *HeyGen) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !h.Configured() {
		return "", h.submitErr(ErrNotConfigured)
	}
	if req.ImageURL == "" {
		return "", h.submitErr(ErrMissingImage)
	}

	var in heyGenInput
	in.Character.Type = "talking_photo"
	in.Character.TalkingPhotoURL = req.ImageURL
	in.Character.Style = h.cfg.Version
	if req.Audio.Native {
		voice, ok := h.cfg.nativeVoice(req.Audio)
		if !ok {
			return "", h.submitErr(ErrNativeVoiceUnmapped)
		}
		in.Voice = heyGenVoice{Type: "text", InputText: req.Audio.Text, VoiceID: voice}
	} else {
		in.Voice = heyGenVoice{Type: "audio", AudioURL: req.Audio.URL}
	}
	body := heyGenGenerateRequest{VideoInputs: []heyGenInput{in}, Title: req.JobID}
	body.Dimension.Width, body.Dimension.Height = heyGenWidth, heyGenHeight

	var out heyGenGenerateResponse
	if err := h.rest.do(ctx, http.MethodPost, "/v2/video/generate", body, &out); err != nil {
		return "", h.submitErr(err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", h.submitErr(&FailureError{Provider: heyGenName, Detail: out.Error.Message})
	}
	if out.Data.VideoID == "" {
		return "", h.submitErr(ErrMalformedStatus)
	}
	metrics.RecordVideoSubmission(heyGenName, "accepted")
	return out.Data.VideoID, nil
}

func (h *HeyGen) submitErr(err error) error {
	metrics.RecordVideoSubmission(heyGenName, "rejected")
	return &SubmitError{Provider: heyGenName, Err: err}
}

type heyGenStatusResponse struct {
	Data struct {
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
		Error    *struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	} `json:"data"`
}

// Poll implements Poller.
func (h *HeyGen) Poll(ctx context.Context, jobID string) (PollResult, error) {
	var out heyGenStatusResponse
	path := "/v1/video_status.get?video_id=" + url.QueryEscape(jobID)
	if err := h.rest.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return PollResult{}, err
	}
	res := PollResult{VideoURL: out.Data.VideoURL}
	switch out.Data.Status {
	case "pending", "waiting":
		res.Status = StatusQueued
	case "processing":
		res.Status = StatusProcessing
	case "completed":
		res.Status = StatusSucceeded
	case "failed":
		res.Status = StatusFailed
		if e := out.Data.Error; e != nil {
			res.Detail = firstNonEmpty(e.Detail, e.Message)
		}
	default:
		res.Status = Status(out.Data.Status)
	}
	return res, nil
}

// Resolve implements Provider.
func (h *HeyGen) Resolve(ctx context.Context, jobID string) (string, error) {
	return Resolve(ctx, h, heyGenName, jobID, h.cfg.PollInterval, h.cfg.MaxAttempts, h.cfg.Logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

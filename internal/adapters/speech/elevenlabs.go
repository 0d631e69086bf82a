package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/avatarcast/internal/adapters/storage"
	"github.com/okian/avatarcast/internal/domain/model"
)

const (
	elevenLabsName = "elevenlabs"
	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 512
)

// ElevenLabsConfig configures the ElevenLabs client.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

// ElevenLabs synthesizes MP3 audio through the ElevenLabs REST API.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	store  storage.AudioStore
	client *http.Client
}

var _ Synthesizer = (*ElevenLabs)(nil)

// NewElevenLabs creates the client. A nil httpClient uses
// http.DefaultClient; call timeouts come from the request context.
func NewElevenLabs(cfg ElevenLabsConfig, store storage.AudioStore, httpClient *http.Client) *ElevenLabs {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &ElevenLabs{cfg: cfg, store: store, client: httpClient}
}

// Name implements Synthesizer.
func (e *ElevenLabs) Name() string { return elevenLabsName }

// Configured implements Synthesizer.
func (e *ElevenLabs) Configured() bool {
	return e.cfg.APIKey != "" && e.cfg.BaseURL != "" && e.store != nil
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id,omitempty"`
	VoiceSettings map[string]float64 `json:"voice_settings"`
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (model.AudioRef, error) {
	if !e.Configured() {
		return model.AudioRef{}, ErrNotConfigured
	}
	if strings.TrimSpace(req.Text) == "" {
		return model.AudioRef{}, ErrEmptyText
	}
	voice := req.VoiceHint
	if voice == "" {
		voice = e.cfg.VoiceID
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:          req.Text,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: map[string]float64{"stability": 0.5, "similarity_boost": 0.75},
	})
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.cfg.BaseURL, url.PathEscape(voice))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return model.AudioRef{}, fmt.Errorf("%w %d: %s", ErrProviderStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return model.AudioRef{}, ErrEmptyAudio
	}

	audioURL, err := e.store.Put(ctx, audioName(req.JobID, e.Name()), audio)
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("store audio: %w", err)
	}
	return model.AudioRef{
		URL:      audioURL,
		Provider: e.Name(),
		Voice:    voice,
		Language: req.Language,
	}, nil
}

// audioName builds "<job>-<provider>.mp3".
func audioName(jobID, provider string) string {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return jobID + "-" + provider + ".mp3"
}

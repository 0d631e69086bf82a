package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/okian/avatarcast/internal/adapters/storage"
	"github.com/okian/avatarcast/internal/domain/model"
)

const openAIName = "openai"

// OpenAIConfig configures OpenAI text-to-speech.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAI synthesizes speech with the OpenAI audio API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *openai.Client
	store  storage.AudioStore
}

var _ Synthesizer = (*OpenAI)(nil)

// NewOpenAI creates the client. BaseURL, when set, replaces the API root
// (it must include the /v1 suffix).
func NewOpenAI(cfg OpenAIConfig, store storage.AudioStore) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	return &OpenAI{cfg: cfg, client: openai.NewClientWithConfig(clientCfg), store: store}
}

// Name implements Synthesizer.
func (o *OpenAI) Name() string { return openAIName }

// Configured implements Synthesizer.
func (o *OpenAI) Configured() bool { return o.cfg.APIKey != "" && o.store != nil }

// Synthesize implements Synthesizer.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (model.AudioRef, error) {
	if !o.Configured() {
		return model.AudioRef{}, ErrNotConfigured
	}
	if strings.TrimSpace(req.Text) == "" {
		return model.AudioRef{}, ErrEmptyText
	}
	voice := o.cfg.Voice
	if req.VoiceHint != "" && !strings.HasSuffix(req.VoiceHint, "Neural") {
		voice = req.VoiceHint
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.cfg.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return model.AudioRef{}, ErrEmptyAudio
	}

	audioURL, err := o.store.Put(ctx, audioName(req.JobID, o.Name()), audio)
	if err != nil {
		return model.AudioRef{}, fmt.Errorf("store audio: %w", err)
	}
	return model.AudioRef{
		URL:      audioURL,
		Provider: o.Name(),
		Voice:    voice,
		Language: req.Language,
	}, nil
}

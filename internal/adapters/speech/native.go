package speech

import (
	"context"
	"strings"

	"github.com/okian/avatarcast/internal/domain/model"
)

const nativeName = "native"

// nativeVoices maps ISO 639-1 codes to the default provider voice.
var nativeVoices = map[string]string{ //nolint:gochecknoglobals // static lookup table
	"es": "es-MX-DaliaNeural",
	"en": "en-US-JennyNeural",
	"pt": "pt-BR-FranciscaNeural",
	"fr": "fr-FR-DeniseNeural",
	"de": "de-DE-KatjaNeural",
	"it": "it-IT-ElsaNeural",
}

// Native defers speech to the video provider's built-in text-to-speech.
// It needs no credentials and never performs I/O.
type Native struct {
	defaultLanguage string
}

var _ Synthesizer = (*Native)(nil)

// NewNative creates the native synthesizer.
func NewNative(defaultLanguage string) *Native {
	return &Native{defaultLanguage: strings.ToLower(defaultLanguage)}
}

// Name implements Synthesizer.
func (n *Native) Name() string { return nativeName }

// Configured implements Synthesizer.
func (n *Native) Configured() bool { return true }

// Synthesize implements Synthesizer.
func (n *Native) Synthesize(ctx context.Context, req Request) (model.AudioRef, error) {
	if err := ctx.Err(); err != nil {
		return model.AudioRef{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return model.AudioRef{}, ErrEmptyText
	}
	lang := baseLanguage(req.Language)
	if lang == "" {
		lang = baseLanguage(n.defaultLanguage)
	}
	voice := req.VoiceHint
	if !strings.HasSuffix(voice, "Neural") {
		v, ok := nativeVoices[lang]
		if !ok {
			return model.AudioRef{}, ErrUnsupportedLanguage
		}
		voice = v
	}
	return model.AudioRef{
		Provider: n.Name(),
		Voice:    voice,
		Language: lang,
		Native:   true,
		Text:     req.Text,
	}, nil
}

// VoiceFor returns the default native voice for a language.
func VoiceFor(language string) (string, bool) {
	v, ok := nativeVoices[baseLanguage(language)]
	return v, ok
}

// baseLanguage reduces "es-AR" to "es".
func baseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

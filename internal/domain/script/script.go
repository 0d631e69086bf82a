// Package script derives a ScriptContext (tone, descriptor, language and
// tokens) from a raw marketing script.
package script

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/domain/scoring"
)

// ErrEmptyScript is returned for blank scripts.
var ErrEmptyScript = errors.New("script is empty")

const (
	defaultLanguage     = "es"
	energeticBangCount  = 2
	thoughtfulAskCount  = 2
	keywordHitThreshold = 1
)

// toneAliases maps free-form tone requests onto the closed Tone set.
var toneAliases = map[string]model.Tone{ //nolint:gochecknoglobals // static lookup table
	"educational":   model.ToneSerious,
	"educativo":     model.ToneSerious,
	"informative":   model.ToneSerious,
	"informativo":   model.ToneSerious,
	"professional":  model.ToneSerious,
	"profesional":   model.ToneSerious,
	"formal":        model.ToneSerious,
	"promotional":   model.ToneEnergetic,
	"promocional":   model.ToneEnergetic,
	"sales":         model.ToneEnergetic,
	"ventas":        model.ToneEnergetic,
	"exciting":      model.ToneEnergetic,
	"excited":       model.ToneEnergetic,
	"urgent":        model.ToneEnergetic,
	"funny":         model.ToneHappy,
	"fun":           model.ToneHappy,
	"divertido":     model.ToneHappy,
	"casual":        model.ToneHappy,
	"friendly":      model.ToneHappy,
	"inspirational": model.ToneThoughtful,
	"inspiracional": model.ToneThoughtful,
	"reflective":    model.ToneThoughtful,
	"storytelling":  model.ToneThoughtful,
	"emotional":     model.ToneThoughtful,
	"calm":          model.ToneNeutral,
}

// descriptors feed the semantic match with words describing the presenter.
var descriptors = map[model.Tone]string{ //nolint:gochecknoglobals // static lookup table
	model.ToneHappy:      "happy friendly smiling cheerful casual",
	model.ToneNeutral:    "neutral natural clear approachable",
	model.ToneSerious:    "serious professional expert business teacher",
	model.ToneEnergetic:  "energetic excited dynamic enthusiastic bold",
	model.ToneThoughtful: "thoughtful calm reflective inspiring warm",
}

// keywords drive tone inference when the request names no tone.
var keywords = map[model.Tone][]string{ //nolint:gochecknoglobals // static lookup table
	model.ToneEnergetic:  {"oferta", "descuento", "gratis", "ahora", "promo", "sale", "free", "now", "limited", "limitada"},
	model.ToneSerious:    {"aprende", "learn", "tips", "guia", "guide", "consejos", "estrategia", "strategy", "pasos", "steps"},
	model.ToneHappy:      {"divertido", "fun", "feliz", "happy", "celebra", "celebrate", "jaja", "haha"},
	model.ToneThoughtful: {"historia", "story", "imagina", "imagine", "reflexiona", "suenos", "dreams", "vida", "life"},
}

// inferenceOrder fixes the priority between tones with equal keyword hits.
var inferenceOrder = []model.Tone{model.ToneEnergetic, model.ToneSerious, model.ToneHappy, model.ToneThoughtful} //nolint:gochecknoglobals // static order

// Request carries the caller's script and hints.
type Request struct {
	Script   string
	Tone     string
	Language string
}

// LanguageDetector guesses the ISO 639-1 code of a text.
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithDetector sets the language detector.
func WithDetector(d LanguageDetector) Option {
	return func(a *Analyzer) {
		if d != nil {
			a.detector = d
		}
	}
}

// WithDefaultLanguage sets the language used when detection fails.
func WithDefaultLanguage(lang string) Option {
	return func(a *Analyzer) {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			a.defaultLanguage = lang
		}
	}
}

// Analyzer builds ScriptContexts.
type Analyzer struct {
	detector        LanguageDetector
	defaultLanguage string
}

// NewAnalyzer creates an analyzer. Without WithDetector no detection is done.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{defaultLanguage: defaultLanguage}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze derives the immutable ScriptContext for req.
func (a *Analyzer) Analyze(_ context.Context, req Request) (model.ScriptContext, error) {
	text := strings.TrimSpace(req.Script)
	if text == "" {
		return model.ScriptContext{}, ErrEmptyScript
	}

	tone, ok := ResolveTone(req.Tone)
	if !ok {
		tone = InferTone(text)
	}
	descriptor := descriptors[tone]

	return model.ScriptContext{
		Script:     text,
		Tone:       tone,
		Descriptor: descriptor,
		Language:   a.language(text, req.Language),
		Tokens:     scoring.Tokenize(text + " " + descriptor),
	}, nil
}

func (a *Analyzer) language(text, requested string) string {
	if requested = strings.ToLower(strings.TrimSpace(requested)); requested != "" {
		return requested
	}
	if a.detector != nil {
		if lang, ok := a.detector.Detect(text); ok {
			return lang
		}
	}
	return a.defaultLanguage
}

// ResolveTone maps a requested tone name onto the closed set.
func ResolveTone(name string) (model.Tone, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	if t := model.Tone(name); t.Valid() {
		return t, true
	}
	t, ok := toneAliases[name]
	return t, ok
}

// InferTone guesses a tone from punctuation and keywords.
func InferTone(text string) model.Tone {
	if strings.Count(text, "!") >= energeticBangCount {
		return model.ToneEnergetic
	}

	tokens := scoring.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	best, bestHits := model.ToneNeutral, 0
	for _, tone := range inferenceOrder {
		hits := 0
		for _, kw := range keywords[tone] {
			if _, ok := set[kw]; ok {
				hits++
			}
		}
		if hits >= keywordHitThreshold && hits > bestHits {
			best, bestHits = tone, hits
		}
	}
	if bestHits == 0 && strings.Count(text, "?") >= thoughtfulAskCount {
		return model.ToneThoughtful
	}
	return best
}

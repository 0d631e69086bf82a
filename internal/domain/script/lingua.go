package script

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// minDetectRunes is the shortest text handed to the detector.
const minDetectRunes = 12

// LinguaDetector detects script language with lingua-go.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

var _ LanguageDetector = (*LinguaDetector)(nil)

// NewLinguaDetector builds a detector restricted to the given languages.
// With no languages it falls back to the six supported script languages.
func NewLinguaDetector(languages ...lingua.Language) *LinguaDetector {
	if len(languages) < 2 {
		languages = []lingua.Language{lingua.Spanish, lingua.English, lingua.Portuguese, lingua.French, lingua.German, lingua.Italian}
	}
	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()
	return &LinguaDetector{detector: d}
}

// Detect returns the lowercase ISO 639-1 code of text.
func (l *LinguaDetector) Detect(text string) (string, bool) {
	if len([]rune(strings.TrimSpace(text))) < minDetectRunes {
		return "", false
	}
	lang, ok := l.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

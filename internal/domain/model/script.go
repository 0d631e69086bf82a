package model

// Tone is the target emotional tone of a script.
type Tone string

// Closed set of tones.
const (
	ToneHappy      Tone = "happy"
	ToneNeutral    Tone = "neutral"
	ToneSerious    Tone = "serious"
	ToneEnergetic  Tone = "energetic"
	ToneThoughtful Tone = "thoughtful"
)

// Tones lists every valid tone.
var Tones = []Tone{ToneHappy, ToneNeutral, ToneSerious, ToneEnergetic, ToneThoughtful}

// Valid reports whether t belongs to the closed set.
func (t Tone) Valid() bool {
	for _, v := range Tones {
		if v == t {
			return true
		}
	}
	return false
}

// ScriptContext is the script plus derived attributes. Built once per
// generation request and never mutated afterwards.
type ScriptContext struct {
	Script     string
	Tone       Tone
	Descriptor string
	Language   string
	// Tokens are the normalized content words of Script and Descriptor.
	Tokens []string
}

// AudioRef points at synthesized speech. Native refs carry text and voice
// for a video provider's own text-to-speech instead of an audio file.
type AudioRef struct {
	URL      string `json:"url,omitempty"`
	Provider string `json:"provider"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
	Native   bool   `json:"native"`
	Text     string `json:"-"`
}

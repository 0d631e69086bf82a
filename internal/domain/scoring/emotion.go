package scoring

import (
	"strings"

	"github.com/okian/avatarcast/internal/domain/model"
)

// Emotion table bounds.
const (
	emotionExact = 100
	// emotionOffTable is used for labels the table does not know.
	emotionOffTable = 40
)

// emotionAliases normalizes detector vocabularies onto table labels.
var emotionAliases = map[string]string{ //nolint:gochecknoglobals // static lookup table
	"joy":        "happy",
	"happiness":  "happy",
	"smiling":    "happy",
	"excitement": "excited",
	"surprised":  "surprise",
	"sadness":    "sad",
	"anger":      "angry",
	"fearful":    "fear",
	"disgusted":  "disgust",
	"focused":    "serious",
	"confident":  "serious",
	"pensive":    "thoughtful",
}

// compatibility maps a script tone to emotion-label affinities. The label
// equal to the tone scores emotionExact, opposite moods taper to 20.
var compatibility = map[model.Tone]map[string]float64{ //nolint:gochecknoglobals // static lookup table
	model.ToneHappy: {
		"happy": 100, "excited": 85, "energetic": 85, "surprise": 70, "calm": 60, "neutral": 55,
		"thoughtful": 45, "serious": 35, "fear": 25, "sad": 20, "angry": 20, "disgust": 20,
	},
	model.ToneNeutral: {
		"neutral": 100, "calm": 90, "thoughtful": 75, "serious": 70, "happy": 65, "excited": 45,
		"energetic": 45, "surprise": 45, "sad": 35, "fear": 30, "angry": 20, "disgust": 20,
	},
	model.ToneSerious: {
		"serious": 100, "neutral": 80, "thoughtful": 75, "calm": 70, "sad": 40, "angry": 40,
		"happy": 35, "surprise": 25, "fear": 25, "excited": 20, "energetic": 20, "disgust": 20,
	},
	model.ToneEnergetic: {
		"energetic": 100, "excited": 100, "happy": 95, "surprise": 80, "neutral": 45, "serious": 35,
		"angry": 35, "calm": 30, "thoughtful": 30, "sad": 20, "fear": 20, "disgust": 20,
	},
	model.ToneThoughtful: {
		"thoughtful": 100, "calm": 90, "serious": 75, "neutral": 75, "sad": 50, "happy": 45,
		"surprise": 35, "fear": 30, "excited": 25, "energetic": 25, "angry": 20, "disgust": 20,
	},
}

// normalizeEmotion lowercases and resolves aliases.
func normalizeEmotion(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if alias, ok := emotionAliases[label]; ok {
		return alias
	}
	return label
}

// emotionAffinity returns the table value for tone and label. ok is false
// when the label is empty (unknown emotion).
func emotionAffinity(tone model.Tone, label string) (float64, bool) {
	label = normalizeEmotion(label)
	if label == "" {
		return 0, false
	}
	if label == string(tone) {
		return emotionExact, true
	}
	row, ok := compatibility[tone]
	if !ok {
		row = compatibility[model.ToneNeutral]
	}
	if v, ok := row[label]; ok {
		return v, true
	}
	return emotionOffTable, true
}

// Package model contains domain models passed between layers.
package model

import "time"

// Membership is the pool partition an avatar belongs to.
type Membership string

// Pool partitions. Reserved marks an avatar claimed by an in-flight job.
const (
	MembershipAvailable Membership = "available"
	MembershipReserved  Membership = "reserved"
	MembershipUsed      Membership = "used"
)

// AvatarCandidate identifies one avatar image.
type AvatarCandidate struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	Location   string     `json:"location"` // path or URL the providers can fetch
	Membership Membership `json:"membership"`
	Tags       []string   `json:"tags,omitempty"`
	UseCount   int        `json:"use_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// HasUsageHistory reports whether the candidate has ever been consumed.
func (c AvatarCandidate) HasUsageHistory() bool {
	return c.UseCount > 0 || c.LastUsedAt != nil
}

// FaceAnalysis is the ephemeral per-candidate scoring input. Every field is
// optional; nil pointers and empty strings mean "unknown".
type FaceAnalysis struct {
	CandidateID       string   `yaml:"-"`
	Age               *float64 `yaml:"age"`
	Emotion           string   `yaml:"emotion"`
	EmotionConfidence *float64 `yaml:"emotion_confidence"`
	Gender            string   `yaml:"gender"`
	Quality           *float64 `yaml:"quality"`
	Tags              []string `yaml:"tags"`
}

// AvatarScore is the scoring output for one candidate. Sub-scores are 0-100.
type AvatarScore struct {
	Candidate AvatarCandidate
	Total     float64
	Semantic  float64
	Emotion   float64
	Quality   float64
	Context   float64
}

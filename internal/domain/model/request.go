package model

import "time"

// GenerationRequest is one caller request as it travels through the queue.
type GenerationRequest struct {
	// ID becomes the job ID; one is generated when empty.
	ID         string    `json:"id,omitempty"`
	Script     string    `json:"script"`
	Tone       string    `json:"tone,omitempty"`
	Language   string    `json:"language,omitempty"`
	VoiceHint  string    `json:"voice_hint,omitempty"`
	PromptHint string    `json:"prompt_hint,omitempty"`
	AcceptedAt time.Time `json:"accepted_at,omitempty"`
}

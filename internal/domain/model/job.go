package model

import "time"

// JobState is a state of the generation state machine.
type JobState string

// Generation states. Succeeded and Failed are terminal.
const (
	StatePending           JobState = "pending"
	StateSelectingAvatar   JobState = "selecting_avatar"
	StateSynthesizingAudio JobState = "synthesizing_audio"
	StateSubmittingVideo   JobState = "submitting_video"
	StatePollingVideo      JobState = "polling_video"
	StateFinalizing        JobState = "finalizing"
	StateSucceeded         JobState = "succeeded"
	StateFailed            JobState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateSelectingAvatar, StateSynthesizingAudio, StateSubmittingVideo,
		StatePollingVideo, StateFinalizing, StateSucceeded, StateFailed:
		return true
	}
	return false
}

// FailureReason classifies why a job failed.
type FailureReason string

// Failure reasons surfaced to callers.
const (
	ReasonNone            FailureReason = ""
	ReasonPoolExhausted   FailureReason = "pool_exhausted"
	ReasonNoCandidates    FailureReason = "no_candidates"
	ReasonInvalidRequest  FailureReason = "invalid_request"
	ReasonSynthesisFailed FailureReason = "synthesis_failed"
	ReasonNoProvider      FailureReason = "no_video_provider"
	ReasonProviderFailed  FailureReason = "provider_failed"
	ReasonTimeout         FailureReason = "provider_timeout"
	ReasonCanceled        FailureReason = "canceled"
	ReasonFinalizeFailed  FailureReason = "finalize_failed"
)

// Transition records one state change of a job.
type Transition struct {
	From JobState  `json:"from"`
	To   JobState  `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// GenerationJob is the unit of orchestration. It is owned by a single
// orchestrator call and never shared between requests.
type GenerationJob struct {
	ID            string           `json:"id"`
	Script        string           `json:"script"`
	Tone          Tone             `json:"tone,omitempty"`
	Language      string           `json:"language,omitempty"`
	Avatar        *AvatarCandidate `json:"avatar,omitempty"`
	AvatarScore   float64          `json:"avatar_score,omitempty"`
	Audio         *AudioRef        `json:"audio,omitempty"`
	Provider      string           `json:"provider,omitempty"`
	ExternalJobID string           `json:"external_job_id,omitempty"`
	State         JobState         `json:"state"`
	VideoURL      string           `json:"video_url,omitempty"`
	Reason        FailureReason    `json:"reason,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	Transitions   []Transition     `json:"transitions"`
}

// Advance moves the job to state to and records the transition. Terminal
// jobs are left untouched and Advance reports false.
func (j *GenerationJob) Advance(to JobState, note string, at time.Time) bool {
	if j.State.Terminal() {
		return false
	}
	j.Transitions = append(j.Transitions, Transition{From: j.State, To: to, At: at, Note: note})
	j.State = to
	if to.Terminal() {
		finished := at
		j.FinishedAt = &finished
	}
	return true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *GenerationJob) Clone() GenerationJob {
	c := *j
	if j.Avatar != nil {
		a := *j.Avatar
		if a.Tags != nil {
			a.Tags = append([]string(nil), a.Tags...)
		}
		c.Avatar = &a
	}
	if j.Audio != nil {
		audio := *j.Audio
		c.Audio = &audio
	}
	if j.FinishedAt != nil {
		f := *j.FinishedAt
		c.FinishedAt = &f
	}
	c.Transitions = append([]Transition(nil), j.Transitions...)
	return c
}

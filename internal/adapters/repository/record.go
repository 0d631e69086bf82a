package repository

import (
	"time"

	"github.com/okian/avatarcast/internal/domain/model"
)

// GenerationRecord is the persisted form of a terminal GenerationJob.
type GenerationRecord struct {
	ID             string `gorm:"primaryKey;size:64"`
	Script         string `gorm:"type:text;not null"`
	Tone           string `gorm:"size:32"`
	Language       string `gorm:"size:16"`
	AvatarID       string `gorm:"size:255;index"`
	AvatarFilename string `gorm:"size:255"`
	AvatarScore    float64
	AudioURL       string `gorm:"type:text"`
	AudioProvider  string `gorm:"size:64"`
	AudioVoice     string `gorm:"size:128"`
	AudioNative    bool
	Provider       string `gorm:"size:64;index"`
	ExternalJobID  string `gorm:"size:255"`
	State          string `gorm:"size:32;not null;index"`
	VideoURL       string `gorm:"type:text"`
	Reason         string `gorm:"size:64"`
	Error          string `gorm:"type:text"`

	Transitions []model.Transition `gorm:"type:text;serializer:json"`

	CreatedAt  time.Time `gorm:"index"`
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

// TableName sets the table name for GORM.
func (GenerationRecord) TableName() string {
	return "generations"
}

func newRecord(job model.GenerationJob) GenerationRecord {
	r := GenerationRecord{
		ID:            job.ID,
		Script:        job.Script,
		Tone:          string(job.Tone),
		Language:      job.Language,
		AvatarScore:   job.AvatarScore,
		Provider:      job.Provider,
		ExternalJobID: job.ExternalJobID,
		State:         string(job.State),
		VideoURL:      job.VideoURL,
		Reason:        string(job.Reason),
		Error:         job.Error,
		Transitions:   job.Transitions,
		CreatedAt:     job.CreatedAt,
		FinishedAt:    job.FinishedAt,
	}
	if job.Avatar != nil {
		r.AvatarID = job.Avatar.ID
		r.AvatarFilename = job.Avatar.Filename
	}
	if job.Audio != nil {
		r.AudioURL = job.Audio.URL
		r.AudioProvider = job.Audio.Provider
		r.AudioVoice = job.Audio.Voice
		r.AudioNative = job.Audio.Native
	}
	return r
}

// Job converts the record back into a domain job.
func (r GenerationRecord) Job() model.GenerationJob {
	job := model.GenerationJob{
		ID:            r.ID,
		Script:        r.Script,
		Tone:          model.Tone(r.Tone),
		Language:      r.Language,
		AvatarScore:   r.AvatarScore,
		Provider:      r.Provider,
		ExternalJobID: r.ExternalJobID,
		State:         model.JobState(r.State),
		VideoURL:      r.VideoURL,
		Reason:        model.FailureReason(r.Reason),
		Error:         r.Error,
		Transitions:   r.Transitions,
		CreatedAt:     r.CreatedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.AvatarID != "" {
		job.Avatar = &model.AvatarCandidate{ID: r.AvatarID, Filename: r.AvatarFilename}
	}
	if r.AudioURL != "" || r.AudioProvider != "" {
		job.Audio = &model.AudioRef{URL: r.AudioURL, Provider: r.AudioProvider, Voice: r.AudioVoice, Native: r.AudioNative}
	}
	return job
}

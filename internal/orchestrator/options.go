package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/avatarcast/internal/adapters/analysis"
	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/domain/scoring"
	"github.com/okian/avatarcast/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithScriptAnalyzer sets the script context builder.
func WithScriptAnalyzer(a ScriptAnalyzer) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.scripts = a
		}
	}
}

// WithFaceAnalyzer sets the face analysis source used for scoring.
func WithFaceAnalyzer(a analysis.Analyzer) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.faces = a
		}
	}
}

// WithScorer sets the scoring engine.
func WithScorer(s scoring.Scorer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scorer = s
		}
	}
}

// WithImageResolver sets how avatar locations become provider URLs.
func WithImageResolver(r ImageResolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.images = r
		}
	}
}

// WithArchiver sets the physical-storage collaborator called after MarkUsed.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithRecorder sets the persistence collaborator.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNotifier sets the "video ready" collaborator.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithObserver receives a snapshot after every state transition.
func WithObserver(fn func(model.GenerationJob)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets how job IDs are minted when a request has none.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func defaultIDGenerator() string { return uuid.NewString() }

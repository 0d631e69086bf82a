// Package orchestrator runs one talking-avatar generation end to end:
// avatar selection, speech synthesis, video submission with provider
// fallback, bounded polling and finalization.
//
// The pool is touched exactly once on success (MarkUsed). Every failure
// path releases the claimed avatar so the pool ends where it started.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/avatarcast/internal/adapters/analysis"
	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/adapters/speech"
	"github.com/okian/avatarcast/internal/adapters/video"
	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/domain/scoring"
	"github.com/okian/avatarcast/internal/domain/script"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

// ScriptAnalyzer derives the ScriptContext of a request.
type ScriptAnalyzer interface {
	Analyze(ctx context.Context, req script.Request) (model.ScriptContext, error)
}

// ImageResolver turns an avatar into a URL providers can fetch.
type ImageResolver interface {
	ImageURL(c model.AvatarCandidate) string
}

// Archiver physically relocates a consumed avatar.
type Archiver interface {
	Archive(ctx context.Context, c model.AvatarCandidate) error
}

// Recorder persists terminal jobs.
type Recorder interface {
	RecordSuccess(ctx context.Context, job model.GenerationJob) error
	RecordFailure(ctx context.Context, job model.GenerationJob) error
}

// Notifier announces finished videos.
type Notifier interface {
	VideoReady(ctx context.Context, job model.GenerationJob) error
}

// locationResolver hands out the stored location unchanged.
type locationResolver struct{}

func (locationResolver) ImageURL(c model.AvatarCandidate) string { return c.Location }

// Config is the construction-time configuration.
type Config struct {
	// VideoProviderPriority lists provider names, most preferred first.
	VideoProviderPriority []string
	// UseScoring ranks candidates; false claims uniformly at random.
	UseScoring bool
}

// Request is one generation request.
type Request = model.GenerationRequest

// Result describes a finished video.
type Result struct {
	Job           model.GenerationJob
	VideoURL      string
	Provider      string
	ExternalJobID string
	Avatar        model.AvatarCandidate
	Score         model.AvatarScore
	Audio         model.AudioRef
}

// Orchestrator sequences one generation at a time per call. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	pool      pool.Pool
	synth     speech.Synthesizer
	providers []video.Provider

	scripts  ScriptAnalyzer
	faces    analysis.Analyzer
	scorer   scoring.Scorer
	images   ImageResolver
	archiver Archiver
	recorder Recorder
	notifier Notifier
	observer func(model.GenerationJob)

	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// New creates an orchestrator. Providers are taken from registry in the
// order of cfg.VideoProviderPriority.
func New(cfg Config, p pool.Pool, synth speech.Synthesizer, registry *video.Registry, opts ...Option) (*Orchestrator, error) {
	if p == nil || synth == nil || registry == nil {
		return nil, errors.New("orchestrator: pool, synthesizer and registry are required")
	}
	providers, err := registry.Ordered(cfg.VideoProviderPriority)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		pool:      p,
		synth:     synth,
		providers: providers,
		scripts:   script.NewAnalyzer(),
		faces:     analysis.StaticAnalyzer(nil),
		scorer:    scoring.NewEngine(),
		images:    locationResolver{},
		log:       logger.Nop(),
		now:       time.Now,
		newID:     defaultIDGenerator,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Named("orchestrator")
	return o, nil
}

// run carries the per-request state through the pipeline.
type run struct {
	job      *model.GenerationJob
	req      Request
	log      logger.Logger
	avatar   model.AvatarCandidate
	score    model.AvatarScore
	audio    model.AudioRef
	provider video.Provider
	claimed  bool
}

// Generate runs the state machine for req. On failure the error is a
// *GenerationError carrying the reason and the terminal job snapshot.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	id := req.ID
	if id == "" {
		id = o.newID()
	}
	start := o.now()
	r := &run{
		job: &model.GenerationJob{ID: id, Script: req.Script, State: model.StatePending, CreatedAt: start},
		req: req,
		log: o.log.With(logger.String("job_id", id)),
	}

	gerr := o.execute(ctx, r)
	elapsed := o.now().Sub(start).Seconds()
	// Terminal bookkeeping must survive a cancelled request context.
	bg := context.WithoutCancel(ctx)

	if gerr != nil {
		if r.claimed {
			o.release(bg, r)
		}
		r.job.Reason = gerr.Reason
		r.job.Error = errString(gerr.Err)
		o.advance(bg, r, model.StateFailed, string(gerr.Reason))
		snapshot := r.job.Clone()
		gerr.Job = &snapshot

		metrics.RecordGeneration("failed", string(gerr.Reason), elapsed)
		r.log.Error(ctx, "generation failed",
			logger.String("reason", string(gerr.Reason)),
			logger.String("provider", r.job.Provider),
			logger.Error(gerr.Err))
		if o.recorder != nil {
			if err := o.recorder.RecordFailure(bg, snapshot); err != nil {
				r.log.Warn(ctx, "record failure", logger.Error(err))
			}
		}
		return nil, gerr
	}

	o.advance(bg, r, model.StateSucceeded, "")
	snapshot := r.job.Clone()
	metrics.RecordGeneration("succeeded", "", elapsed)
	r.log.Info(ctx, "generation succeeded",
		logger.String("provider", r.job.Provider),
		logger.String("avatar", r.avatar.ID),
		logger.String("video_url", r.job.VideoURL),
		logger.Float64("seconds", elapsed))

	if o.recorder != nil {
		if err := o.recorder.RecordSuccess(bg, snapshot); err != nil {
			r.log.Warn(ctx, "record success", logger.Error(err))
		}
	}
	if o.notifier != nil {
		if err := o.notifier.VideoReady(bg, snapshot); err != nil {
			r.log.Warn(ctx, "notify video ready", logger.Error(err))
		}
	}

	return &Result{
		Job:           snapshot,
		VideoURL:      r.job.VideoURL,
		Provider:      r.job.Provider,
		ExternalJobID: r.job.ExternalJobID,
		Avatar:        r.avatar,
		Score:         r.score,
		Audio:         r.audio,
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) *GenerationError {
	steps := []func(context.Context, *run) *GenerationError{
		o.selectAvatar,
		o.synthesize,
		o.submit,
		o.poll,
		o.finalize,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fail(model.ReasonCanceled, err)
		}
		if gerr := step(ctx, r); gerr != nil {
			return gerr
		}
	}
	return nil
}

func (o *Orchestrator) selectAvatar(ctx context.Context, r *run) *GenerationError {
	o.advance(ctx, r, model.StateSelectingAvatar, "")

	sc, err := o.scripts.Analyze(ctx, script.Request{Script: r.req.Script, Tone: r.req.Tone, Language: r.req.Language})
	if err != nil {
		return fail(model.ReasonInvalidRequest, err)
	}
	r.job.Tone = sc.Tone
	r.job.Language = sc.Language

	if !o.cfg.UseScoring {
		c, err := o.pool.ClaimRandom(ctx)
		if err != nil {
			return o.claimFailure(ctx, err)
		}
		return o.claimed(ctx, r, c, model.AvatarScore{Candidate: c})
	}

	candidates, err := o.pool.Available(ctx)
	if err != nil {
		return o.claimFailure(ctx, err)
	}
	if len(candidates) == 0 {
		return fail(model.ReasonPoolExhausted, pool.ErrPoolExhausted)
	}

	analyses, err := o.faces.Analyze(ctx, candidates)
	if err != nil {
		r.log.Warn(ctx, "face analysis unavailable, scoring on priors", logger.Error(err))
		analyses = nil
	}
	scores, err := o.scorer.Score(ctx, sc, candidates, analyses)
	switch {
	case errors.Is(err, scoring.ErrNoCandidates):
		return fail(model.ReasonNoCandidates, err)
	case err != nil:
		if ctx.Err() != nil {
			return fail(model.ReasonCanceled, err)
		}
		return fail(model.ReasonNoCandidates, err)
	}

	// Another job may claim a candidate between Available and Claim; fall
	// through the ranking until one claim wins.
	for _, s := range scores {
		c, err := o.pool.Claim(ctx, s.Candidate.ID)
		if err == nil {
			return o.claimed(ctx, r, c, s)
		}
		if errors.Is(err, pool.ErrNotAvailable) || errors.Is(err, pool.ErrNotFound) {
			r.log.Debug(ctx, "candidate claimed elsewhere", logger.String("avatar", s.Candidate.ID))
			continue
		}
		return o.claimFailure(ctx, err)
	}
	return fail(model.ReasonPoolExhausted, pool.ErrPoolExhausted)
}

func (o *Orchestrator) claimed(ctx context.Context, r *run, c model.AvatarCandidate, s model.AvatarScore) *GenerationError {
	r.avatar, r.score, r.claimed = c, s, true
	avatar := c
	r.job.Avatar = &avatar
	r.job.AvatarScore = s.Total
	if o.cfg.UseScoring {
		metrics.RecordSelectedScore(s.Total)
	}
	r.log.Info(ctx, "avatar selected",
		logger.String("avatar", c.ID),
		logger.Float64("score", s.Total),
		logger.Float64("semantic", s.Semantic),
		logger.Float64("emotion", s.Emotion),
		logger.Float64("quality", s.Quality),
		logger.Float64("context", s.Context))
	return nil
}

func (o *Orchestrator) claimFailure(ctx context.Context, err error) *GenerationError {
	switch {
	case ctx.Err() != nil:
		return fail(model.ReasonCanceled, err)
	case errors.Is(err, pool.ErrPoolExhausted):
		return fail(model.ReasonPoolExhausted, err)
	default:
		metrics.RecordErrorByComponent("pool", "claim")
		return fail(model.ReasonPoolExhausted, err)
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) *GenerationError {
	o.advance(ctx, r, model.StateSynthesizingAudio, "")

	ref, err := o.synth.Synthesize(ctx, speech.Request{
		JobID:     r.job.ID,
		Text:      r.req.Script,
		VoiceHint: r.req.VoiceHint,
		Language:  r.job.Language,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fail(model.ReasonCanceled, err)
		}
		return fail(model.ReasonSynthesisFailed, err)
	}
	r.audio = ref
	r.job.Audio = &ref
	r.log.Info(ctx, "audio ready",
		logger.String("provider", ref.Provider),
		logger.String("voice", ref.Voice),
		logger.Bool("native", ref.Native))
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, r *run) *GenerationError {
	o.advance(ctx, r, model.StateSubmittingVideo, "")

	req := video.SubmitRequest{
		JobID:      r.job.ID,
		ImageURL:   o.images.ImageURL(r.avatar),
		Audio:      r.audio,
		PromptHint: r.req.PromptHint,
	}

	var rejections []error
	for _, p := range o.providers {
		if !p.Configured() {
			r.log.Debug(ctx, "skipping unconfigured provider", logger.String("provider", p.Name()))
			continue
		}
		externalID, err := p.Submit(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return fail(model.ReasonCanceled, err)
			}
			r.log.Warn(ctx, "submission rejected, trying next provider",
				logger.String("provider", p.Name()),
				logger.Error(err))
			rejections = append(rejections, err)
			continue
		}
		r.provider = p
		r.job.Provider = p.Name()
		r.job.ExternalJobID = externalID
		r.log.Info(ctx, "video submitted",
			logger.String("provider", p.Name()),
			logger.String("external_job_id", externalID))
		return nil
	}

	if len(rejections) == 0 {
		return fail(model.ReasonNoProvider, video.ErrNotConfigured)
	}
	return fail(model.ReasonNoProvider, errors.Join(rejections...))
}

func (o *Orchestrator) poll(ctx context.Context, r *run) *GenerationError {
	o.advance(ctx, r, model.StatePollingVideo, r.provider.Name())

	videoURL, err := r.provider.Resolve(ctx, r.job.ExternalJobID)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return fail(model.ReasonCanceled, err)
		case errors.Is(err, video.ErrTimeout):
			return fail(model.ReasonTimeout, err)
		default:
			// *video.FailureError and anything unexpected from Resolve.
			return fail(model.ReasonProviderFailed, err)
		}
	}
	r.job.VideoURL = videoURL
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) *GenerationError {
	o.advance(ctx, r, model.StateFinalizing, "")
	// The video exists; finish even if the caller goes away now.
	ctx = context.WithoutCancel(ctx)

	if err := o.pool.MarkUsed(ctx, r.avatar.ID); err != nil {
		if errors.Is(err, pool.ErrAlreadyUsed) {
			// Someone else consumed it; releasing would corrupt the pool.
			r.claimed = false
		}
		metrics.RecordErrorByComponent("pool", "mark_used")
		return fail(model.ReasonFinalizeFailed, err)
	}
	r.claimed = false

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, r.avatar); err != nil {
			metrics.RecordErrorByComponent("storage", "archive")
			r.log.Warn(ctx, "archive avatar", logger.String("avatar", r.avatar.ID), logger.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, r *run) {
	if err := o.pool.Release(ctx, r.avatar.ID); err != nil {
		metrics.RecordErrorByComponent("pool", "release")
		r.log.Error(ctx, "release avatar", logger.String("avatar", r.avatar.ID), logger.Error(err))
		return
	}
	r.claimed = false
}

func (o *Orchestrator) advance(ctx context.Context, r *run, to model.JobState, note string) {
	from := r.job.State
	if !r.job.Advance(to, note, o.now()) {
		return
	}
	metrics.RecordStateTransition(string(to))
	r.log.Info(ctx, "state transition",
		logger.String("from", string(from)),
		logger.String("to", string(to)))
	if o.observer != nil {
		o.observer(r.job.Clone())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

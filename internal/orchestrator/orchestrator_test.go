package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/avatarcast/internal/adapters/analysis"
	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/adapters/speech"
	"github.com/okian/avatarcast/internal/adapters/video"
	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/orchestrator"
	"github.com/okian/avatarcast/pkg/logger"
)

// fakeProvider is a scripted video provider that counts every call.
type fakeProvider struct {
	name       string
	configured bool
	submitErr  error
	// statuses are replayed by Poll; the last one repeats.
	statuses []video.PollResult
	attempts int
	onPoll   func()

	mu        sync.Mutex
	submitted []video.SubmitRequest
	polls     int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Submit(_ context.Context, req video.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return "", &video.SubmitError{Provider: f.name, Err: f.submitErr}
	}
	return f.name + "-job-1", nil
}

func (f *fakeProvider) Poll(context.Context, string) (video.PollResult, error) {
	f.mu.Lock()
	i := f.polls
	f.polls++
	f.mu.Unlock()
	if f.onPoll != nil {
		f.onPoll()
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeProvider) Resolve(ctx context.Context, jobID string) (string, error) {
	attempts := f.attempts
	if attempts == 0 {
		attempts = 5
	}
	return video.Resolve(ctx, f, f.name, jobID, time.Millisecond, attempts, logger.Nop())
}

func (f *fakeProvider) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeProvider) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func succeeding(name string) *fakeProvider {
	return &fakeProvider{name: name, configured: true, statuses: []video.PollResult{
		{Status: video.StatusProcessing},
		{Status: video.StatusSucceeded, VideoURL: "https://" + name + "/video.mp4"},
	}}
}

// fakeSynth returns a fixed ref or error and counts calls.
type fakeSynth struct {
	ref   model.AudioRef
	err   error
	calls int
}

func (f *fakeSynth) Name() string     { return "fake" }
func (f *fakeSynth) Configured() bool { return true }
func (f *fakeSynth) Synthesize(_ context.Context, req speech.Request) (model.AudioRef, error) {
	f.calls++
	if f.err != nil {
		return model.AudioRef{}, f.err
	}
	ref := f.ref
	ref.Text = req.Text
	return ref, nil
}

type memRecorder struct {
	mu        sync.Mutex
	successes []model.GenerationJob
	failures  []model.GenerationJob
	err       error
}

func (m *memRecorder) RecordSuccess(_ context.Context, job model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, job)
	return m.err
}

func (m *memRecorder) RecordFailure(_ context.Context, job model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, job)
	return m.err
}

type memNotifier struct{ jobs []model.GenerationJob }

func (m *memNotifier) VideoReady(_ context.Context, job model.GenerationJob) error {
	m.jobs = append(m.jobs, job)
	return errors.New("webhook down")
}

type memArchiver struct{ archived []string }

func (m *memArchiver) Archive(_ context.Context, c model.AvatarCandidate) error {
	m.archived = append(m.archived, c.ID)
	return nil
}

func ptr(v float64) *float64 { return &v }

func threeAvatars() ([]model.AvatarCandidate, analysis.StaticAnalyzer) {
	cands := []model.AvatarCandidate{
		{ID: "avatar-1", Filename: "img_001.jpg", Location: "/pool/img_001.jpg"},
		{ID: "avatar-2", Filename: "img_002.jpg", Location: "/pool/img_002.jpg"},
		{ID: "avatar-3", Filename: "img_003.jpg", Location: "/pool/img_003.jpg"},
	}
	faces := analysis.StaticAnalyzer{
		"avatar-1": {Emotion: "excited", Quality: ptr(0.7)},
		"avatar-2": {Emotion: "serious", Quality: ptr(0.9)},
		"avatar-3": {Emotion: "happy", Quality: ptr(0.8)},
	}
	return cands, faces
}

type fixture struct {
	pool      *pool.InMemoryPool
	synth     *fakeSynth
	providers []*fakeProvider
	recorder  *memRecorder
	notifier  *memNotifier
	archiver  *memArchiver
	states    []model.JobState
	orch      *orchestrator.Orchestrator
}

func newFixture(cands []model.AvatarCandidate, faces analysis.Analyzer, useScoring bool, providers ...*fakeProvider) *fixture {
	f := &fixture{
		pool:      pool.NewInMemoryPool(cands),
		synth:     &fakeSynth{ref: model.AudioRef{URL: "https://media/a.mp3", Provider: "elevenlabs"}},
		providers: providers,
		recorder:  &memRecorder{},
		notifier:  &memNotifier{},
		archiver:  &memArchiver{},
	}
	vps := make([]video.Provider, len(providers))
	names := make([]string, len(providers))
	for i, p := range providers {
		vps[i], names[i] = p, p.name
	}
	var err error
	f.orch, err = orchestrator.New(
		orchestrator.Config{VideoProviderPriority: names, UseScoring: useScoring},
		f.pool, f.synth, video.NewRegistry(vps...),
		orchestrator.WithFaceAnalyzer(faces),
		orchestrator.WithRecorder(f.recorder),
		orchestrator.WithNotifier(f.notifier),
		orchestrator.WithArchiver(f.archiver),
		orchestrator.WithObserver(func(j model.GenerationJob) { f.states = append(f.states, j.State) }),
		orchestrator.WithIDGenerator(func() string { return "job-fixed" }),
	)
	So(err, ShouldBeNil)
	return f
}

func (f *fixture) stats() pool.Stats {
	s, err := f.pool.Stats(context.Background())
	So(err, ShouldBeNil)
	return s
}

var educational = orchestrator.Request{Script: "Aprende marketing digital en 3 pasos", Tone: "educational", Language: "es"}

func TestGenerate_HappyPath(t *testing.T) {
	Convey("Given a pool of three avatars and one healthy provider", t, func() {
		cands, faces := threeAvatars()
		heygen := succeeding("heygen")
		f := newFixture(cands, faces, true, heygen)

		Convey("When an educational script is generated", func() {
			res, err := f.orch.Generate(context.Background(), educational)

			Convey("Then the serious high-quality avatar is submitted", func() {
				So(err, ShouldBeNil)
				So(res.Avatar.ID, ShouldEqual, "avatar-2")
				So(res.Job.Tone, ShouldEqual, model.ToneSerious)
				So(heygen.submitted, ShouldHaveLength, 1)
				So(heygen.submitted[0].ImageURL, ShouldEqual, "/pool/img_002.jpg")
				So(heygen.submitted[0].Audio.URL, ShouldEqual, "https://media/a.mp3")
				So(res.VideoURL, ShouldEqual, "https://heygen/video.mp4")
				So(res.ExternalJobID, ShouldEqual, "heygen-job-1")
				So(heygen.pollCount(), ShouldEqual, 2)
			})

			Convey("Then exactly one pool mutation happened", func() {
				So(f.stats(), ShouldResemble, pool.Stats{Available: 2, Used: 1})
				So(f.archiver.archived, ShouldResemble, []string{"avatar-2"})
			})

			Convey("Then every state was visited in order", func() {
				So(f.states, ShouldResemble, []model.JobState{
					model.StateSelectingAvatar, model.StateSynthesizingAudio, model.StateSubmittingVideo,
					model.StatePollingVideo, model.StateFinalizing, model.StateSucceeded,
				})
				So(res.Job.ID, ShouldEqual, "job-fixed")
				So(res.Job.FinishedAt, ShouldNotBeNil)
			})

			Convey("Then collaborators are told but cannot change the result", func() {
				So(f.recorder.successes, ShouldHaveLength, 1)
				So(f.recorder.successes[0].VideoURL, ShouldEqual, res.VideoURL)
				So(f.recorder.successes[0].Avatar.ID, ShouldEqual, "avatar-2")
				So(f.notifier.jobs, ShouldHaveLength, 1)
			})
		})
	})
}

func TestGenerate_PoolExhausted(t *testing.T) {
	Convey("Given an empty pool", t, func() {
		heygen := succeeding("heygen")
		f := newFixture(nil, analysis.StaticAnalyzer{}, true, heygen)

		Convey("When generating", func() {
			res, err := f.orch.Generate(context.Background(), educational)

			Convey("Then it fails with PoolExhausted and calls no provider", func() {
				So(res, ShouldBeNil)
				So(errors.Is(err, orchestrator.ErrPoolExhausted), ShouldBeTrue)
				var gerr *orchestrator.GenerationError
				So(errors.As(err, &gerr), ShouldBeTrue)
				So(gerr.Reason, ShouldEqual, model.ReasonPoolExhausted)
				So(gerr.Job.State, ShouldEqual, model.StateFailed)
				So(heygen.submitCount(), ShouldEqual, 0)
				So(heygen.pollCount(), ShouldEqual, 0)
				So(f.synth.calls, ShouldEqual, 0)
				So(f.recorder.failures, ShouldHaveLength, 1)
			})
		})

		Convey("When scoring is disabled", func() {
			g := newFixture(nil, nil, false, heygen)
			_, err := g.orch.Generate(context.Background(), educational)

			Convey("Then the random claim reports the same reason", func() {
				So(errors.Is(err, orchestrator.ErrPoolExhausted), ShouldBeTrue)
			})
		})
	})
}

func TestGenerate_ProviderFallback(t *testing.T) {
	Convey("Given providers [A, B] where A rejects the submission", t, func() {
		cands, faces := threeAvatars()
		a := succeeding("alpha")
		a.submitErr = errors.New("402 payment required")
		b := succeeding("beta")
		f := newFixture(cands, faces, true, a, b)

		res, err := f.orch.Generate(context.Background(), educational)

		Convey("Then B's job id is returned and A is never polled", func() {
			So(err, ShouldBeNil)
			So(res.Provider, ShouldEqual, "beta")
			So(res.ExternalJobID, ShouldEqual, "beta-job-1")
			So(a.submitCount(), ShouldEqual, 1)
			So(a.pollCount(), ShouldEqual, 0)
		})
	})

	Convey("Given an unconfigured first provider", t, func() {
		cands, faces := threeAvatars()
		a := succeeding("alpha")
		a.configured = false
		b := succeeding("beta")
		f := newFixture(cands, faces, true, a, b)

		res, err := f.orch.Generate(context.Background(), educational)

		Convey("Then it is skipped without a submit call", func() {
			So(err, ShouldBeNil)
			So(res.Provider, ShouldEqual, "beta")
			So(a.submitCount(), ShouldEqual, 0)
		})
	})

	Convey("Given every provider rejects or is unconfigured", t, func() {
		cands, faces := threeAvatars()
		a := succeeding("alpha")
		a.submitErr = errors.New("bad request")
		b := succeeding("beta")
		b.configured = false
		f := newFixture(cands, faces, true, a, b)

		_, err := f.orch.Generate(context.Background(), educational)

		Convey("Then no provider is reported and the pool is untouched", func() {
			So(errors.Is(err, orchestrator.ErrNoProvider), ShouldBeTrue)
			So(f.stats(), ShouldResemble, pool.Stats{Available: 3})
		})
	})
}

func TestGenerate_FailuresLeaveThePoolUnchanged(t *testing.T) {
	Convey("Given a pool of three avatars", t, func() {
		cands, faces := threeAvatars()

		Convey("When synthesis fails", func() {
			heygen := succeeding("heygen")
			f := newFixture(cands, faces, true, heygen)
			f.synth.err = &speech.SynthesisError{Primary: "elevenlabs", Reason: errors.New("quota")}
			_, err := f.orch.Generate(context.Background(), educational)

			Convey("Then the avatar is released and nothing is submitted", func() {
				So(errors.Is(err, orchestrator.ErrSynthesisFailed), ShouldBeTrue)
				var synthErr *speech.SynthesisError
				So(errors.As(err, &synthErr), ShouldBeTrue)
				So(f.stats(), ShouldResemble, pool.Stats{Available: 3})
				So(heygen.submitCount(), ShouldEqual, 0)
			})
		})

		Convey("When the chosen provider times out", func() {
			slow := &fakeProvider{name: "slow", configured: true, attempts: 3,
				statuses: []video.PollResult{{Status: video.StatusProcessing}}}
			backup := succeeding("backup")
			f := newFixture(cands, faces, true, slow, backup)
			_, err := f.orch.Generate(context.Background(), educational)

			Convey("Then it fails with a timeout and does not retry elsewhere", func() {
				So(errors.Is(err, orchestrator.ErrTimeout), ShouldBeTrue)
				So(errors.Is(err, video.ErrTimeout), ShouldBeTrue)
				So(slow.pollCount(), ShouldEqual, 3)
				So(backup.submitCount(), ShouldEqual, 0)
				So(f.stats(), ShouldResemble, pool.Stats{Available: 3})
				So(f.archiver.archived, ShouldBeEmpty)
			})
		})

		Convey("When the provider reports a failed job", func() {
			broken := &fakeProvider{name: "broken", configured: true,
				statuses: []video.PollResult{{Status: video.StatusFailed, Detail: "bad face"}}}
			f := newFixture(cands, faces, true, broken)
			_, err := f.orch.Generate(context.Background(), educational)

			Convey("Then the provider detail is surfaced", func() {
				So(errors.Is(err, orchestrator.ErrProviderFailed), ShouldBeTrue)
				var fe *video.FailureError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Detail, ShouldEqual, "bad face")
				So(f.stats(), ShouldResemble, pool.Stats{Available: 3})
				So(f.recorder.failures[0].Reason, ShouldEqual, model.ReasonProviderFailed)
			})
		})

		Convey("When the caller cancels during polling", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stuck := &fakeProvider{name: "stuck", configured: true, attempts: 1000,
				statuses: []video.PollResult{{Status: video.StatusProcessing}}}
			stuck.onPoll = func() {
				if stuck.pollCount() == 2 {
					cancel()
				}
			}
			f := newFixture(cands, faces, true, stuck)
			_, err := f.orch.Generate(ctx, educational)

			Convey("Then it stops with Canceled and releases the avatar", func() {
				So(errors.Is(err, orchestrator.ErrCanceled), ShouldBeTrue)
				So(f.stats(), ShouldResemble, pool.Stats{Available: 3})
				So(stuck.pollCount(), ShouldEqual, 2)
			})
		})

		Convey("When the script is blank", func() {
			f := newFixture(cands, faces, true, succeeding("heygen"))
			_, err := f.orch.Generate(context.Background(), orchestrator.Request{Script: "  "})

			Convey("Then the request is invalid", func() {
				So(errors.Is(err, orchestrator.ErrInvalidRequest), ShouldBeTrue)
				So(f.synth.calls, ShouldEqual, 0)
			})
		})
	})
}

func TestGenerate_Sequential(t *testing.T) {
	Convey("Given a pool of three avatars and random selection", t, func() {
		cands, _ := threeAvatars()
		f := newFixture(cands, nil, false, succeeding("heygen"))
		ctx := context.Background()

		Convey("Then each job consumes a distinct avatar until the pool is empty", func() {
			seen := map[string]bool{}
			for i := 0; i < 3; i++ {
				res, err := f.orch.Generate(ctx, orchestrator.Request{ID: fmt.Sprintf("job-%d", i), Script: "Hola a todos"})
				So(err, ShouldBeNil)
				So(seen[res.Avatar.ID], ShouldBeFalse)
				seen[res.Avatar.ID] = true
			}
			_, err := f.orch.Generate(ctx, orchestrator.Request{Script: "Hola"})
			So(errors.Is(err, orchestrator.ErrPoolExhausted), ShouldBeTrue)
			So(f.stats(), ShouldResemble, pool.Stats{Used: 3})
		})
	})
}

func TestGenerate_RecorderErrorsAreIgnored(t *testing.T) {
	Convey("Given a recorder that always fails", t, func() {
		cands, faces := threeAvatars()
		f := newFixture(cands, faces, true, succeeding("heygen"))
		f.recorder.err = errors.New("db down")

		res, err := f.orch.Generate(context.Background(), educational)

		So(err, ShouldBeNil)
		So(res.VideoURL, ShouldNotBeEmpty)
	})
}

package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/avatarcast/internal/adapters/video"
	"github.com/okian/avatarcast/internal/config"
	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
)

// instantProvider finishes every job on the first poll.
type instantProvider struct {
	mu        sync.Mutex
	submitted []video.SubmitRequest
}

func (p *instantProvider) Name() string     { return "instant" }
func (p *instantProvider) Configured() bool { return true }

func (p *instantProvider) Submit(_ context.Context, req video.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, req)
	return "ext-" + req.JobID, nil
}

func (p *instantProvider) Poll(context.Context, string) (video.PollResult, error) {
	return video.PollResult{Status: video.StatusSucceeded, VideoURL: "https://videos.example/out.mp4"}, nil
}

func (p *instantProvider) Resolve(ctx context.Context, jobID string) (string, error) {
	return video.Resolve(ctx, p, p.Name(), jobID, time.Millisecond, 3, logger.Nop())
}

func (p *instantProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submitted)
}

func testConfig(t *testing.T, avatars ...string) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.New()
	cfg.Avatars.Dir = filepath.Join(root, "available")
	cfg.Avatars.UsedDir = filepath.Join(root, "used")
	cfg.Avatars.SyncSchedule = ""
	cfg.Media.Dir = filepath.Join(root, "media")
	cfg.Synthesis.Primary = "native"
	cfg.Synthesis.Secondary = ""
	cfg.Video.Priority = []string{"instant"}
	cfg.WorkerCount = 1
	cfg.QueueSize = 4
	if err := os.MkdirAll(cfg.Avatars.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range avatars {
		writeAvatar(t, cfg.Avatars.Dir, name)
	}
	return cfg
}

func writeAvatar(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func waitForState(s *Service, id string, state model.JobState) model.GenerationJob {
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := s.Job(context.Background(), id)
		if err == nil && job.State == state {
			return job
		}
		if time.Now().After(deadline) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		s := New(testConfig(t), WithLogger(logger.Nop()))

		Convey("Then every operation reports ErrNotStarted", func() {
			ctx := context.Background()
			_, _, err := s.Submit(ctx, "", model.GenerationRequest{Script: "hola"})
			So(err, ShouldEqual, ErrNotStarted)
			_, err = s.Job(ctx, "x")
			So(err, ShouldEqual, ErrNotStarted)
			So(s.Recycle(ctx, "x"), ShouldEqual, ErrNotStarted)
			So(s.Ready(ctx), ShouldBeFalse)
			So(s.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then Stop is a no-op", func() {
			So(s.Stop(context.Background()), ShouldBeNil)
		})
	})
}

func TestService_Generation(t *testing.T) {
	Convey("Given a started service with two avatars", t, func() {
		ctx := context.Background()
		cfg := testConfig(t, "a.png", "b.png")
		provider := &instantProvider{}
		s := New(cfg, WithLogger(logger.Nop()), WithVideoProviders(provider))
		So(s.Start(ctx), ShouldBeNil)
		defer func() { So(s.Stop(ctx), ShouldBeNil) }()

		So(s.Ready(ctx), ShouldBeTrue)
		view, err := s.Avatars(ctx)
		So(err, ShouldBeNil)
		So(view.Stats.Available, ShouldEqual, 2)

		Convey("When a request is submitted", func() {
			req := model.GenerationRequest{Script: "Aprende marketing digital en tres pasos", Tone: "educational", Language: "es"}
			jobID, duplicate, err := s.Submit(ctx, "req-1", req)
			So(err, ShouldBeNil)
			So(jobID, ShouldNotBeEmpty)
			So(duplicate, ShouldBeFalse)

			job := waitForState(s, jobID, model.StateSucceeded)

			Convey("Then the job succeeds and consumes one avatar", func() {
				So(job.State, ShouldEqual, model.StateSucceeded)
				So(job.VideoURL, ShouldEqual, "https://videos.example/out.mp4")
				So(job.Provider, ShouldEqual, "instant")
				So(job.Avatar, ShouldNotBeNil)
				So(provider.count(), ShouldEqual, 1)

				view, err := s.Avatars(ctx)
				So(err, ShouldBeNil)
				So(view.Stats.Available, ShouldEqual, 1)
				So(view.Stats.Used, ShouldEqual, 1)

				_, statErr := os.Stat(filepath.Join(cfg.Avatars.UsedDir, job.Avatar.ID))
				So(statErr, ShouldBeNil)
			})

			Convey("Then a retry with the same request id returns the same job", func() {
				again, duplicate, err := s.Submit(ctx, "req-1", req)
				So(err, ShouldBeNil)
				So(duplicate, ShouldBeTrue)
				So(again, ShouldEqual, jobID)
				So(provider.count(), ShouldEqual, 1)
			})

			Convey("Then the job is listed", func() {
				jobs, err := s.Jobs(ctx, model.StateSucceeded, 10)
				So(err, ShouldBeNil)
				So(len(jobs), ShouldEqual, 1)
				So(jobs[0].ID, ShouldEqual, jobID)
			})

			Convey("Then the used avatar can be recycled once", func() {
				id := job.Avatar.ID
				So(s.Recycle(ctx, id), ShouldBeNil)

				view, err := s.Avatars(ctx)
				So(err, ShouldBeNil)
				So(view.Stats.Available, ShouldEqual, 2)
				_, statErr := os.Stat(filepath.Join(cfg.Avatars.Dir, id))
				So(statErr, ShouldBeNil)

				So(s.Recycle(ctx, id), ShouldEqual, ErrNotRecyclable)
			})
		})

		Convey("When a blank script is submitted", func() {
			_, _, err := s.Submit(ctx, "", model.GenerationRequest{Script: "  "})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrInvalidRequest), ShouldBeTrue)
			})
		})

		Convey("When unknown ids are used", func() {
			_, err := s.Job(ctx, "missing")
			So(err, ShouldEqual, ErrJobNotFound)
			So(s.Recycle(ctx, "missing.png"), ShouldEqual, ErrAvatarNotFound)
		})

		Convey("When a new image appears and avatars are synced", func() {
			writeAvatar(t, cfg.Avatars.Dir, "c.png")
			added, err := s.SyncAvatars(ctx)

			Convey("Then only the new image is added", func() {
				So(err, ShouldBeNil)
				So(added, ShouldEqual, 1)
				view, err := s.Avatars(ctx)
				So(err, ShouldBeNil)
				So(view.Stats.Available, ShouldEqual, 3)
			})
		})

		Convey("When stats are requested", func() {
			stats := s.GetStats()

			Convey("Then runtime fields are present", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats, ShouldContainKey, "pool")
				So(stats, ShouldContainKey, "queueLength")
				So(stats, ShouldContainKey, "jobs")
			})
		})
	})
}

func TestService_SyncGenerate(t *testing.T) {
	Convey("Given a started service with one avatar", t, func() {
		ctx := context.Background()
		s := New(testConfig(t, "only.jpg"), WithLogger(logger.Nop()), WithVideoProviders(&instantProvider{}))
		So(s.Start(ctx), ShouldBeNil)
		defer func() { So(s.Stop(ctx), ShouldBeNil) }()

		Convey("When two requests run synchronously", func() {
			req := model.GenerationRequest{Script: "Hola a todos, bienvenidos", Language: "es"}
			res, err := s.Generate(ctx, req)
			So(err, ShouldBeNil)
			So(res.VideoURL, ShouldEqual, "https://videos.example/out.mp4")

			_, err = s.Generate(ctx, req)

			Convey("Then the second finds the pool exhausted", func() {
				So(err, ShouldNotBeNil)
				view, perr := s.Avatars(ctx)
				So(perr, ShouldBeNil)
				So(view.Stats.Available, ShouldEqual, 0)
				So(view.Stats.Used, ShouldEqual, 1)
			})
		})
	})
}

func TestJobTracker(t *testing.T) {
	Convey("Given a tracker holding two jobs", t, func() {
		tr := newJobTracker(2)
		now := time.Now()
		tr.put(model.GenerationJob{ID: "a", State: model.StatePending, CreatedAt: now})
		tr.put(model.GenerationJob{ID: "b", State: model.StatePending, CreatedAt: now.Add(time.Second)})

		Convey("Then listing is newest first", func() {
			jobs := tr.list("", 0)
			So(len(jobs), ShouldEqual, 2)
			So(jobs[0].ID, ShouldEqual, "b")
		})

		Convey("When a third job arrives", func() {
			tr.put(model.GenerationJob{ID: "c", CreatedAt: now.Add(2 * time.Second)})

			Convey("Then the oldest is evicted", func() {
				_, ok := tr.get("a")
				So(ok, ShouldBeFalse)
				_, ok = tr.get("c")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When a stale snapshot arrives after a newer one", func() {
			newer := model.GenerationJob{ID: "a", State: model.StateSynthesizingAudio, Transitions: make([]model.Transition, 2)}
			older := model.GenerationJob{ID: "a", State: model.StateSelectingAvatar, Transitions: make([]model.Transition, 1)}
			tr.update(newer)
			tr.update(older)

			Convey("Then the newer one is kept", func() {
				job, ok := tr.get("a")
				So(ok, ShouldBeTrue)
				So(job.State, ShouldEqual, model.StateSynthesizingAudio)
				So(tr.counts()[model.StatePending], ShouldEqual, 1)
			})
		})

		Convey("When a job is removed", func() {
			tr.remove("a")

			Convey("Then it is gone", func() {
				_, ok := tr.get("a")
				So(ok, ShouldBeFalse)
				So(len(tr.list("", 0)), ShouldEqual, 1)
			})
		})
	})
}

package repository_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/avatarcast/internal/adapters/repository"
	"github.com/okian/avatarcast/internal/domain/model"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func finishedJob(id string, state model.JobState, created time.Time) model.GenerationJob {
	job := model.GenerationJob{
		ID:        id,
		Script:    "Aprende marketing digital en 3 pasos",
		Tone:      model.ToneSerious,
		Language:  "es",
		State:     model.StatePending,
		CreatedAt: created,
	}
	job.Advance(model.StateSelectingAvatar, "", created)
	job.Avatar = &model.AvatarCandidate{ID: "avatar-2", Filename: "img_002.jpg"}
	job.AvatarScore = 83.5
	job.Audio = &model.AudioRef{URL: "https://media/a.mp3", Provider: "elevenlabs", Voice: "v1"}
	job.Provider = "heygen"
	job.ExternalJobID = "hg-1"
	job.Advance(state, "", created.Add(time.Minute))
	return job
}

func TestGormStore(t *testing.T) {
	Convey("Given a store on an in-memory database", t, func() {
		ctx := context.Background()
		store, err := repository.NewGormStore(ctx, openSQLite(t))
		So(err, ShouldBeNil)
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		Convey("When a succeeded job is recorded", func() {
			job := finishedJob("job-1", model.StateSucceeded, base)
			job.VideoURL = "https://cdn/video.mp4"
			So(store.RecordSuccess(ctx, job), ShouldBeNil)

			Convey("Then it can be read back", func() {
				got, err := store.Get(ctx, "job-1")
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, model.StateSucceeded)
				So(got.VideoURL, ShouldEqual, "https://cdn/video.mp4")
				So(got.Avatar.ID, ShouldEqual, "avatar-2")
				So(got.Audio.Provider, ShouldEqual, "elevenlabs")
				So(got.Transitions, ShouldHaveLength, 2)
				So(got.Transitions[1].To, ShouldEqual, model.StateSucceeded)
				So(got.FinishedAt, ShouldNotBeNil)
				So(got.CreatedAt.Equal(base), ShouldBeTrue)
			})

			Convey("Then recording the same id again updates the row", func() {
				job.VideoURL = "https://cdn/other.mp4"
				So(store.RecordSuccess(ctx, job), ShouldBeNil)
				got, err := store.Get(ctx, "job-1")
				So(err, ShouldBeNil)
				So(got.VideoURL, ShouldEqual, "https://cdn/other.mp4")
			})
		})

		Convey("When failures and successes are mixed", func() {
			ok := finishedJob("job-a", model.StateSucceeded, base)
			bad := finishedJob("job-b", model.StateFailed, base.Add(time.Hour))
			bad.Reason = model.ReasonTimeout
			bad.Error = "heygen job hg-1 after 60 polls: video generation timed out"
			So(store.RecordSuccess(ctx, ok), ShouldBeNil)
			So(store.RecordFailure(ctx, bad), ShouldBeNil)

			Convey("Then List returns newest first", func() {
				jobs, err := store.List(ctx, repository.Filter{})
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 2)
				So(jobs[0].ID, ShouldEqual, "job-b")
				So(jobs[0].Reason, ShouldEqual, model.ReasonTimeout)
			})

			Convey("Then List filters by state", func() {
				jobs, err := store.List(ctx, repository.Filter{State: model.StateSucceeded})
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 1)
				So(jobs[0].ID, ShouldEqual, "job-a")
			})

			Convey("Then List respects the limit", func() {
				jobs, err := store.List(ctx, repository.Filter{Limit: 1})
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 1)
			})
		})

		Convey("Then unknown ids are reported", func() {
			_, err := store.Get(ctx, "missing")
			So(err, ShouldEqual, repository.ErrNotFound)
		})

		Convey("Then invalid input is rejected", func() {
			So(store.RecordSuccess(ctx, model.GenerationJob{}), ShouldEqual, repository.ErrInvalidJob)
			_, err := store.List(ctx, repository.Filter{Limit: repository.MaxListLimit + 1})
			So(err, ShouldEqual, repository.ErrInvalidLimit)
		})
	})
}

func TestNopStore(t *testing.T) {
	Convey("Given a nop store", t, func() {
		ctx := context.Background()
		var s repository.Store = repository.NopStore{}

		So(s.RecordSuccess(ctx, model.GenerationJob{ID: "x"}), ShouldBeNil)
		So(s.RecordFailure(ctx, model.GenerationJob{ID: "x"}), ShouldBeNil)
		_, err := s.Get(ctx, "x")
		So(err, ShouldEqual, repository.ErrNotFound)
		jobs, err := s.List(ctx, repository.Filter{})
		So(err, ShouldBeNil)
		So(jobs, ShouldBeEmpty)
	})
}

package model_test

import (
	"testing"
	"time"

	"github.com/okian/avatarcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTone_Valid(t *testing.T) {
	Convey("Given the closed tone set", t, func() {
		for _, tone := range model.Tones {
			So(tone.Valid(), ShouldBeTrue)
		}
		So(model.Tone("sarcastic").Valid(), ShouldBeFalse)
		So(model.Tone("").Valid(), ShouldBeFalse)
	})
}

func TestGenerationJob_Advance(t *testing.T) {
	Convey("Given a pending job", t, func() {
		now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		job := &model.GenerationJob{ID: "job-1", State: model.StatePending}

		Convey("When it walks the happy path", func() {
			steps := []model.JobState{
				model.StateSelectingAvatar, model.StateSynthesizingAudio, model.StateSubmittingVideo,
				model.StatePollingVideo, model.StateFinalizing, model.StateSucceeded,
			}
			for i, s := range steps {
				So(job.Advance(s, "", now.Add(time.Duration(i)*time.Second)), ShouldBeTrue)
			}

			Convey("Then every transition is recorded and the job is finished", func() {
				So(job.Transitions, ShouldHaveLength, len(steps))
				So(job.Transitions[0].From, ShouldEqual, model.StatePending)
				So(job.State.Terminal(), ShouldBeTrue)
				So(job.FinishedAt, ShouldNotBeNil)
				So(*job.FinishedAt, ShouldEqual, now.Add(5*time.Second))
			})

			Convey("Then a terminal job refuses further transitions", func() {
				So(job.Advance(model.StateFailed, "late", now), ShouldBeFalse)
				So(job.State, ShouldEqual, model.StateSucceeded)
			})
		})

		Convey("Then usage history is derived from the candidate", func() {
			c := model.AvatarCandidate{ID: "a"}
			So(c.HasUsageHistory(), ShouldBeFalse)
			c.UseCount = 1
			So(c.HasUsageHistory(), ShouldBeTrue)
		})
	})
}

func TestGenerationJob_Clone(t *testing.T) {
	Convey("Given a job with an avatar", t, func() {
		job := &model.GenerationJob{ID: "j", State: model.StatePending, Avatar: &model.AvatarCandidate{ID: "a", Tags: []string{"x"}}}
		job.Advance(model.StateSelectingAvatar, "", time.Now())

		Convey("Then a clone does not share mutable state", func() {
			c := job.Clone()
			c.Avatar.Tags[0] = "y"
			c.Transitions[0].Note = "changed"
			So(job.Avatar.Tags[0], ShouldEqual, "x")
			So(job.Transitions[0].Note, ShouldBeEmpty)
		})
	})
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.generations.WithLabelValues("succeeded", "").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_generations_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		SetEnabled(true)

		Convey("When a generation outcome is recorded", func() {
			before := testutil.ToFloat64(globalManager.generations.WithLabelValues("failed", "timeout"))
			RecordGeneration("failed", "timeout", 12)

			Convey("Then the counter for that reason increases by one", func() {
				after := testutil.ToFloat64(globalManager.generations.WithLabelValues("failed", "timeout"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When pool sizes are updated", func() {
			UpdatePoolSize(3, 1, 7)

			Convey("Then every partition gauge is set", func() {
				So(testutil.ToFloat64(globalManager.poolSize.WithLabelValues("available")), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.poolSize.WithLabelValues("reserved")), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.poolSize.WithLabelValues("used")), ShouldEqual, 7)
			})
		})

		Convey("When recording is disabled", func() {
			SetEnabled(false)
			before := testutil.ToFloat64(globalManager.duplicates)
			RecordDuplicate()
			SetEnabled(true)

			Convey("Then nothing is recorded", func() {
				So(testutil.ToFloat64(globalManager.duplicates), ShouldEqual, before)
			})
		})

		Convey("Then the remaining recorders do not panic", func() {
			So(func() {
				RecordStateTransition("polling_video")
				RecordVideoSubmission("heygen", "accepted")
				RecordPollAttempts("heygen", "succeeded", 4)
				RecordSynthesis("elevenlabs", "failed", 120)
				RecordPoolOperation("claim")
				RecordSelectedScore(71.5)
				UpdateQueueSize(2)
				RecordQueueRejected()
				UpdateWorkerCount(1)
				RecordHTTPRequest("generations", "POST", "202")
				RecordHTTPRequestDuration("generations", "POST", "202", 3)
				RecordErrorByComponent("orchestrator", "timeout")
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

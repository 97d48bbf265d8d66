package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should register metrics on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.scoresComputed.WithLabelValues("weekly", OutcomeOK).Inc()

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_scores_computed_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording business metrics", func() {
			before := gatheredValue("pulse_engine_batch_runs_total")
			RecordBatchRun("season", "aborted")

			Convey("Then the counter should advance", func() {
				So(gatheredValue("pulse_engine_batch_runs_total")-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining metrics", func() {
			So(func() {
				RecordScoringLatency(1.5)
				RecordAlertEmitted("elite")
				RecordAlertDuplicate()
				RecordBatchRun("weekly", "ok")
				RecordStageLatency("rank", 3)
				UpdatePopulationSize("weekly", 12)
				RecordProfileActivation()
				RecordSubmission("accepted")
				RecordScheduledRun("daily", "failed")
				RecordHTTPRequest("/batches", "POST", "200")
				RecordHTTPRequestDuration("/batches", "POST", "200", 12)
				RecordRepositoryQueryLatency("memory", "upsert_score", 0.2)
				RecordRepositoryError("sqlite", "insert_alert")
				UpdateQueueSize(3)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				AddWorkerActive(1)
				AddWorkerActive(-1)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordErrorByComponent("ranking", "incomplete_population")
			}, ShouldNotPanic)
		})

		Convey("When gauges are set", func() {
			UpdateQueueCapacity(42)

			Convey("Then they report the last value", func() {
				So(gatheredValue("pulse_engine_queue_capacity"), ShouldEqual, 42)
			})
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

// gatheredValue sums every sample of a counter or gauge family in the global registry.
func gatheredValue(name string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

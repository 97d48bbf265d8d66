package alerting_test

import (
	"testing"
	"time"

	"github.com/okian/pulse/internal/domain/alerting"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/trend"
	. "github.com/smartystreets/goconvey/convey"
)

func annotated(overall float64, previous *float64) model.ScoreRecord {
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	r := model.ScoreRecord{
		EntityID:     "player-1",
		Timeframe:    model.Weekly,
		Period:       model.Period{Start: end.AddDate(0, 0, -6), End: end},
		OverallScore: overall,
	}
	r.Trend = trend.NewAnalyzer().Analyze(overall, previous)
	return r
}

func ptr(v float64) *float64 { return &v }

func rules(alerts []model.AlertRecord) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Rule
	}
	return out
}

func TestEvaluate(t *testing.T) {
	Convey("Given the default evaluator", t, func() {
		e := alerting.NewEvaluator()

		Convey("When the score changed by 5.05", func() {
			alerts := e.Evaluate(annotated(83.05, ptr(78)))

			Convey("Then a positive high improvement alert is emitted", func() {
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Rule, ShouldEqual, alerting.RuleImprovement)
				So(alerts[0].Type, ShouldEqual, model.AlertPositive)
				So(alerts[0].Severity, ShouldEqual, model.SeverityHigh)
				So(alerts[0].Category, ShouldEqual, model.CategoryOverall)
				So(alerts[0].MetricValue, ShouldEqual, 5.05)
				So(alerts[0].ThresholdValue, ShouldEqual, 5)
				So(alerts[0].AlertDate.Format(model.DateLayout), ShouldEqual, "2024-03-10")
				So(alerts[0].IsActive, ShouldBeTrue)
				So(alerts[0].ID, ShouldNotBeEmpty)
			})
		})

		Convey("When the score changed by exactly 5.00", func() {
			alerts := e.Evaluate(annotated(83, ptr(78)))

			Convey("Then no improvement alert is emitted", func() {
				So(alerts, ShouldBeEmpty)
			})
		})

		Convey("When the score fell by more than 5", func() {
			alerts := e.Evaluate(annotated(70, ptr(78)))
			So(rules(alerts), ShouldResemble, []string{alerting.RuleDecline})
			So(alerts[0].Type, ShouldEqual, model.AlertWarning)
		})

		Convey("When the overall score is 96", func() {
			Convey("Then an elite alert fires even on a decline", func() {
				alerts := e.Evaluate(annotated(96, ptr(99)))
				So(rules(alerts), ShouldResemble, []string{alerting.RuleElite})
			})

			Convey("Then elite and improvement can fire together", func() {
				alerts := e.Evaluate(annotated(96, ptr(80)))
				So(rules(alerts), ShouldResemble, []string{alerting.RuleImprovement, alerting.RuleElite})
				So(alerts[0].DedupeKey(), ShouldNotEqual, alerts[1].DedupeKey())
			})

			Convey("Then a first period still earns the elite alert", func() {
				alerts := e.Evaluate(annotated(96, nil))
				So(rules(alerts), ShouldResemble, []string{alerting.RuleElite})
			})
		})

		Convey("When the same record is evaluated twice", func() {
			r := annotated(97, ptr(80))
			first, second := e.Evaluate(r), e.Evaluate(r)

			Convey("Then the dedupe keys are stable", func() {
				So(len(first), ShouldEqual, len(second))
				for i := range first {
					So(first[i].DedupeKey(), ShouldEqual, second[i].DedupeKey())
				}
			})
		})
	})

	Convey("Given configured thresholds", t, func() {
		fixed := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
		e := alerting.NewEvaluator(
			alerting.WithChangeThreshold(2),
			alerting.WithEliteThreshold(90),
			alerting.WithClock(func() time.Time { return fixed }),
		)

		Convey("Then rules use them", func() {
			alerts := e.Evaluate(annotated(91, ptr(88)))
			So(rules(alerts), ShouldResemble, []string{alerting.RuleImprovement, alerting.RuleElite})
			So(alerts[0].CreatedAt, ShouldEqual, fixed)
			So(len(e.Rules()), ShouldEqual, 3)
		})
	})
}

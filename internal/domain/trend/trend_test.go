package trend_test

import (
	"testing"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/trend"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

func TestAnalyze(t *testing.T) {
	Convey("Given a trend analyzer", t, func() {
		a := trend.NewAnalyzer()

		Convey("When there is no previous period", func() {
			tr := a.Analyze(80, nil)

			Convey("Then the direction is unknown, not stable", func() {
				So(tr.Direction, ShouldEqual, model.TrendUnknown)
				So(tr.ScoreChange, ShouldBeNil)
				So(tr.PreviousScore, ShouldBeNil)
			})
		})

		Convey("When the score rose by 5.05", func() {
			tr := a.Analyze(83.05, ptr(78))

			Convey("Then the change is exact to two decimals", func() {
				So(tr.Direction, ShouldEqual, model.TrendUp)
				So(*tr.ScoreChange, ShouldEqual, 5.05)
				So(*tr.PreviousScore, ShouldEqual, 78)
				So(tr.Strength, ShouldEqual, 5.05)
			})
		})

		Convey("When the change is inside the dead band", func() {
			tr := a.Analyze(80.05, ptr(80))
			So(tr.Direction, ShouldEqual, model.TrendStable)
		})

		Convey("When the score fell", func() {
			tr := a.Analyze(70, ptr(80))
			So(tr.Direction, ShouldEqual, model.TrendDown)
			So(*tr.ScoreChange, ShouldEqual, -10)
		})

		Convey("When the change exceeds the strength range", func() {
			up := a.Analyze(95, ptr(60))
			down := a.Analyze(20, ptr(60))

			Convey("Then strength is clamped to [-10,10]", func() {
				So(up.Strength, ShouldEqual, 10)
				So(down.Strength, ShouldEqual, -10)
				So(*up.ScoreChange, ShouldEqual, 35)
			})
		})

		Convey("When a wider epsilon is configured", func() {
			wide := trend.NewAnalyzer(trend.WithEpsilon(1))
			So(wide.Analyze(80.5, ptr(80)).Direction, ShouldEqual, model.TrendStable)
			So(wide.Analyze(81.5, ptr(80)).Direction, ShouldEqual, model.TrendUp)
		})
	})
}

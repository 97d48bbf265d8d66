package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTimeframe(t *testing.T) {
	Convey("Given timeframe strings", t, func() {
		Convey("When they are known", func() {
			tf, err := model.ParseTimeframe(" Weekly ")
			So(err, ShouldBeNil)
			So(tf, ShouldEqual, model.Weekly)
		})

		Convey("When they are unknown", func() {
			_, err := model.ParseTimeframe("hourly")
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestPeriod(t *testing.T) {
	Convey("Given period bounds", t, func() {
		Convey("When they are ordered", func() {
			p, err := model.ParsePeriod("2024-03-04", "2024-03-10")
			So(err, ShouldBeNil)
			So(p.String(), ShouldEqual, "2024-03-04..2024-03-10")
		})

		Convey("When the end precedes the start", func() {
			_, err := model.ParsePeriod("2024-03-10", "2024-03-04")
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When a date is malformed", func() {
			_, err := model.ParsePeriod("03/04/2024", "2024-03-10")
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})

	Convey("Given a wall clock instant", t, func() {
		now := time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC) // Wednesday

		Convey("Then the containing week starts on Monday", func() {
			p, err := model.PeriodContaining(model.Weekly, now)
			So(err, ShouldBeNil)
			So(p.Start.Format(model.DateLayout), ShouldEqual, "2024-03-11")
			So(p.End.Format(model.DateLayout), ShouldEqual, "2024-03-17")
		})

		Convey("Then the last completed periods precede today", func() {
			day, err := model.LastCompletedPeriod(model.Daily, now)
			So(err, ShouldBeNil)
			So(day.Start.Format(model.DateLayout), ShouldEqual, "2024-03-12")

			week, err := model.LastCompletedPeriod(model.Weekly, now)
			So(err, ShouldBeNil)
			So(week.String(), ShouldEqual, "2024-03-04..2024-03-10")

			month, err := model.LastCompletedPeriod(model.Monthly, now)
			So(err, ShouldBeNil)
			So(month.String(), ShouldEqual, "2024-02-01..2024-02-29")
		})

		Convey("Then seasons are not calendar shaped", func() {
			_, err := model.LastCompletedPeriod(model.Season, now)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given typed domain errors", t, func() {
		Convey("Then invalid weights are configuration errors naming the sum", func() {
			var err error = &model.InvalidWeightsError{Version: "v1", Sum: 0.97, Expected: 1}
			So(errors.Is(err, model.ErrInvalidWeights), ShouldBeTrue)
			So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "weights sum to 0.9700, expected 1.0000")
		})

		Convey("Then incomplete population matches its sentinel", func() {
			var err error = &model.IncompletePopulationError{Have: 2, Expected: 3}
			So(errors.Is(err, model.ErrIncompletePopulation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "have 2 score records, expected 3")
		})

		Convey("Then not-found variants share a root", func() {
			So(errors.Is(model.ErrProfileNotFound, model.ErrNotFound), ShouldBeTrue)
			So(errors.Is(model.ErrNoActiveProfile, model.ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestAlertDedupeKey(t *testing.T) {
	Convey("Given two alerts from different rules on the same day", t, func() {
		day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		a := model.AlertRecord{EntityID: "e1", Rule: "improvement", Type: model.AlertPositive, Category: model.CategoryOverall, AlertDate: day}
		b := a
		b.Rule = "elite"

		Convey("Then their dedupe keys differ", func() {
			So(a.DedupeKey(), ShouldNotEqual, b.DedupeKey())
		})

		Convey("Then severities order high first", func() {
			So(model.SeverityHigh.Rank(), ShouldBeGreaterThan, model.SeverityMedium.Rank())
			So(model.SeverityMedium.Rank(), ShouldBeGreaterThan, model.SeverityLow.Rank())
		})
	})
}

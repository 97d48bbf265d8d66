package scoring_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/pulse/internal/domain/model"
	scoring "github.com/okian/pulse/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func profile() model.WeightProfile {
	return model.WeightProfile{
		Version: "v1",
		Weights: []model.CategoryWeight{
			{Category: "scoring", Weight: 0.25},
			{Category: "efficiency", Weight: 0.20},
			{Category: "playmaking", Weight: 0.15},
			{Category: "defense", Weight: 0.15},
			{Category: "rebounding", Weight: 0.10},
			{Category: "consistency", Weight: 0.15},
		},
		RoleAdjustments: map[string]map[string]float64{
			"ghost": {"scoring": 0, "efficiency": 0, "playmaking": 0, "defense": 0, "rebounding": 0, "consistency": 0},
		},
	}
}

func fullSet() model.CategoryScoreSet {
	return model.CategoryScoreSet{
		EntityID: "player-1",
		Scores: map[string]float64{
			"scoring": 80, "efficiency": 85, "playmaking": 90,
			"defense": 75, "rebounding": 80, "consistency": 88,
		},
		SampleSize: 10,
	}
}

func TestValidate(t *testing.T) {
	Convey("Given a category score set", t, func() {
		categories := profile().Categories()

		Convey("When scores are out of range", func() {
			set := fullSet()
			set.Scores["scoring"] = 104
			set.Scores["defense"] = -3
			v, err := scoring.Validate(set, categories)

			Convey("Then they are clamped with a warning, not rejected", func() {
				So(err, ShouldBeNil)
				So(v.Scores["scoring"], ShouldEqual, 100)
				So(v.Scores["defense"], ShouldEqual, 0)
				So(len(v.Clamped), ShouldEqual, 2)
				So(v.Degraded(), ShouldBeFalse)
			})
		})

		Convey("When a score is not a number", func() {
			set := fullSet()
			set.Scores["efficiency"] = math.NaN()
			v, err := scoring.Validate(set, categories)

			Convey("Then the category is dropped and the set marked degraded", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
				So(v.Degraded(), ShouldBeTrue)
				So(v.DegradedReason(), ShouldContainSubstring, "efficiency")
				So(v.Scores, ShouldNotContainKey, "efficiency")
				So(v.Missing, ShouldBeEmpty)
			})
		})

		Convey("When a category is missing", func() {
			set := fullSet()
			delete(set.Scores, "rebounding")
			v, err := scoring.Validate(set, categories)

			Convey("Then it is reported as absent, not as a zero", func() {
				So(err, ShouldBeNil)
				So(v.Missing, ShouldResemble, []string{"rebounding"})
				So(v.Scores, ShouldNotContainKey, "rebounding")
			})
		})

		Convey("When an unknown category is present", func() {
			set := fullSet()
			set.Scores["charisma"] = 50
			v, err := scoring.Validate(set, categories)
			So(err, ShouldBeNil)
			So(v.Unknown, ShouldResemble, []string{"charisma"})
		})

		Convey("When the sample size is negative", func() {
			set := fullSet()
			set.SampleSize = -1
			v, err := scoring.Validate(set, categories)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			So(v.SampleSize, ShouldEqual, 0)
		})
	})
}

func TestCombine(t *testing.T) {
	Convey("Given the reference basketball weights", t, func() {
		w := map[string]float64{
			"scoring": 0.25, "efficiency": 0.20, "playmaking": 0.15,
			"defense": 0.15, "rebounding": 0.10, "consistency": 0.15,
		}

		Convey("When every category is present", func() {
			agg, err := scoring.Combine(fullSet().Scores, w, 10, 10)

			Convey("Then the overall score is 82.95", func() {
				So(err, ShouldBeNil)
				So(agg.Overall, ShouldEqual, 82.95)
				So(agg.Confidence, ShouldEqual, 1.0)
			})
		})

		Convey("When a category is missing", func() {
			scores := fullSet().Scores
			delete(scores, "scoring")
			agg, err := scoring.Combine(scores, w, 10, 10)

			Convey("Then weights renormalize over the present subset", func() {
				So(err, ShouldBeNil)
				// (82.95 - 20) / 0.75
				So(agg.Overall, ShouldEqual, 83.93)
				So(agg.Coverage, ShouldAlmostEqual, 5.0/6.0, 1e-9)
				So(agg.Confidence, ShouldBeLessThan, 1)
			})
		})

		Convey("When no category is present", func() {
			_, err := scoring.Combine(map[string]float64{}, w, 10, 10)
			So(errors.Is(err, model.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("When the sample size is short of the target", func() {
			agg, err := scoring.Combine(fullSet().Scores, w, 5, 10)
			So(err, ShouldBeNil)
			So(agg.Confidence, ShouldEqual, 0.5)
		})
	})

	Convey("Given confidence inputs", t, func() {
		Convey("Then confidence is monotonic and bounded", func() {
			prev := -1.0
			for sample := 0; sample <= 20; sample++ {
				c := scoring.Confidence(0.8, scoring.Adequacy(sample, 10))
				So(c, ShouldBeGreaterThanOrEqualTo, prev)
				So(c, ShouldBeBetweenOrEqual, 0, 1)
				prev = c
			}
			So(scoring.Confidence(0.5, 1), ShouldBeLessThan, scoring.Confidence(1, 1))
		})

		Convey("Then a non-positive target disables the sample penalty", func() {
			So(scoring.Adequacy(0, 0), ShouldEqual, 1)
		})
	})
}

func TestCompositeScorer(t *testing.T) {
	Convey("Given a composite scorer", t, func() {
		scorer := scoring.NewCompositeScorer(scoring.WithTargetSampleSize(20))
		ctx := context.Background()

		Convey("When scoring a clean set", func() {
			res, err := scorer.Score(ctx, scoring.Input{Set: fullSet(), Profile: profile()})

			Convey("Then the aggregate uses the configured target", func() {
				So(err, ShouldBeNil)
				So(res.Overall, ShouldEqual, 82.95)
				So(res.Confidence, ShouldEqual, 0.5)
				So(res.Degraded(), ShouldBeFalse)
			})
		})

		Convey("When a role zeroes every weight", func() {
			res, err := scorer.Score(ctx, scoring.Input{Set: fullSet(), Profile: profile(), Role: "ghost"})

			Convey("Then base weights are used and the record is degraded", func() {
				So(err, ShouldBeNil)
				So(res.Overall, ShouldEqual, 82.95)
				So(res.Degraded(), ShouldBeTrue)
				So(res.DegradedReason(), ShouldContainSubstring, "role adjustment")
			})
		})

		Convey("When every score is malformed", func() {
			set := fullSet()
			for k := range set.Scores {
				set.Scores[k] = math.Inf(1)
			}
			_, err := scorer.Score(ctx, scoring.Input{Set: set, Profile: profile()})
			So(errors.Is(err, model.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := scorer.Score(cctx, scoring.Input{Set: fullSet(), Profile: profile()})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

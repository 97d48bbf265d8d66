package ranking_test

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func rec(id string, overall float64, cats map[string]float64) model.ScoreRecord {
	return model.ScoreRecord{EntityID: id, OverallScore: overall, CategoryScores: cats}
}

func TestIndex(t *testing.T) {
	Convey("Given an index", t, func() {
		ix := ranking.NewIndex()

		Convey("When it holds one value", func() {
			ix.Insert("a", 50)

			Convey("Then the percentile is undefined", func() {
				So(ix.Percentile(50), ShouldBeNil)
			})
		})

		Convey("When values tie", func() {
			ix.Insert("a", 70)
			ix.Insert("b", 80)
			ix.Insert("c", 80)
			ix.Insert("d", 90)

			Convey("Then tied entries share the strictly-lower count", func() {
				So(ix.CountBelow(80), ShouldEqual, 1)
				So(*ix.Percentile(80), ShouldEqual, 33.33)
				So(*ix.Percentile(70), ShouldEqual, 0)
				So(*ix.Percentile(90), ShouldEqual, 100)
			})
		})

		Convey("When float noise separates equal scores", func() {
			ix.Insert("a", 0.1+0.2)
			ix.Insert("b", 0.3)
			So(ix.CountBelow(0.3), ShouldEqual, 0)
		})

		Convey("When many random values are inserted", func() {
			rng := rand.New(rand.NewSource(7))
			values := make([]float64, 500)
			for i := range values {
				values[i] = float64(rng.Intn(10000)) / 100
				ix.Insert(fmt.Sprintf("e-%03d", i), values[i])
			}
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)

			Convey("Then counts match a sorted scan", func() {
				So(ix.Len(), ShouldEqual, 500)
				for _, probe := range []float64{0, 12.5, 50, 99.99, 100} {
					want := sort.SearchFloat64s(sorted, probe)
					So(ix.CountBelow(probe), ShouldEqual, want)
				}
			})
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given a period population", t, func() {
		records := []model.ScoreRecord{
			rec("a", 60, map[string]float64{"speed": 70, "defense": 50}),
			rec("b", 75, map[string]float64{"speed": 70}),
			rec("c", 90, map[string]float64{"speed": 40, "defense": 80}),
		}

		Convey("When ranked", func() {
			out := ranking.Rank(records)

			Convey("Then overall percentiles span [0,100]", func() {
				So(*out["a"].Overall, ShouldEqual, 0)
				So(*out["b"].Overall, ShouldEqual, 50)
				So(*out["c"].Overall, ShouldEqual, 100)
				for _, p := range out {
					So(*p.Overall, ShouldBeBetweenOrEqual, 0, 100)
				}
			})

			Convey("Then each category is ranked independently", func() {
				So(out["a"].Categories["speed"], ShouldEqual, 50)
				So(out["b"].Categories["speed"], ShouldEqual, 50)
				So(out["c"].Categories["speed"], ShouldEqual, 0)
			})

			Convey("Then entities lacking a category are excluded from it", func() {
				So(out["a"].Categories["defense"], ShouldEqual, 0)
				So(out["c"].Categories["defense"], ShouldEqual, 100)
				So(out["b"].Categories, ShouldNotContainKey, "defense")
			})
		})
	})

	Convey("Given a population of one", t, func() {
		out := ranking.Rank([]model.ScoreRecord{rec("solo", 88, map[string]float64{"speed": 70})})

		Convey("Then every percentile is null", func() {
			So(out["solo"].Overall, ShouldBeNil)
			So(out["solo"].Categories, ShouldBeEmpty)
		})
	})
}

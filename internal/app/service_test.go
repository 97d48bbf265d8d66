package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/pulse/internal/adapters/repository"
	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/domain/alerting"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var (
	week1 = model.Period{Start: day(2024, 3, 4), End: day(2024, 3, 10)}
	week2 = model.Period{Start: day(2024, 3, 11), End: day(2024, 3, 17)}
	now   = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
)

func evenProfile(version string) model.WeightProfile {
	return model.WeightProfile{
		Version: version,
		Weights: []model.CategoryWeight{
			{Category: "technical", Weight: 0.5},
			{Category: "physical", Weight: 0.5},
		},
		RoleAdjustments: map[string]map[string]float64{
			"ghost": {"technical": 0, "physical": 0},
		},
	}
}

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithWorkerCount(3),
		service.WithQueueSize(2),
		service.WithClock(func() time.Time { return now }),
		service.WithBootstrapProfiles([]model.WeightProfile{evenProfile("v1")}, "v1"),
	}
	return service.New(append(base, opts...)...)
}

func submit(ctx context.Context, svc *service.Service, entity string, p model.Period, technical, physical float64) {
	_, _, err := svc.SubmitScores(ctx, model.CategoryScoreSet{
		EntityID:   entity,
		Timeframe:  model.Weekly,
		Period:     p,
		Scores:     map[string]float64{"technical": technical, "physical": physical},
		SampleSize: 10,
	})
	So(err, ShouldBeNil)
}

func register(ctx context.Context, svc *service.Service, ids ...string) {
	for _, id := range ids {
		_, err := svc.UpsertEntity(ctx, model.Entity{ID: id, Active: true})
		So(err, ShouldBeNil)
	}
}

// lossyStore acknowledges score upserts for one entity without writing them.
type lossyStore struct {
	repository.Store
	drop string
}

func (l *lossyStore) UpsertScore(ctx context.Context, r model.ScoreRecord) (model.ScoreRecord, error) {
	if r.EntityID == l.drop {
		return r, nil
	}
	return l.Store.UpsertScore(ctx, r)
}

// cancellingStore cancels the running batch as soon as a score record is written.
type cancellingStore struct {
	repository.Store
	cancel context.CancelFunc
}

func (c *cancellingStore) UpsertScore(ctx context.Context, r model.ScoreRecord) (model.ScoreRecord, error) {
	out, err := c.Store.UpsertScore(ctx, r)
	c.cancel()
	return out, err
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := newService()
		Reset(svc.Stop)

		Convey("When it is not started", func() {
			_, err := svc.RunBatch(ctx, model.Weekly, week1)

			Convey("Then batches are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the bootstrap profile is active", func() {
				p, err := svc.ActiveWeightProfile(ctx)
				So(err, ShouldBeNil)
				So(p.Version, ShouldEqual, "v1")

				stats := svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["activeProfile"], ShouldEqual, "v1")
				So(stats["workers"], ShouldEqual, 3)
			})

			Convey("And stopping marks it stopped", func() {
				svc.Stop()
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_WeightProfiles(t *testing.T) {
	Convey("Given a service without profiles", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithClock(func() time.Time { return now }))

		Convey("When a profile's weights sum to 0.97", func() {
			p := evenProfile("bad")
			p.Weights[1].Weight = 0.47
			_, err := svc.CreateWeightProfile(ctx, p)

			Convey("Then it is rejected naming the actual sum", func() {
				So(errors.Is(err, model.ErrInvalidWeights), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "0.9700")
				_, gerr := svc.ActiveWeightProfile(ctx)
				So(errors.Is(gerr, model.ErrNoActiveProfile), ShouldBeTrue)
			})
		})

		Convey("When two versions exist", func() {
			_, err := svc.CreateWeightProfile(ctx, evenProfile("v1"))
			So(err, ShouldBeNil)
			_, err = svc.CreateWeightProfile(ctx, evenProfile("v2"))
			So(err, ShouldBeNil)

			Convey("Then activation is exclusive", func() {
				So(svc.ActivateWeightProfile(ctx, "v1"), ShouldBeNil)
				So(svc.ActivateWeightProfile(ctx, "v2"), ShouldBeNil)

				all, err := svc.ListWeightProfiles(ctx)
				So(err, ShouldBeNil)
				active := 0
				for _, p := range all {
					if p.Active {
						active++
					}
				}
				So(active, ShouldEqual, 1)
			})

			Convey("Then an unknown version leaves the active profile in place", func() {
				So(svc.ActivateWeightProfile(ctx, "v1"), ShouldBeNil)
				err := svc.ActivateWeightProfile(ctx, "v3")
				So(errors.Is(err, model.ErrProfileNotFound), ShouldBeTrue)
				p, _ := svc.ActiveWeightProfile(ctx)
				So(p.Version, ShouldEqual, "v1")
			})

			Convey("Then a version cannot be re-created", func() {
				_, err := svc.CreateWeightProfile(ctx, evenProfile("v1"))
				So(errors.Is(err, model.ErrProfileExists), ShouldBeTrue)
			})
		})
	})
}

func TestService_SubmitScores(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := newService()
		set := model.CategoryScoreSet{
			SubmissionID: "sub-1",
			EntityID:     "a",
			Timeframe:    "Weekly",
			Period:       week1,
			Scores:       map[string]float64{"technical": 80},
		}

		Convey("When the same submission arrives twice", func() {
			_, dup, err := svc.SubmitScores(ctx, set)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			set.Scores = map[string]float64{"technical": 10}
			_, dup, err = svc.SubmitScores(ctx, set)

			Convey("Then the second is reported as a duplicate", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
			})
		})

		Convey("When the period is inverted", func() {
			set.Period = model.Period{Start: week1.End, End: week1.Start}
			_, _, err := svc.SubmitScores(ctx, set)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the timeframe is unknown", func() {
			set.Timeframe = "fortnightly"
			_, _, err := svc.SubmitScores(ctx, set)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_RunBatch(t *testing.T) {
	Convey("Given a started service with a registered population", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		register(ctx, svc, "a", "b", "c", "d")
		submit(ctx, svc, "a", week1, 80, 80)
		submit(ctx, svc, "b", week1, 70, 70)
		submit(ctx, svc, "c", week1, 97, 97)
		submit(ctx, svc, "a", week2, 86, 84.1)
		submit(ctx, svc, "b", week2, 65, 65)
		submit(ctx, svc, "c", week2, 100, 100)

		first, err := svc.RunBatch(ctx, model.Weekly, week1)
		So(err, ShouldBeNil)

		Convey("Then the first period is scored and ranked", func() {
			So(first.Succeeded, ShouldEqual, 3)
			So(first.Failed, ShouldEqual, 1)
			So(first.Failures[0].EntityID, ShouldEqual, "d")
			So(first.Failures[0].Stage, ShouldEqual, service.StageScore)
			So(first.Failures[0].Reason, ShouldContainSubstring, "insufficient data")
			So(first.Expected, ShouldEqual, 3)
			So(first.Ranked, ShouldBeTrue)
			So(len(first.Records), ShouldEqual, 3)
			for _, r := range first.Records {
				So(r.Trend.Direction, ShouldEqual, model.TrendUnknown)
				So(r.Percentiles, ShouldNotBeNil)
				So(*r.Percentiles.Overall, ShouldBeBetweenOrEqual, 0, 100)
			}
			So(len(first.Alerts), ShouldEqual, 1)
			So(first.Alerts[0].Rule, ShouldEqual, alerting.RuleElite)
			So(first.Alerts[0].EntityID, ShouldEqual, "c")
		})

		Convey("When the next period runs", func() {
			second, err := svc.RunBatch(ctx, model.Weekly, week2)
			So(err, ShouldBeNil)
			byID := map[string]model.ScoreRecord{}
			for _, r := range second.Records {
				byID[r.EntityID] = r
			}

			Convey("Then percentiles follow the population order", func() {
				So(*byID["b"].Percentiles.Overall, ShouldEqual, 0)
				So(*byID["a"].Percentiles.Overall, ShouldEqual, 50)
				So(*byID["c"].Percentiles.Overall, ShouldEqual, 100)
				So(byID["a"].Percentiles.Categories["technical"], ShouldEqual, 50)
			})

			Convey("Then trends compare with the previous period", func() {
				So(byID["a"].OverallScore, ShouldEqual, 85.05)
				So(byID["a"].Trend.Direction, ShouldEqual, model.TrendUp)
				So(*byID["a"].Trend.ScoreChange, ShouldEqual, 5.05)
				So(*byID["b"].Trend.ScoreChange, ShouldEqual, -5)
				So(byID["b"].Trend.Direction, ShouldEqual, model.TrendDown)
			})

			Convey("Then alerts fire on the thresholds", func() {
				rules := map[string]string{}
				for _, a := range second.Alerts {
					rules[a.EntityID+"/"+a.Rule] = a.AlertDate.Format(model.DateLayout)
				}
				So(rules["a/"+alerting.RuleImprovement], ShouldEqual, "2024-03-17")
				So(rules, ShouldNotContainKey, "b/"+alerting.RuleDecline)
				So(rules["c/"+alerting.RuleElite], ShouldEqual, "2024-03-17")
				So(len(second.Alerts), ShouldEqual, 2)
			})

			Convey("Then re-running the period is idempotent", func() {
				again, err := svc.RunBatch(ctx, model.Weekly, week2)
				So(err, ShouldBeNil)
				So(again.Alerts, ShouldBeEmpty)
				So(len(again.Records), ShouldEqual, 3)

				hist, err := svc.ScoreHistory(ctx, "a", model.Weekly, 10)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 2)
			})

			Convey("Then history is most recent first and limited", func() {
				hist, err := svc.ScoreHistory(ctx, "a", model.Weekly, 1)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 1)
				So(hist[0].Period.Start.Equal(week2.Start), ShouldBeTrue)

				_, err = svc.ScoreHistory(ctx, "a", model.Weekly, 0)
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})

			Convey("Then active alerts respect the window and acknowledgment", func() {
				alerts, err := svc.ActiveAlerts(ctx, "c", 30)
				So(err, ShouldBeNil)
				So(len(alerts), ShouldEqual, 2)
				So(alerts[0].AlertDate.Equal(day(2024, 3, 17)), ShouldBeTrue)

				recent, err := svc.ActiveAlerts(ctx, "c", 5)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)

				_, err = svc.AcknowledgeAlert(ctx, recent[0].ID)
				So(err, ShouldBeNil)
				recent, _ = svc.ActiveAlerts(ctx, "c", 5)
				So(recent, ShouldBeEmpty)
			})
		})

		Convey("When an entity is deactivated and the period re-runs", func() {
			_, err := svc.UpsertEntity(ctx, model.Entity{ID: "b", Active: false})
			So(err, ShouldBeNil)
			again, err := svc.RunBatch(ctx, model.Weekly, week1)
			So(err, ShouldBeNil)

			Convey("Then its stale record stays out of the population", func() {
				So(again.Ranked, ShouldBeTrue)
				So(len(again.Records), ShouldEqual, 2)
				byID := map[string]model.ScoreRecord{}
				for _, r := range again.Records {
					byID[r.EntityID] = r
				}
				So(*byID["a"].Percentiles.Overall, ShouldEqual, 0)
				So(*byID["c"].Percentiles.Overall, ShouldEqual, 100)

				ranked, err := svc.RankPeriod(ctx, model.Weekly, week1)
				So(err, ShouldBeNil)
				So(len(ranked), ShouldEqual, 2)
				for _, r := range ranked {
					So(r.EntityID, ShouldNotEqual, "b")
				}
			})
		})

		Convey("When a single entity is recomputed", func() {
			rec, err := svc.ComputeScore(ctx, "a", model.Weekly, week2)

			Convey("Then it carries a trend but no percentiles", func() {
				So(err, ShouldBeNil)
				So(rec.OverallScore, ShouldEqual, 85.05)
				So(rec.Trend.Direction, ShouldEqual, model.TrendUp)
				So(rec.Percentiles, ShouldBeNil)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			report, err := svc.RunBatch(cctx, model.Weekly, week2)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)

			Convey("Then every entity is reported as failed", func() {
				So(report.Succeeded, ShouldEqual, 0)
				So(report.Degraded, ShouldEqual, 0)
				So(report.Failed, ShouldEqual, 4)
				So(len(report.Failures), ShouldEqual, report.Failed)
			})
		})
	})
}

func TestService_RunBatchDegraded(t *testing.T) {
	Convey("Given an entity whose role zeroes every weight", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		_, err := svc.UpsertEntity(ctx, model.Entity{ID: "g", Role: "ghost", Active: true})
		So(err, ShouldBeNil)
		submit(ctx, svc, "g", week1, 60, 80)

		report, err := svc.RunBatch(ctx, model.Weekly, week1)

		Convey("Then base weights are used and the record is flagged", func() {
			So(err, ShouldBeNil)
			So(report.Degraded, ShouldEqual, 1)
			So(report.Succeeded, ShouldEqual, 0)
			So(report.Failed, ShouldEqual, 0)
			So(report.Records[0].OverallScore, ShouldEqual, 70)
			So(report.Records[0].Degraded, ShouldBeTrue)
			So(report.Records[0].DegradedReason, ShouldContainSubstring, "role adjustment")
			So(report.Records[0].Percentiles.Overall, ShouldBeNil)
		})
	})
}

func TestService_RunBatchCancelledMidway(t *testing.T) {
	Convey("Given a batch cancelled once the first record is written", t, func() {
		ctx := context.Background()
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		svc := newService(service.WithStore(&cancellingStore{Store: repository.NewMemoryStore(), cancel: cancel}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		ids := make([]string, 20)
		for i := range ids {
			ids[i] = fmt.Sprintf("e%02d", i)
		}
		register(ctx, svc, ids...)
		for i, id := range ids {
			submit(ctx, svc, id, week1, float64(50+i), 60)
		}

		report, err := svc.RunBatch(cctx, model.Weekly, week1)

		Convey("Then every entity is accounted for exactly once", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(report.Succeeded+report.Degraded+report.Failed, ShouldEqual, len(ids))
			So(report.Failed, ShouldEqual, len(ids))
			So(len(report.Failures), ShouldEqual, report.Failed)
			So(report.Records, ShouldNotBeEmpty)

			seen := map[string]bool{}
			for _, f := range report.Failures {
				So(seen[f.EntityID], ShouldBeFalse)
				seen[f.EntityID] = true
				So(f.Reason, ShouldContainSubstring, "context canceled")
			}
		})
	})
}

func TestService_IncompletePopulation(t *testing.T) {
	Convey("Given a store that silently loses one entity's record", t, func() {
		ctx := context.Background()
		svc := newService(service.WithStore(&lossyStore{Store: repository.NewMemoryStore(), drop: "b"}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		register(ctx, svc, "a", "b", "c")
		submit(ctx, svc, "a", week1, 80, 80)
		submit(ctx, svc, "b", week1, 70, 70)
		submit(ctx, svc, "c", week1, 60, 60)

		report, err := svc.RunBatch(ctx, model.Weekly, week1)

		Convey("Then ranking is refused but the rest of the batch completes", func() {
			So(errors.Is(err, model.ErrIncompletePopulation), ShouldBeTrue)
			var ipe *model.IncompletePopulationError
			So(errors.As(err, &ipe), ShouldBeTrue)
			So(ipe.Have, ShouldEqual, 2)
			So(ipe.Expected, ShouldEqual, 3)
			So(report.Ranked, ShouldBeFalse)
		})

		Convey("Then a manual ranking run ranks what is stored", func() {
			ranked, err := svc.RankPeriod(ctx, model.Weekly, week1)
			So(err, ShouldBeNil)
			So(len(ranked), ShouldEqual, 2)
			So(ranked[0].Percentiles, ShouldNotBeNil)
		})
	})
}

func TestService_NoActiveProfile(t *testing.T) {
	Convey("Given a started service without an active profile", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)
		register(ctx, svc, "a")

		report, err := svc.RunBatch(ctx, model.Weekly, week1)

		Convey("Then the batch aborts before computing anything", func() {
			So(errors.Is(err, model.ErrNoActiveProfile), ShouldBeTrue)
			So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
			So(report.Records, ShouldBeEmpty)
			So(report.Failures, ShouldBeEmpty)
		})
	})
}

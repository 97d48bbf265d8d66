package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/scheduler"
	"github.com/okian/pulse/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type call struct {
	tf     model.Timeframe
	period model.Period
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	report  model.BatchReport
	err     error
	panics  bool
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRunner) RunBatch(ctx context.Context, tf model.Timeframe, period model.Period) (model.BatchReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{tf: tf, period: period})
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.panics {
		panic("batch blew up")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return f.report, ctx.Err()
		}
	}
	return f.report, f.err
}

func (f *fakeRunner) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestScheduler(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	Convey("Given a scheduler with a fixed clock", t, func() {
		runner := &fakeRunner{report: model.BatchReport{Succeeded: 3}}
		s := scheduler.New(runner, scheduler.WithClock(clock))

		Convey("Add validates timeframes and cron expressions", func() {
			So(s.Add(scheduler.Schedule{Timeframe: model.Weekly, Spec: "0 2 * * 1"}), ShouldBeNil)
			So(s.Add(scheduler.Schedule{Timeframe: model.Daily, Spec: "@daily"}), ShouldBeNil)

			err := s.Add(scheduler.Schedule{Timeframe: model.Weekly, Spec: "@hourly"})
			So(errors.Is(err, scheduler.ErrDuplicateSchedule), ShouldBeTrue)

			err = s.Add(scheduler.Schedule{Timeframe: model.Monthly, Spec: "every now and then"})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

			err = s.Add(scheduler.Schedule{Timeframe: model.Season, Spec: "@daily"})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

			err = s.Add(scheduler.Schedule{Timeframe: "hourly", Spec: "@daily"})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

			entries := s.Entries()
			So(entries, ShouldHaveLength, 2)
			So(entries, ShouldContainKey, model.Weekly)
			So(entries, ShouldContainKey, model.Daily)
		})

		Convey("RunNow targets the last completed period", func() {
			res, err := s.RunNow(context.Background(), model.Weekly)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, scheduler.StatusOK)
			So(res.Succeeded, ShouldEqual, 3)

			calls := runner.Calls()
			So(calls, ShouldHaveLength, 1)
			So(calls[0].tf, ShouldEqual, model.Weekly)
			So(calls[0].period.Start, ShouldEqual, date("2024-03-11"))
			So(calls[0].period.End, ShouldEqual, date("2024-03-17"))

			_, err = s.RunNow(context.Background(), model.Daily)
			So(err, ShouldBeNil)
			So(runner.Calls()[1].period.Start, ShouldEqual, date("2024-03-19"))

			_, err = s.RunNow(context.Background(), model.Monthly)
			So(err, ShouldBeNil)
			So(runner.Calls()[2].period.Start, ShouldEqual, date("2024-02-01"))
			So(runner.Calls()[2].period.End, ShouldEqual, date("2024-02-29"))

			last := s.LastResults()
			So(last, ShouldHaveLength, 3)
			So(last[model.Weekly].Period.End, ShouldEqual, date("2024-03-17"))
		})

		Convey("Partial and failed runs are reported", func() {
			runner.report = model.BatchReport{Succeeded: 2, Failed: 1}
			res, err := s.RunNow(context.Background(), model.Weekly)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, scheduler.StatusPartial)
			So(res.Failed, ShouldEqual, 1)

			runner.err = model.ErrNoActiveProfile
			res, err = s.RunNow(context.Background(), model.Weekly)
			So(errors.Is(err, model.ErrNoActiveProfile), ShouldBeTrue)
			So(res.Status, ShouldEqual, scheduler.StatusFailed)
			So(res.Error, ShouldContainSubstring, "no active")
			So(s.LastResults()[model.Weekly].Status, ShouldEqual, scheduler.StatusFailed)
		})

		Convey("A panicking run does not block later runs", func() {
			runner.panics = true
			So(func() { _, _ = s.RunNow(context.Background(), model.Weekly) }, ShouldPanic)

			runner.panics = false
			runner.report = model.BatchReport{Succeeded: 1, Degraded: 1}
			res, err := s.RunNow(context.Background(), model.Weekly)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, scheduler.StatusOK)
			So(res.Degraded, ShouldEqual, 1)
			So(runner.Calls(), ShouldHaveLength, 2)
		})

		Convey("Seasons cannot be run", func() {
			res, err := s.RunNow(context.Background(), model.Season)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			So(res.Status, ShouldEqual, scheduler.StatusFailed)
			So(runner.Calls(), ShouldBeEmpty)
		})

		Convey("An overlapping run of the same timeframe is skipped", func() {
			runner.block = make(chan struct{})
			runner.entered = make(chan struct{}, 1)

			done := make(chan scheduler.Result, 1)
			go func() {
				res, _ := s.RunNow(context.Background(), model.Weekly)
				done <- res
			}()
			<-runner.entered

			res, err := s.RunNow(context.Background(), model.Weekly)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, scheduler.StatusSkipped)

			close(runner.block)
			first := <-done
			So(first.Status, ShouldEqual, scheduler.StatusOK)
			So(runner.Calls(), ShouldHaveLength, 1)
		})

		Convey("A run timeout cancels the batch", func() {
			s = scheduler.New(runner, scheduler.WithClock(clock), scheduler.WithRunTimeout(20*time.Millisecond))
			runner.block = make(chan struct{})
			res, err := s.RunNow(context.Background(), model.Daily)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(res.Status, ShouldEqual, scheduler.StatusFailed)
		})

		Convey("Start and Stop are clean", func() {
			So(s.Add(scheduler.Schedule{Timeframe: model.Daily, Spec: "@daily"}), ShouldBeNil)
			s.Start()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			So(s.Stop(ctx), ShouldBeNil)
		})
	})
}

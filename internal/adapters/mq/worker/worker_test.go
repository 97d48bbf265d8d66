package worker_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/pulse/internal/adapters/mq/queue"
	worker "github.com/okian/pulse/internal/adapters/mq/worker"
	logging "github.com/okian/pulse/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, queue.Job) error { return queue.ErrClosed }

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		w := worker.NewInMemoryWorker(q, worker.WithName("test-worker"))
		ctx := context.Background()
		go w.Run(ctx)

		convey.Convey("When jobs succeed, fail and panic", func() {
			var mu sync.Mutex
			results := map[string]error{}
			done := func(id string) func(error) {
				return func(err error) {
					mu.Lock()
					results[id] = err
					mu.Unlock()
				}
			}
			_ = q.Enqueue(ctx, queue.Job{ID: "ok", Run: func(context.Context) error { return nil }, Done: done("ok")})
			_ = q.Enqueue(ctx, queue.Job{ID: "bad", Run: func(context.Context) error { return errors.New("boom") }, Done: done("bad")})
			_ = q.Enqueue(ctx, queue.Job{ID: "panic", Run: func(context.Context) error { panic("kaboom") }, Done: done("panic")})
			_ = q.Close()

			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every job reports back", func() {
				convey.So(results, convey.ShouldHaveLength, 3)
				convey.So(results["ok"], convey.ShouldBeNil)
				convey.So(results["bad"], convey.ShouldNotBeNil)
				convey.So(results["panic"].Error(), convey.ShouldContainSubstring, "panicked")
			})
		})
	})
}

func TestStageBarrier(t *testing.T) {
	convey.Convey("Given a pool and a stage", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pool := worker.NewPool(3, q)
		ctx := context.Background()
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		convey.Convey("When more jobs than queue slots are fanned out", func() {
			stage := worker.NewStage("aggregate", q)
			var finished atomic.Int32
			for i := 0; i < 20; i++ {
				id := string(rune('a' + i))
				err := stage.Go(ctx, id, func(context.Context) error {
					time.Sleep(2 * time.Millisecond)
					finished.Add(1)
					if id == "c" {
						return errors.New("entity c failed")
					}
					return nil
				})
				convey.So(err, convey.ShouldBeNil)
			}
			outcomes := stage.Wait()

			convey.Convey("Then Wait returns only after every job finished", func() {
				convey.So(finished.Load(), convey.ShouldEqual, 20)
				convey.So(outcomes, convey.ShouldHaveLength, 20)
				convey.So(stage.Name(), convey.ShouldEqual, "aggregate")
			})

			convey.Convey("Then failures are attributed to their entity", func() {
				var failed []string
				for _, o := range outcomes {
					if o.Err != nil {
						failed = append(failed, o.EntityID)
					}
				}
				sort.Strings(failed)
				convey.So(failed, convey.ShouldResemble, []string{"c"})
			})
		})

		convey.Convey("When the caller context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			stage := worker.NewStage("trend", q)
			ran := false
			_ = stage.Go(cctx, "x", func(context.Context) error { ran = true; return nil })
			outcomes := stage.Wait()

			convey.Convey("Then the job fails fast without running", func() {
				convey.So(ran, convey.ShouldBeFalse)
				convey.So(outcomes, convey.ShouldHaveLength, 1)
				convey.So(errors.Is(outcomes[0].Err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a queue that refuses work", t, func() {
		stage := worker.NewStage("aggregate", failingQueue{})
		err := stage.Go(context.Background(), "e1", func(context.Context) error { return nil })

		convey.Convey("Then the enqueue error is an outcome and Wait does not hang", func() {
			convey.So(errors.Is(err, queue.ErrClosed), convey.ShouldBeTrue)
			outcomes := stage.Wait()
			convey.So(outcomes, convey.ShouldHaveLength, 1)
			convey.So(outcomes[0].EntityID, convey.ShouldEqual, "e1")
		})
	})
}

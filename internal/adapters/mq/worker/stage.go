package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/mq/queue"
)

// Enqueuer accepts jobs for the pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) error
}

// Outcome is the result of one job of a stage.
type Outcome struct {
	EntityID string
	Err      error
	Elapsed  time.Duration
}

// Stage fans work out to the pool and joins it again. Wait is the barrier:
// it returns only after every job submitted through Go has finished.
type Stage struct {
	name string
	q    Enqueuer

	wg       sync.WaitGroup
	mu       sync.Mutex
	seq      int
	outcomes []Outcome
}

// NewStage creates a stage that submits to q.
func NewStage(name string, q Enqueuer) *Stage {
	return &Stage{name: name, q: q}
}

// Name returns the stage label.
func (s *Stage) Name() string {
	return s.name
}

// Go submits fn for entityID. fn receives ctx rather than the worker's
// context so cancelling the caller cancels the job. When the job cannot be
// enqueued its outcome is recorded with the enqueue error, which is also returned.
func (s *Stage) Go(ctx context.Context, entityID string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.seq++
	id := s.name + "-" + strconv.Itoa(s.seq)
	s.mu.Unlock()

	s.wg.Add(1)
	start := time.Now()
	job := queue.Job{
		ID:       id,
		Stage:    s.name,
		EntityID: entityID,
		Run: func(context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx)
		},
		Done: func(err error) {
			s.record(Outcome{EntityID: entityID, Err: err, Elapsed: time.Since(start)})
		},
	}
	if err := s.q.Enqueue(ctx, job); err != nil {
		s.record(Outcome{EntityID: entityID, Err: err, Elapsed: time.Since(start)})
		return err
	}
	return nil
}

func (s *Stage) record(o Outcome) {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	s.mu.Unlock()
	s.wg.Done()
}

// Wait blocks until every submitted job has finished and returns their outcomes.
func (s *Stage) Wait() []Outcome {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrTaskPanicked wraps a panic recovered from a pool task.
var ErrTaskPanicked = errors.New("task panicked")

// Pool runs indexed tasks on a bounded set of goroutines.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run calls fn for every index in [0, n) and blocks until all of them
// return. Tasks get a context that is never cancelled, so every index runs
// even after the caller's context is done. The returned slice holds each
// task's error by index. onDone, when set, is called once per index under a
// mutex.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error, onDone func(i int, err error)) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	workerCount := p.workers
	if workerCount > n {
		workerCount = n
	}

	taskCtx := context.WithoutCancel(ctx)
	jobChan := make(chan int)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	finish := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs[i] = err
		if onDone != nil {
			onDone(i, err)
		}
	}

	// Start workers
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				finish(i, runTask(taskCtx, i, fn))
			}
		}()
	}

	// Enqueue jobs
	for i := 0; i < n; i++ {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()

	return errs
}

func runTask(ctx context.Context, i int, fn func(ctx context.Context, i int) error) (err error) {
	metrics.PoolTasksInFlight.Inc()
	defer metrics.PoolTasksInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrTaskPanicked, r))
			log.Error().Stack().Err(err).Int("task", i).Msg("pool task panicked")
		}
	}()

	return fn(ctx, i)
}

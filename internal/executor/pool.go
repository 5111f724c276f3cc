package executor

import (
	"context"
	"sync"

	"github.com/arbx-trading/arbx/internal/domain"
)

// defaultWorkers is the pool size for leg placement. Two legs per pair plus
// headroom for concurrent square-offs.
const defaultWorkers = 4

// legTask is one unit of latency-bound placement work.
type legTask struct {
	ctx context.Context
	run func(ctx context.Context) domain.LegResult
	out chan domain.LegResult
}

// Pool executes leg placements on a fixed set of workers so the blocking
// network-and-poll protocol never stalls the engine's consumer loop. Both
// legs of a pair are submitted to the pool and awaited jointly.
type Pool struct {
	tasks chan legTask
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewPool starts a pool with the given number of workers; values below one
// fall back to the default.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = defaultWorkers
	}
	p := &Pool{
		tasks: make(chan legTask),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.out <- t.run(t.ctx)
	}
}

// Submit schedules fn on the pool and returns a channel that yields exactly
// one result. The caller's context is passed through to fn unchanged; the
// pool itself never cancels running work.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) domain.LegResult) <-chan domain.LegResult {
	out := make(chan domain.LegResult, 1)
	p.tasks <- legTask{ctx: ctx, run: fn, out: out}
	return out
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

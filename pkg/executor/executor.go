package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
	"github.com/harunnryd/jarvis/pkg/skill"
)

var (
	// ErrRejected resolves the Future of an invocation pushed out of a full
	// backlog.
	ErrRejected = errorsx.New(errorsx.ReasonExecutorBusy, "executor backlog full")
	// ErrClosed is returned for submissions after Drain started.
	ErrClosed = errors.New("executor closed")
)

const (
	DefaultWorkers = 3
	DefaultBacklog = 8
)

// Invocation is one unit of Skill work.
type Invocation struct {
	ID   string
	Name string
	Run  func(ctx context.Context) skill.Result
}

type Options struct {
	Workers int
	Backlog int
	// OnReject is called, off the submitting goroutine's lock, for every
	// invocation dropped from a full backlog.
	OnReject func(Invocation)
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Future resolves once its invocation ran or was rejected.
type Future struct {
	done   chan struct{}
	result skill.Result
	err    error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(res skill.Result, err error) {
	f.result = res
	f.err = err
	close(f.done)
}

func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the invocation finished or ctx ended. Abandoning a
// Future does not cancel its work.
func (f *Future) Wait(ctx context.Context) (skill.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return skill.Result{}, ctx.Err()
	}
}

type task struct {
	inv    Invocation
	future *Future
}

// Executor runs invocations on a fixed pool of workers so the dispatch loop
// never waits on a Skill.
type Executor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []task
	busy    int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "executor"),
		ctx:    ctx,
		cancel: cancel,
	}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Submit queues inv and returns immediately. When the backlog is full the
// oldest waiting invocation is rejected to make room.
func (e *Executor) Submit(inv Invocation) *Future {
	f := newFuture()
	if inv.Run == nil {
		f.resolve(skill.Result{}, errors.New("executor: invocation has no Run"))
		return f
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.resolve(skill.Result{}, ErrClosed)
		return f
	}
	var rejected *task
	if len(e.backlog) >= e.opts.Backlog {
		oldest := e.backlog[0]
		e.backlog[0] = task{}
		e.backlog = e.backlog[1:]
		rejected = &oldest
	}
	e.backlog = append(e.backlog, task{inv: inv, future: f})
	busy, depth := e.busy, len(e.backlog)
	e.cond.Signal()
	e.mu.Unlock()

	e.opts.Metrics.Executor(busy, depth)
	if rejected != nil {
		e.reject(*rejected)
	}
	return f
}

func (e *Executor) reject(t task) {
	e.opts.Metrics.ExecutorRejectedInc()
	e.logger.Warn("executor_backlog_full", "rejected_id", t.inv.ID, "rejected", t.inv.Name)
	t.future.resolve(skill.Result{}, ErrRejected)
	if e.opts.OnReject != nil {
		e.opts.OnReject(t.inv)
	}
}

// Stats returns the number of running and waiting invocations.
func (e *Executor) Stats() (busy, backlog int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy, len(e.backlog)
}

// Drain stops intake and waits for running and queued work.
func (e *Executor) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.backlog) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.backlog) == 0 {
			e.mu.Unlock()
			return
		}
		t := e.backlog[0]
		e.backlog[0] = task{}
		e.backlog = e.backlog[1:]
		e.busy++
		busy, depth := e.busy, len(e.backlog)
		e.mu.Unlock()
		e.opts.Metrics.Executor(busy, depth)

		res, err := e.exec(t.inv)
		t.future.resolve(res, err)

		e.mu.Lock()
		e.busy--
		busy, depth = e.busy, len(e.backlog)
		e.mu.Unlock()
		e.opts.Metrics.Executor(busy, depth)
	}
}

func (e *Executor) exec(inv Invocation) (res skill.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("executor_invocation_panic", "id", inv.ID, "name", inv.Name, "panic", rec)
			err = errorsx.Wrap(fmt.Errorf("invocation %s panicked: %v", inv.Name, rec), errorsx.ReasonSkillPanic)
		}
	}()
	return inv.Run(e.ctx), nil
}

package watchdog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 5 * time.Second
)

type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type entry struct {
	last    atomic.Int64
	stalled atomic.Bool
}

// Watchdog reports components whose heartbeat went quiet. It only logs; it
// never restarts anything.
type Watchdog struct {
	opts       Options
	logger     *slog.Logger
	components sync.Map
}

func New(opts Options) *Watchdog {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watchdog{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "watchdog"),
	}
}

// Touch records a heartbeat for name. It takes no lock on the hot path.
func (w *Watchdog) Touch(name string) {
	now := w.opts.Now().UnixNano()
	if v, ok := w.components.Load(name); ok {
		v.(*entry).last.Store(now)
		return
	}
	e := &entry{}
	e.last.Store(now)
	if v, loaded := w.components.LoadOrStore(name, e); loaded {
		v.(*entry).last.Store(now)
	}
}

// Heartbeat returns a Touch bound to name.
func (w *Watchdog) Heartbeat(name string) func() {
	w.Touch(name)
	v, _ := w.components.Load(name)
	e := v.(*entry)
	return func() { e.last.Store(w.opts.Now().UnixNano()) }
}

// Run checks every Interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check runs one pass and returns the names that are currently stalled.
func (w *Watchdog) Check() []string {
	now := w.opts.Now()
	var stalled []string
	w.components.Range(func(key, value any) bool {
		name := key.(string)
		e := value.(*entry)
		age := now.Sub(time.Unix(0, e.last.Load()))
		w.opts.Metrics.Heartbeat(name, age)

		if age > w.opts.Timeout {
			stalled = append(stalled, name)
			if e.stalled.CompareAndSwap(false, true) {
				w.opts.Metrics.WatchdogAlert(name)
				w.logger.Error("watchdog_stall_detected",
					"target", name,
					"age_ms", age.Milliseconds(),
					"timeout_ms", w.opts.Timeout.Milliseconds())
			}
			return true
		}
		if e.stalled.CompareAndSwap(true, false) {
			w.logger.Info("watchdog_component_recovered", "target", name)
		}
		return true
	})
	sort.Strings(stalled)
	return stalled
}

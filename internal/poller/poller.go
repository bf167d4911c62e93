package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 60 * time.Second

// State is the poller's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StatePersisting
	StateForwarding
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StatePersisting:
		return "persisting"
	case StateForwarding:
		return "forwarding"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Cycle is the unit of work driven by the poller.
type Cycle interface {
	Collect(ctx context.Context) (solar.Reading, error)
	Persist(ctx context.Context, r solar.Reading) error
	HasForwarders() bool
	// Forward never fails the cycle; implementations log their own errors.
	Forward(ctx context.Context, r solar.Reading)
}

// Status is a snapshot of the poll loop for health reporting.
type Status struct {
	State       string     `json:"state"`
	Running     bool       `json:"running"`
	Cycles      uint64     `json:"cycles"`
	Failures    uint64     `json:"failures"`
	LastSuccess *time.Time `json:"lastSuccess"`
}

// Poller runs one cycle at a time and sleeps a fixed interval after each,
// whatever the outcome. Nothing raised inside a cycle stops the loop.
type Poller struct {
	cycle        Cycle
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *zap.Logger

	state   atomic.Int32
	started atomic.Bool
	running atomic.Bool
	done    chan struct{}

	mu          sync.Mutex
	cycles      uint64
	failures    uint64
	lastSuccess time.Time
}

// New creates a Poller. A non-positive interval falls back to DefaultInterval.
// cycleTimeout bounds a single cycle; zero leaves it unbounded.
func New(cycle Cycle, interval, cycleTimeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cycle:        cycle,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start runs the loop in its own goroutine until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	if !p.claim() {
		return
	}
	go p.loop(ctx)
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Run blocks, cycling until ctx is cancelled. A Poller loops at most once:
// Run after Start, or a second Run, returns immediately.
func (p *Poller) Run(ctx context.Context) {
	if !p.claim() {
		return
	}
	p.loop(ctx)
}

func (p *Poller) claim() bool {
	if !p.started.CompareAndSwap(false, true) {
		p.logger.Warn("poller already started")
		return false
	}
	p.running.Store(true)
	return true
}

func (p *Poller) loop(ctx context.Context) {
	defer func() {
		p.running.Store(false)
		p.setState(StateStopped)
		close(p.done)
	}()

	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	for {
		_ = p.RunOnce(ctx)

		p.setState(StateSleeping)
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poller stopped")
			return
		case <-timer.C:
		}
		p.setState(StateIdle)
	}
}

// RunOnce executes a single supervised cycle and returns its outcome. Panics
// are recovered as *solar.RuntimeFault.
func (p *Poller) RunOnce(ctx context.Context) error {
	log := p.logger.With(zap.String("cycle_id", uuid.NewString()))

	if p.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cycleTimeout)
		defer cancel()
	}

	started := time.Now()
	err := solar.Guard(func() error { return p.runCycle(ctx, log) })

	p.mu.Lock()
	p.cycles++
	if err != nil {
		p.failures++
	} else {
		p.lastSuccess = time.Now().UTC()
	}
	p.mu.Unlock()

	if err != nil {
		var fault *solar.RuntimeFault
		if errors.As(err, &fault) {
			log.Error("cycle aborted by runtime fault", zap.Error(err), zap.ByteString("stack", fault.Stack))
		} else {
			log.Error("cycle failed", zap.Error(err))
		}
		return err
	}

	log.Info("cycle completed", zap.Duration("took", time.Since(started)))
	return nil
}

func (p *Poller) runCycle(ctx context.Context, log *zap.Logger) error {
	p.setState(StateFetching)
	reading, err := p.cycle.Collect(ctx)
	if err != nil {
		return err
	}

	p.setState(StatePersisting)
	if err := p.cycle.Persist(ctx, reading); err != nil {
		return err
	}
	log.Debug("reading persisted", zap.Time("observed_at", reading.ObservedAt))

	if p.cycle.HasForwarders() {
		p.setState(StateForwarding)
		// The reading is committed; a forwarding fault is logged and the cycle still succeeds.
		ferr := solar.Guard(func() error {
			p.cycle.Forward(ctx, reading)
			return nil
		})
		if ferr != nil {
			log.Error("forwarding aborted by runtime fault", zap.Error(ferr))
		}
	}
	return nil
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

// State reports the current position in the cycle.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Healthy reports whether the loop is still alive.
func (p *Poller) Healthy() bool {
	return p.running.Load()
}

// Status snapshots the loop state and cycle counters.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:    p.State().String(),
		Running:  p.Healthy(),
		Cycles:   p.cycles,
		Failures: p.failures,
	}
	if !p.lastSuccess.IsZero() {
		t := p.lastSuccess
		st.LastSuccess = &t
	}
	return st
}

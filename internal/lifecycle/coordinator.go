package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds the coordinator tuning knobs.
type Config struct {
	// SettleDelay coalesces near-simultaneous fetch completions before the
	// coordinator reports Idle. A debounce, not a correctness requirement.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// State of the coordinator as a whole.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// RunToken is the cancellation handle shared by every fetch of one triggered
// analysis run. It is cancelled when a newer run supersedes it or when the
// run is aborted.
type RunToken struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *RunToken) ID() uuid.UUID { return t.id }

// Context is cancelled together with the token; fetches pass it to their
// query executions so in-flight I/O is torn down on supersession.
func (t *RunToken) Context() context.Context { return t.ctx }

func (t *RunToken) Done() <-chan struct{} { return t.ctx.Done() }

// Coordinator gates when metric fetches may start, counts the ones in
// flight, and guarantees that triggering a new run supersedes all work of
// the previous one: last trigger wins, never last to complete.
//
// The zero value is not usable; use NewCoordinator. All methods are safe for
// concurrent use.
type Coordinator struct {
	mu          sync.Mutex
	state       State
	current     *RunToken
	active      int
	settleDelay time.Duration
	settleTimer *time.Timer
}

func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{settleDelay: cfg.SettleDelay}
}

// TriggerRun cancels the current token, if any, before issuing a fresh one,
// so every still-pending fetch of the previous run observes cancellation
// before any fetch of the new run starts. The active counter restarts at
// zero; stale fetch registrations no longer touch it.
func (c *Coordinator) TriggerRun(ctx context.Context) *RunToken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.cancel()
	}
	c.stopSettleLocked()

	tctx, cancel := context.WithCancel(ctx)
	c.current = &RunToken{id: uuid.New(), ctx: tctx, cancel: cancel}
	c.state = Running
	c.active = 0
	return c.current
}

// Abort cancels the current run without starting a new one.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.stopSettleLocked()
	c.state = Idle
	c.active = 0
}

// RegisterFetchStart counts a fetch in under token. It reports false for a
// stale or cancelled token; the caller must then treat its fetch as already
// cancelled and must not mutate shared state on completion.
func (c *Coordinator) RegisterFetchStart(token *RunToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == nil || token != c.current || token.ctx.Err() != nil {
		return false
	}
	c.stopSettleLocked()
	c.active++
	return true
}

// RegisterFetchEnd counts a fetch out, regardless of whether it settled with
// a result or an error, so one failing widget cannot stall the run. Ends
// reported under a superseded token are ignored: the trigger already reset
// the counter.
func (c *Coordinator) RegisterFetchEnd(token *RunToken) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == nil || token != c.current {
		return
	}
	if c.active > 0 {
		c.active--
	}
	if c.active == 0 {
		c.scheduleSettleLocked(token)
	}
}

// IsCancelled reports whether fetches under token must stop. Checked by
// long-running fetches at await points and, decisively, immediately before
// committing a result.
func (c *Coordinator) IsCancelled(token *RunToken) bool {
	if token == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return token != c.current || token.ctx.Err() != nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// scheduleSettleLocked transitions to Idle once the counter has stayed at
// zero for the settle delay. With a zero delay the transition is immediate.
func (c *Coordinator) scheduleSettleLocked(token *RunToken) {
	if c.settleDelay <= 0 {
		c.state = Idle
		return
	}
	c.stopSettleLocked()
	c.settleTimer = time.AfterFunc(c.settleDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current == token && c.active == 0 && c.state == Running {
			c.state = Idle
		}
	})
}

func (c *Coordinator) stopSettleLocked() {
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

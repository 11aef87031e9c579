// Package scan coalesces barcode scanner and search keystrokes into single
// lookups, drops accidental double reads and cancels superseded lookups.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/obs"
)

var controllerNopLogger = zerolog.Nop()

// Default timing for the scanner path.
const (
	DefaultDebounce    = 100 * time.Millisecond
	DefaultDedupWindow = 200 * time.Millisecond
)

// DefaultCriticalFields are inputs whose focus suspends scanning.
var DefaultCriticalFields = []string{"price", "discount"}

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Status is the outcome of a scan.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusFailed
	StatusDuplicate
	StatusIgnored
	StatusSuperseded
	StatusEmpty
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	case StatusDuplicate:
		return "duplicate"
	case StatusIgnored:
		return "ignored"
	case StatusSuperseded:
		return "superseded"
	case StatusEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// LookupFunc resolves a normalised code into a value.
type LookupFunc[T any] func(ctx context.Context, code string) (T, error)

// Result is delivered for every scan that reaches a terminal outcome.
type Result[T any] struct {
	Status  Status
	Code    string
	Value   T
	Err     error
	Message string
}

// Options tunes a Controller.
type Options struct {
	// Debounce is the quiet period after the last keystroke before a lookup.
	Debounce time.Duration
	// DedupWindow drops a code identical to the previously dispatched one
	// when it arrives within the window. Zero disables dedup.
	DedupWindow time.Duration
	// CriticalFields suspend scanning while any of them holds focus.
	CriticalFields []string
	// Normalize is applied to trimmed input before dedup and lookup.
	Normalize func(string) string
	// NotFound classifies lookup errors that mean "no match".
	NotFound func(error) bool
	// Name labels metrics and logs, e.g. "barcode" or "search".
	Name string
	// BaseContext parents lookups started from the keystroke path.
	BaseContext context.Context
	Clock       Clock
	Logger      *zerolog.Logger
}

// Controller implements the Idle -> Debouncing -> InFlight state machine.
// It is safe for concurrent use.
type Controller[T any] struct {
	lookup   LookupFunc[T]
	opts     Options
	onResult func(Result[T])
	critical map[string]struct{}

	mu       sync.Mutex
	state    State
	pending  string
	timer    Timer
	timerSeq uint64
	cancel   context.CancelFunc
	gen      uint64
	lastCode string
	lastAt   time.Time
	hasLast  bool
	focused  map[string]struct{}
}

// New constructs a controller. onResult receives outcomes of the debounced
// keystroke path and may be nil.
func New[T any](lookup LookupFunc[T], opts Options, onResult func(Result[T])) *Controller[T] {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Normalize == nil {
		opts.Normalize = func(s string) string { return s }
	}
	if opts.NotFound == nil {
		opts.NotFound = func(error) bool { return false }
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = &controllerNopLogger
	}
	if opts.Name == "" {
		opts.Name = "scan"
	}
	critical := make(map[string]struct{}, len(opts.CriticalFields))
	for _, f := range opts.CriticalFields {
		critical[f] = struct{}{}
	}
	return &Controller[T]{
		lookup:   lookup,
		opts:     opts,
		onResult: onResult,
		critical: critical,
		focused:  map[string]struct{}{},
	}
}

// State returns the current state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the input collected but not yet dispatched.
func (c *Controller[T]) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Input records a keystroke-level change of the input value and restarts the
// debounce window. An in-flight lookup is cancelled first. It reports false
// when the input was discarded because a critical field holds focus.
func (c *Controller[T]) Input(raw string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guardedLocked() {
		c.resetPendingLocked()
		return false
	}
	c.cancelInFlightLocked()
	c.stopTimerLocked()
	c.pending = raw
	c.state = StateDebouncing
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.opts.Clock.AfterFunc(c.opts.Debounce, func() { c.fire(seq) })
	return true
}

func (c *Controller[T]) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || c.state != StateDebouncing {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	code := c.prepare(c.pending)
	c.pending = ""
	if code == "" {
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	if c.duplicateLocked(code) {
		c.state = StateIdle
		c.mu.Unlock()
		c.deliver(Result[T]{Status: StatusDuplicate, Code: code})
		return
	}
	ctx, cancel := context.WithCancel(c.opts.BaseContext)
	gen := c.startLocked(code, cancel)
	c.mu.Unlock()

	go func() {
		defer cancel()
		v, err := c.lookup(ctx, code)
		if res, current := c.finish(gen, code, v, err); current {
			c.deliver(res)
		}
	}()
}

// Submit dispatches raw immediately, bypassing the debounce window, e.g. when
// the scanner sends its terminating Enter. Guard, normalisation, dedup and
// supersede rules apply exactly as on the keystroke path.
func (c *Controller[T]) Submit(ctx context.Context, raw string) Result[T] {
	c.mu.Lock()
	if c.guardedLocked() {
		c.resetPendingLocked()
		c.mu.Unlock()
		return c.observe(Result[T]{Status: StatusIgnored})
	}
	code := c.prepare(raw)
	if code == "" {
		c.mu.Unlock()
		return c.observe(Result[T]{Status: StatusEmpty})
	}
	if c.duplicateLocked(code) {
		c.mu.Unlock()
		return c.observe(Result[T]{Status: StatusDuplicate, Code: code})
	}
	c.stopTimerLocked()
	c.pending = ""
	c.cancelInFlightLocked()
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := c.startLocked(code, cancel)
	c.mu.Unlock()

	v, err := c.lookup(callCtx, code)
	res, _ := c.finish(gen, code, v, err)
	return c.observe(res)
}

// Cancel aborts any pending debounce or in-flight lookup and returns to Idle.
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.pending = ""
	c.cancelInFlightLocked()
	c.state = StateIdle
}

// Focus marks an input field as focused. Focusing a critical field clears
// any collected scan input.
func (c *Controller[T]) Focus(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused[field] = struct{}{}
	if _, ok := c.critical[field]; ok {
		c.resetPendingLocked()
	}
}

// Blur marks an input field as no longer focused.
func (c *Controller[T]) Blur(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.focused, field)
}

// Guarded reports whether scanning is currently suspended.
func (c *Controller[T]) Guarded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guardedLocked()
}

func (c *Controller[T]) guardedLocked() bool {
	for f := range c.focused {
		if _, ok := c.critical[f]; ok {
			return true
		}
	}
	return false
}

func (c *Controller[T]) resetPendingLocked() {
	c.stopTimerLocked()
	c.pending = ""
	if c.state == StateDebouncing {
		c.state = StateIdle
	}
}

func (c *Controller[T]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Controller[T]) cancelInFlightLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.gen++
	c.state = StateIdle
	c.opts.Logger.Debug().Str("controller", c.opts.Name).Msg("scan_superseded")
}

func (c *Controller[T]) startLocked(code string, cancel context.CancelFunc) uint64 {
	c.gen++
	c.state = StateInFlight
	c.cancel = cancel
	c.lastCode = code
	c.lastAt = c.opts.Clock.Now()
	c.hasLast = true
	return c.gen
}

func (c *Controller[T]) duplicateLocked(code string) bool {
	if c.opts.DedupWindow <= 0 || !c.hasLast || code != c.lastCode {
		return false
	}
	return c.opts.Clock.Now().Sub(c.lastAt) < c.opts.DedupWindow
}

func (c *Controller[T]) prepare(raw string) string {
	return c.opts.Normalize(strings.TrimSpace(raw))
}

// finish settles a lookup. It reports false when a newer scan superseded it.
func (c *Controller[T]) finish(gen uint64, code string, v T, err error) (Result[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return Result[T]{Status: StatusSuperseded, Code: code}, false
	}
	c.state = StateIdle
	c.cancel = nil
	c.pending = ""
	switch {
	case err == nil:
		return Result[T]{Status: StatusFound, Code: code, Value: v}, true
	case c.opts.NotFound(err):
		return Result[T]{Status: StatusNotFound, Code: code, Err: err, Message: fmt.Sprintf("No match for %q", code)}, true
	case errors.Is(err, context.Canceled):
		return Result[T]{Status: StatusSuperseded, Code: code, Err: err}, true
	default:
		c.opts.Logger.Warn().Err(err).Str("controller", c.opts.Name).Str("code", code).Msg("scan_lookup_failed")
		return Result[T]{Status: StatusFailed, Code: code, Err: err, Message: "Lookup failed, please try again"}, true
	}
}

func (c *Controller[T]) deliver(res Result[T]) {
	c.observe(res)
	if c.onResult != nil {
		c.onResult(res)
	}
}

func (c *Controller[T]) observe(res Result[T]) Result[T] {
	obs.ObserveScan(c.opts.Name, res.Status.String())
	return res
}

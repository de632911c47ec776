// Package breaker implements a per-target circuit breaker with per-call
// timeouts, failure-ratio tracking, and fallback substitution.
//
// State machine:
//   - closed: operations execute; a timeout or error counts as a failure.
//     Outcomes are tracked in a bounded ring of the most recent WindowSize
//     calls; once the window holds MinimumCalls outcomes and its failure
//     ratio exceeds FailureRatio, the circuit opens. Old successes age out
//     of the ring, so a dependency that degrades after a long healthy run
//     still opens promptly.
//   - open: operations are not executed; the fallback result is returned
//     immediately. After ResetInterval the next call becomes the half-open
//     probe instead of retrying at full volume.
//   - half-open: exactly one trial call runs; success closes the circuit and
//     resets the window, failure reopens it.
//
// Timeouts are indistinguishable from thrown errors for accounting purposes,
// but are additionally counted separately for operational visibility.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// State enumerates circuit states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in status payloads.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned when the circuit is open and no fallback is
// available.
var ErrCircuitOpen = errors.New("circuit open")

// ErrTimeout is the failure recorded when an operation exceeds its per-call
// timeout.
var ErrTimeout = errors.New("operation timed out")

var breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "circuit_breaker_state",
	Help: "Current circuit state per target (0=closed, 1=open, 2=half-open)",
}, []string{"target"})

func init() {
	prometheus.MustRegister(breakerState)
}

// Operation is the guarded downstream call. It must honor ctx cancellation;
// the breaker additionally enforces the timeout even for operations that
// ignore it.
type Operation func(ctx context.Context) (any, error)

// Fallback produces a substitute result when the operation cannot run or
// failed. The causing error is passed for logging or cache-key decisions.
type Fallback func(ctx context.Context, cause error) (any, error)

// defaultWindowSize bounds the outcome ring when Options leaves it unset.
const defaultWindowSize = 100

// Options configures a single breaker.
type Options struct {
	Timeout       time.Duration // per-call deadline
	FailureRatio  float64       // open when window failures/calls exceeds this
	MinimumCalls  int           // window volume before the ratio applies
	ResetInterval time.Duration // open → half-open cooldown
	WindowSize    int           // recent outcomes considered; 0 means the default
}

// Snapshot is a read-only view of a breaker's state and counters, exposed by
// the circuit status endpoint.
type Snapshot struct {
	State     string `json:"state"`
	Failures  uint64 `json:"failures"`
	Successes uint64 `json:"successes"`
	Fallbacks uint64 `json:"fallbacks"`
	Timeouts  uint64 `json:"timeouts"`
}

// Breaker guards a single named target. Safe for concurrent use; all state
// transitions happen under one mutex, while the guarded operation itself runs
// outside it.
type Breaker struct {
	name string
	opts Options

	mu      sync.Mutex
	state   State
	probing bool // a half-open trial is in flight

	// ring of the most recent outcomes; true marks a failure
	window      []bool
	windowIdx   int
	windowCount int
	windowFails int

	// cumulative counters
	failures  uint64
	successes uint64
	fallbacks uint64
	timeouts  uint64

	openedAt time.Time
}

// New constructs a closed Breaker for target name.
func New(name string, opts Options) *Breaker {
	size := opts.WindowSize
	if size <= 0 {
		size = defaultWindowSize
	}
	b := &Breaker{name: name, opts: opts, window: make([]bool, size)}
	breakerState.WithLabelValues(name).Set(0)
	return b
}

// Name returns the target name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Do runs op under the circuit's policy. The boolean reports whether the
// returned value came from the fallback (degraded) rather than the
// operation. When the circuit rejects the call and no fallback is given,
// Do returns ErrCircuitOpen.
func (b *Breaker) Do(ctx context.Context, op Operation, fallback Fallback) (any, bool, error) {
	if !b.allow() {
		b.countFallback()
		if fallback == nil {
			return nil, true, ErrCircuitOpen
		}
		v, err := fallback(ctx, ErrCircuitOpen)
		return v, true, err
	}

	v, err := b.execute(ctx, op)
	if err == nil {
		b.onSuccess()
		return v, false, nil
	}

	b.onFailure(err)
	b.countFallback()
	if fallback == nil {
		return nil, true, err
	}
	fv, ferr := fallback(ctx, err)
	return fv, true, ferr
}

// execute runs op with the per-call timeout enforced even when op ignores
// its context: the call is raced against the deadline in a goroutine.
func (b *Breaker) execute(ctx context.Context, op Operation) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := op(cctx)
		ch <- outcome{v, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return out.v, out.err
	case <-cctx.Done():
		return nil, ErrTimeout
	}
}

// allow decides whether a call may execute and performs open → half-open
// transitions. The returned true either means the circuit is closed or that
// this call is the single half-open probe.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) < b.opts.ResetInterval {
			return false
		}
		b.setStateLocked(StateHalfOpen)
		b.probing = true
		return true
	default: // StateHalfOpen
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// onSuccess records a successful call: a half-open probe closes the circuit
// and resets the window; a closed call only bumps counters.
func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.resetWindowLocked()
		b.setStateLocked(StateClosed)
		log.Info().Str("target", b.name).Msg("circuit closed after successful probe")
	case StateClosed:
		b.recordLocked(false)
	}
}

// onFailure records a failed call: a failed probe reopens the circuit; in
// the closed state the window is checked against the open condition.
func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if errors.Is(err, ErrTimeout) {
		b.timeouts++
	}

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.openedAt = time.Now()
		b.setStateLocked(StateOpen)
		log.Warn().Str("target", b.name).Msg("circuit reopened after failed probe")
	case StateClosed:
		b.recordLocked(true)
		if b.windowCount >= b.opts.MinimumCalls {
			ratio := float64(b.windowFails) / float64(b.windowCount)
			if ratio > b.opts.FailureRatio {
				b.openedAt = time.Now()
				b.setStateLocked(StateOpen)
				log.Warn().
					Str("target", b.name).
					Float64("failure_ratio", ratio).
					Int("calls", b.windowCount).
					Msg("circuit opened")
			}
		}
	}
}

// recordLocked appends one outcome to the ring, evicting the oldest entry
// once the ring is full. Callers hold mu.
func (b *Breaker) recordLocked(failure bool) {
	if b.windowCount == len(b.window) {
		if b.window[b.windowIdx] {
			b.windowFails--
		}
	} else {
		b.windowCount++
	}
	b.window[b.windowIdx] = failure
	if failure {
		b.windowFails++
	}
	b.windowIdx = (b.windowIdx + 1) % len(b.window)
}

// resetWindowLocked discards all tracked outcomes. Callers hold mu.
func (b *Breaker) resetWindowLocked() {
	b.windowIdx = 0
	b.windowCount = 0
	b.windowFails = 0
}

func (b *Breaker) countFallback() {
	b.mu.Lock()
	b.fallbacks++
	b.mu.Unlock()
}

// setStateLocked transitions state and mirrors it to the metrics gauge.
// Callers hold mu.
func (b *Breaker) setStateLocked(s State) {
	b.state = s
	breakerState.WithLabelValues(b.name).Set(float64(s))
}

// StateNow returns the current state.
func (b *Breaker) StateNow() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a point-in-time view of counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:     b.state.String(),
		Failures:  b.failures,
		Successes: b.successes,
		Fallbacks: b.fallbacks,
		Timeouts:  b.timeouts,
	}
}

// ForceOpen trips the circuit immediately. Intended for operational use and
// failure-path testing.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openedAt = time.Now()
	b.setStateLocked(StateOpen)
}

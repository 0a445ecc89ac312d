// Package focus runs focus sessions: a countdown for one task that keeps
// notifications suppressed while it is open.
package focus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultMinutes is the default focus session length.
	DefaultMinutes = 25
	// DefaultBreakMinutes is the suggested break after a completed session.
	DefaultBreakMinutes = 5
)

// State is the timer's position in its lifecycle
type State int

const (
	Running State = iota
	Paused
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled
}

// TimerCallbacks are invoked outside the timer lock, each at most once.
type TimerCallbacks struct {
	// OnComplete receives the configured duration in minutes.
	OnComplete func(minutes int)
	// OnCancel fires after the tick schedule has been stopped.
	OnCancel func()
}

// Timer is a pausable countdown. Every state change bumps a generation
// number; a tick only counts if it carries the current generation, so a
// tick scheduled before a pause can never land after the resume.
type Timer struct {
	mu        sync.Mutex
	minutes   int
	total     int
	remaining int
	state     State
	gen       uint64
	callbacks TimerCallbacks
	changed   chan struct{}
}

// NewTimer creates a running timer of the given length in minutes.
func NewTimer(minutes int, callbacks TimerCallbacks) *Timer {
	if minutes <= 0 {
		minutes = DefaultMinutes
	}
	total := minutes * 60
	return &Timer{
		minutes:   minutes,
		total:     total,
		remaining: total,
		state:     Running,
		callbacks: callbacks,
		changed:   make(chan struct{}, 1),
	}
}

// Minutes returns the configured duration.
func (t *Timer) Minutes() int {
	return t.minutes
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the whole seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Generation returns the tag a tick must carry to be counted.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Progress returns the fraction of time left, from 1 down to 0.
func (t *Timer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.remaining) / float64(t.total)
}

// String renders the remaining time as MM:SS.
func (t *Timer) String() string {
	return FormatClock(t.Remaining())
}

// FormatClock renders seconds as zero padded MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (t *Timer) signal() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

// Tick advances the countdown by one second if the timer is running and gen
// is current. It reports whether the tick was counted.
func (t *Timer) Tick(gen uint64) bool {
	t.mu.Lock()
	if t.state != Running || gen != t.gen {
		t.mu.Unlock()
		return false
	}
	t.remaining--
	if t.remaining > 0 {
		t.mu.Unlock()
		return true
	}
	t.state = Completed
	t.gen++
	onComplete := t.callbacks.OnComplete
	minutes := t.minutes
	t.mu.Unlock()

	t.signal()
	if onComplete != nil {
		onComplete(minutes)
	}
	return true
}

func (t *Timer) transition(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	t.gen++
	return true
}

// Pause stops the countdown. It reports whether the timer was running.
func (t *Timer) Pause() bool {
	ok := t.transition(Running, Paused)
	if ok {
		t.signal()
	}
	return ok
}

// Resume continues a paused countdown from the exact remaining value.
func (t *Timer) Resume() bool {
	ok := t.transition(Paused, Running)
	if ok {
		t.signal()
	}
	return ok
}

// TogglePause pauses a running timer or resumes a paused one.
func (t *Timer) TogglePause() State {
	if t.Pause() {
		return Paused
	}
	t.Resume()
	return t.State()
}

// Stop cancels a running or paused timer. The schedule is invalidated before
// OnCancel fires. It reports whether the timer was stopped by this call.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = Cancelled
	t.gen++
	onCancel := t.callbacks.OnCancel
	t.mu.Unlock()

	t.signal()
	if onCancel != nil {
		onCancel()
	}
	return true
}

// Ticker is the subset of time.Ticker the driver uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests supply a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the wall clock.
type SystemClock struct{}

type systemTicker struct{ *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.Ticker.C }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

// Run drives the timer with a one second ticker until it reaches a terminal
// state or ctx is done. The ticker is stopped while paused and a fresh one is
// started on resume. Run returns the state it observed last.
func (t *Timer) Run(ctx context.Context, clock Clock) State {
	for {
		t.mu.Lock()
		state, gen := t.state, t.gen
		t.mu.Unlock()

		if state.Terminal() {
			return state
		}

		if state == Paused {
			select {
			case <-ctx.Done():
				return t.State()
			case <-t.changed:
				continue
			}
		}

		ticker := clock.NewTicker(time.Second)
	running:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return t.State()
			case <-t.changed:
				break running
			case <-ticker.C():
				if !t.Tick(gen) {
					break running
				}
			}
		}
		ticker.Stop()
	}
}

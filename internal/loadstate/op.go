// Package loadstate tracks one user-triggered load as an explicit
// Idle -> Loading -> Succeeded|Failed state machine.
package loadstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	Idle Status = iota
	Loading
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{Idle, Loading, Succeeded, Failed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// State is a point-in-time copy of an Op.
type State[T any] struct {
	Status    Status
	Value     T
	HasValue  bool
	Err       error
	Attempt   string
	UpdatedAt time.Time
}

// Op holds the state for one trigger. At most one attempt runs at a time.
type Op[T any] struct {
	mu       sync.Mutex
	state    State[T]
	onChange []func(State[T])
}

// OnChange registers fn to run after every transition, outside the lock.
func (o *Op[T]) OnChange(fn func(State[T])) {
	o.mu.Lock()
	o.onChange = append(o.onChange, fn)
	o.mu.Unlock()
}

// Begin moves to Loading and returns the attempt ID. It refuses while an
// attempt is already loading. The previous error is always cleared;
// clearValue also drops the previous value.
func (o *Op[T]) Begin(clearValue bool) (string, bool) {
	o.mu.Lock()
	if o.state.Status == Loading {
		o.mu.Unlock()
		return "", false
	}
	o.state.Status = Loading
	o.state.Err = nil
	o.state.Attempt = uuid.NewString()
	if clearValue {
		var zero T
		o.state.Value = zero
		o.state.HasValue = false
	}
	o.state.UpdatedAt = time.Now()
	attempt := o.state.Attempt
	o.notifyLocked()
	return attempt, true
}

// Finish records the outcome of attempt. A failure leaves the current value
// untouched. Results for an attempt that is no longer current are dropped.
func (o *Op[T]) Finish(attempt string, v T, err error) bool {
	o.mu.Lock()
	if o.state.Status != Loading || o.state.Attempt != attempt {
		o.mu.Unlock()
		return false
	}
	if err != nil {
		o.state.Status = Failed
		o.state.Err = err
	} else {
		o.state.Status = Succeeded
		o.state.Value = v
		o.state.HasValue = true
	}
	o.state.UpdatedAt = time.Now()
	o.notifyLocked()
	return true
}

// Dismiss clears a failure so the error is no longer shown.
func (o *Op[T]) Dismiss() {
	o.mu.Lock()
	if o.state.Status != Failed {
		o.mu.Unlock()
		return
	}
	o.state.Status = Idle
	o.state.Err = nil
	o.state.UpdatedAt = time.Now()
	o.notifyLocked()
}

// Start runs fn in a goroutine as a new attempt. The returned channel is
// closed once the outcome is recorded; ok is false if an attempt is
// already loading.
func (o *Op[T]) Start(clearValue bool, fn func() (T, error)) (<-chan struct{}, bool) {
	attempt, ok := o.Begin(clearValue)
	if !ok {
		return nil, false
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := fn()
		o.Finish(attempt, v, err)
	}()
	return done, true
}

// State returns a copy of the current state.
func (o *Op[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// notifyLocked releases o.mu before calling the listeners.
func (o *Op[T]) notifyLocked() {
	st := o.state
	fns := make([]func(State[T]), len(o.onChange))
	copy(fns, o.onChange)
	o.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

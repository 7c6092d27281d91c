// Package store holds the client-side state containers that mirror remote
// entities, and the request lifecycle machinery that drives them.
//
// Every asynchronous operation goes through Run: the owning Machine's state
// moves to loading, the work executes without any lock held, and the result
// is folded back in by the operation's reducers. Only a successful completion
// writes domain data; pending and failed phases touch status and error only.
//
// Concurrent operations on the same Machine are not fenced. Whichever
// completes last determines the status, error and items observers see.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

// ErrOperationPanicked wraps a panic recovered from an operation's work.
var ErrOperationPanicked = errors.New("operation panicked")

// Machine owns a state value of type S, the subscribers that watch it and
// the observers notified of every lifecycle transition.
type Machine[S any] struct {
	name   string
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     S
	version   uint64
	nextSub   int
	subs      map[int]func(S)
	observers []func(core.Transition)
}

func NewMachine[S any](name string, initial S, logger *log.Logger) *Machine[S] {
	if logger == nil {
		logger = log.Discard()
	}
	return &Machine[S]{
		name:   name,
		logger: logger,
		now:    time.Now,
		state:  initial,
		subs:   map[int]func(S){},
	}
}

func (m *Machine[S]) Name() string { return m.name }

// State returns the current state value.
func (m *Machine[S]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Version increases on every state change.
func (m *Machine[S]) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Update applies a synchronous reducer and notifies subscribers.
func (m *Machine[S]) Update(reduce func(S) S) {
	m.mu.Lock()
	m.state = reduce(m.state)
	m.version++
	state, subs := m.state, m.subscribersLocked()
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// Subscribe registers fn to receive the state after every change. The
// returned func removes the subscription.
func (m *Machine[S]) Subscribe(fn func(S)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Observe registers fn to receive every lifecycle transition.
func (m *Machine[S]) Observe(fn func(core.Transition)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Machine[S]) subscribersLocked() []func(S) {
	out := make([]func(S), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func (m *Machine[S]) transition(reduce func(S) S, t core.Transition) {
	m.mu.Lock()
	m.state = reduce(m.state)
	m.version++
	t.Store = m.name
	t.At = m.now()
	state, subs := m.state, m.subscribersLocked()
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
	for _, fn := range subs {
		fn(state)
	}
}

// Op describes how one family of operations moves a state of type S, given
// a success payload of type P.
type Op[S, P any] struct {
	Name string
	// Pending marks the state loading. It must not touch domain data.
	Pending func(S) S
	// Fulfilled folds a success payload into the state and marks it succeeded.
	Fulfilled func(S, P) S
	// Rejected records the failure message and marks the state failed.
	Rejected func(S, string) S
}

// Run drives op through pending, then fulfilled or rejected, around work.
// The error returned by work is returned unchanged; the state's error is
// the server message for *api.ValidationError and err.Error() otherwise.
func Run[S, P any](ctx context.Context, m *Machine[S], op Op[S, P], work func(context.Context) (P, error)) (P, error) {
	start := time.Now()
	m.transition(op.Pending, core.Transition{Op: op.Name, Phase: core.StatusLoading})
	m.logger.DebugContext(ctx, "Operation started", log.FieldStore, m.name, log.FieldOperation, op.Name)

	payload, err := guard(ctx, work)
	if err == nil {
		m.transition(func(s S) S { return op.Fulfilled(s, payload) },
			core.Transition{Op: op.Name, Phase: core.StatusSucceeded})
		m.logger.InfoContext(ctx, "Operation succeeded",
			log.FieldStore, m.name,
			log.FieldOperation, op.Name,
			log.FieldDuration, time.Since(start).Milliseconds())
		return payload, nil
	}

	msg := ErrorMessage(err)
	m.transition(func(s S) S { return op.Rejected(s, msg) },
		core.Transition{Op: op.Name, Phase: core.StatusFailed, Error: msg})

	fields := log.NewFields().
		WithTransition(m.name, op.Name, core.StatusFailed.String()).
		WithError(err)
	if _, ok := api.AsValidation(err); ok {
		m.logger.WarnContext(ctx, "Operation rejected", fields.WithErrorType(log.ErrorTypeValidation).ToSlice()...)
	} else {
		m.logger.ErrorContext(ctx, "Operation failed", fields.WithErrorType(log.ErrorTypeNetwork).ToSlice()...)
	}

	var zero P
	return zero, err
}

// ErrorMessage is the human string stored for a failed operation.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if verr, ok := api.AsValidation(err); ok && verr.Message != "" {
		return verr.Message
	}
	return err.Error()
}

func guard[P any](ctx context.Context, work func(context.Context) (P, error)) (payload P, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return work(ctx)
}

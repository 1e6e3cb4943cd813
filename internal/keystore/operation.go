package keystore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AlexZinkM/local-keystore/internal/model"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// State is the lifecycle of a background operation
type State int32

const (
	StateIdle State = iota
	StateInProgress
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Operation is a keystore request running in the background. It completes
// exactly once, either with a value or with an error.
type Operation[T any] struct {
	state  atomic.Int32
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

func newOperation[T any]() *Operation[T] {
	return &Operation[T]{done: make(chan struct{})}
}

// Submit runs f on the service's worker pool. There is no cancellation: the
// context passed to f is only cancelled when the service stops.
func Submit[T any](s *Service, f func(ctx context.Context) (T, error)) *Operation[T] {
	op := newOperation[T]()

	started := s.workers.Go(context.Background(), func(ctx context.Context) {
		op.state.Store(int32(StateInProgress))

		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Keystore operation panicked: %v", r)
				var zero T
				op.complete(zero, fmt.Errorf("operation panicked: %v", r))
			}
		}()

		v, err := f(ctx)
		op.complete(v, err)
	})
	if !started {
		var zero T
		op.complete(zero, model.ErrShuttingDown)
	}

	return op
}

func (o *Operation[T]) complete(v T, err error) {
	o.once.Do(func() {
		if err != nil {
			o.result = fn.Err[T](err)
			o.state.Store(int32(StateFailed))
		} else {
			o.result = fn.Ok(v)
			o.state.Store(int32(StateSucceeded))
		}
		close(o.done)
	})
}

// State returns the current state
func (o *Operation[T]) State() State {
	return State(o.state.Load())
}

// Done is closed once the operation has completed
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Result blocks until completion and returns the outcome
func (o *Operation[T]) Result() fn.Result[T] {
	<-o.done
	return o.result
}

// Wait blocks until completion or until ctx expires. An expired ctx only
// stops the wait; the operation itself keeps running.
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.result.Unpack()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete calls f with the outcome once the operation completes
func (o *Operation[T]) OnComplete(f func(fn.Result[T])) {
	go func() {
		f(o.Result())
	}()
}

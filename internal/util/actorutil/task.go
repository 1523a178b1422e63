package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNilTaskResult = errors.New("background task returned no result")

// SafeBackgroundTask runs blocking work outside the actor and delivers its outcome as a message.
// Panics and timeouts surface as errors.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() (*T, error)
	timeout *time.Duration
	onError func(error)
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

func (t *SafeBackgroundTask[T]) OnError(fn func(error)) *SafeBackgroundTask[T] {
	t.onError = fn
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo runs the task in its own goroutine and sends the result to pid.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	root := t.ctx.ActorSystem().Root
	go func() {
		value, ok := t.run()
		if ok {
			root.Send(pid, value)
		}
	}()
}

func (t *SafeBackgroundTask[T]) run() (T, bool) {
	bg := io.Map(io.Eval(t.fn), func(a *T) T {
		if a != nil {
			return *a
		}
		panic(ErrNilTaskResult)
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover != nil {
		return t.recover(result.Error), true
	}
	if t.onError != nil {
		t.onError(result.Error)
	}
	var zero T
	return zero, false
}

// Package async turns the blocking repository calls into single-shot results
// delivered on a dispatcher, the way a UI thread receives completions.
//
// Repository operations block and take a context. [Go] runs one on a worker
// goroutine and hands back a buffered channel that receives exactly one
// [Result]. [Deliver] goes one step further: it posts a callback onto a
// [Dispatcher] once the work finishes, unless the [Scope] the callback belongs
// to was closed in the meantime. Work that already ran is not undone by a
// closed scope; only the callback is dropped.
package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// Result carries the outcome of one asynchronous operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on a new goroutine. The returned channel receives exactly one
// Result and is never closed.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// Await waits for the result on ch or for ctx to end.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Dispatcher runs posted functions one at a time on its own goroutine.
type Dispatcher interface {
	Post(fn func())
}

// Loop is a FIFO [Dispatcher]. Post never blocks; queued functions run on the
// goroutine that calls Run.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop returns an idle loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post appends fn to the queue.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued functions in order until ctx is done. It returns
// ctx.Err(); functions still queued at that point stay queued.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain runs everything currently queued, including functions posted by the
// ones it runs, and returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

// Scope is the lifetime of a consumer, such as a screen. After Close,
// callbacks delivered through the scope are dropped.
type Scope struct {
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewScope returns an open scope.
func NewScope() *Scope {
	return &Scope{}
}

// Close ends the scope. It is safe to call more than once.
func (s *Scope) Close() {
	s.closed.Store(true)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	return s.closed.Load()
}

// Dropped returns the number of callbacks discarded because the scope was
// closed.
func (s *Scope) Dropped() int64 {
	return s.dropped.Load()
}

// Deliver runs fn on a worker goroutine and posts cb with its result onto d.
// If the scope is closed before cb would run, cb is skipped. The scope is
// checked both when posting and on the dispatcher, so a Close issued on the
// dispatcher goroutine always wins over callbacks still queued.
func Deliver[T any](ctx context.Context, scope *Scope, d Dispatcher, fn func(context.Context) (T, error), cb func(Result[T])) {
	go func() {
		v, err := fn(ctx)
		if scope.Closed() {
			scope.dropped.Add(1)
			return
		}
		d.Post(func() {
			if scope.Closed() {
				scope.dropped.Add(1)
				return
			}
			cb(Result[T]{Value: v, Err: err})
		})
	}()
}

package result

import (
	"context"
	"sync"
)

// Future is a Result that becomes available later. Continuations chained
// with the *Async functions start only after their predecessor completes,
// and a failure skips every downstream step.
type Future[T any, E error] struct {
	done  chan struct{}
	res   Result[T, E]
	fault *PanicError
}

// Go runs fn on a new goroutine and returns its pending Result.
// A panic in fn is recovered there and raised again, as a *PanicError, in
// whichever goroutine waits on the Future. Downstream *Async steps pass it
// along the same way, so it surfaces where the chain is consumed.
func Go[T any, E error](ctx context.Context, fn func(context.Context) Result[T, E]) *Future[T, E] {
	f := &Future[T, E]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				f.fault = asPanicError(p)
			}
		}()
		f.res = fn(ctx)
	}()
	return f
}

// Resolved returns a Future that is already complete.
func Resolved[T any, E error](r Result[T, E]) *Future[T, E] {
	f := &Future[T, E]{done: make(chan struct{}), res: r}
	close(f.done)
	return f
}

// Done is closed once the Result is available.
func (f *Future[T, E]) Done() <-chan struct{} { return f.done }

// Wait blocks until the Result is available.
func (f *Future[T, E]) Wait() Result[T, E] {
	<-f.done
	f.raise()
	return f.res
}

// Await waits for the Result or for ctx to end, whichever comes first.
// A non-nil error means the Result was abandoned, not that it failed.
func (f *Future[T, E]) Await(ctx context.Context) (Result[T, E], error) {
	select {
	case <-f.done:
		f.raise()
		return f.res, nil
	case <-ctx.Done():
		var zero Result[T, E]
		return zero, ctx.Err()
	}
}

func (f *Future[T, E]) raise() {
	if f.fault != nil {
		panic(f.fault)
	}
}

// Promise is the writable side of a Future. Only the first Complete wins.
type Promise[T any, E error] struct {
	future *Future[T, E]
	once   sync.Once
}

func NewPromise[T any, E error]() *Promise[T, E] {
	return &Promise[T, E]{future: &Future[T, E]{done: make(chan struct{})}}
}

// Future returns the read side of p.
func (p *Promise[T, E]) Future() *Future[T, E] { return p.future }

// Complete settles the promise. It reports false when it was already settled.
func (p *Promise[T, E]) Complete(r Result[T, E]) bool {
	settled := false
	p.once.Do(func() {
		p.future.res = r
		close(p.future.done)
		settled = true
	})
	return settled
}

// BindAsync chains a suspending fallible step after f.
func BindAsync[T, U any, E error](ctx context.Context, f *Future[T, E], fn func(context.Context, T) Result[U, E]) *Future[U, E] {
	if r, ready := peek(f); ready && !r.ok {
		return Resolved(Fail[U](r.err))
	}
	return Go(ctx, func(ctx context.Context) Result[U, E] {
		r := f.Wait()
		if !r.ok {
			return Fail[U](r.err)
		}
		return fn(ctx, r.value)
	})
}

// MapAsync applies fn to the eventual success value.
func MapAsync[T, U any, E error](ctx context.Context, f *Future[T, E], fn func(T) U) *Future[U, E] {
	return BindAsync(ctx, f, func(_ context.Context, v T) Result[U, E] {
		return Ok[U, E](fn(v))
	})
}

// MapErrorAsync applies fn to the eventual failure value.
func MapErrorAsync[T any, E, F error](ctx context.Context, f *Future[T, E], fn func(E) F) *Future[T, F] {
	return Go(ctx, func(context.Context) Result[T, F] {
		return MapError(f.Wait(), fn)
	})
}

// EnsureAsync is Ensure on the eventual Result.
func EnsureAsync[T any, E error](ctx context.Context, f *Future[T, E], pred func(T) bool, e E) *Future[T, E] {
	return BindAsync(ctx, f, func(_ context.Context, v T) Result[T, E] {
		return Ok[T, E](v).Ensure(pred, e)
	})
}

// TapAsync runs fn on the eventual success value.
func TapAsync[T any, E error](ctx context.Context, f *Future[T, E], fn func(T)) *Future[T, E] {
	return Go(ctx, func(context.Context) Result[T, E] {
		return f.Wait().Tap(fn)
	})
}

// TapErrorAsync runs fn on the eventual failure value.
func TapErrorAsync[T any, E error](ctx context.Context, f *Future[T, E], fn func(E)) *Future[T, E] {
	return Go(ctx, func(context.Context) Result[T, E] {
		return f.Wait().TapError(fn)
	})
}

// MatchAsync waits for f and consumes it. The error is ctx.Err() when ctx
// ends first, in which case neither branch runs.
func MatchAsync[T any, E error, R any](ctx context.Context, f *Future[T, E], onOk func(T) R, onFail func(E) R) (R, error) {
	r, err := f.Await(ctx)
	if err != nil {
		var zero R
		return zero, err
	}
	return Match(r, onOk, onFail), nil
}

// DoAsync waits for f and consumes it for side effects.
func DoAsync[T any, E error](ctx context.Context, f *Future[T, E], onOk func(T), onFail func(E)) error {
	r, err := f.Await(ctx)
	if err != nil {
		return err
	}
	Do(r, onOk, onFail)
	return nil
}

func peek[T any, E error](f *Future[T, E]) (Result[T, E], bool) {
	select {
	case <-f.done:
		if f.fault != nil {
			var zero Result[T, E]
			return zero, false
		}
		return f.res, true
	default:
		var zero Result[T, E]
		return zero, false
	}
}

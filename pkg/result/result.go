// Package result provides a two-case success/failure value with composable
// operators. Every fallible step in medhelper returns a Result instead of
// panicking or leaking a bare error across layers.
package result

import (
	"fmt"
	"runtime/debug"
)

// Unit is the success value of steps that only signal completion.
type Unit struct{}

// Result is either Ok(T) or Fail(E). The zero value is a failure carrying
// the zero E and should not be used; build results with Ok or Fail.
type Result[T any, E error] struct {
	value T
	err   E
	ok    bool
}

// Ok wraps a success value.
func Ok[T any, E error](v T) Result[T, E] {
	return Result[T, E]{value: v, ok: true}
}

// Fail wraps a failure value.
func Fail[T any, E error](e E) Result[T, E] {
	return Result[T, E]{err: e}
}

func (r Result[T, E]) IsOk() bool   { return r.ok }
func (r Result[T, E]) IsFail() bool { return !r.ok }

// Value returns the success value and whether the result is Ok.
func (r Result[T, E]) Value() (T, bool) { return r.value, r.ok }

// Err returns the failure value and whether the result is a failure.
func (r Result[T, E]) Err() (E, bool) { return r.err, !r.ok }

// Unwrap returns both halves. Exactly one of them is meaningful.
func (r Result[T, E]) Unwrap() (T, E) { return r.value, r.err }

// Ensure keeps an Ok result only while pred holds; otherwise it becomes Fail(e).
func (r Result[T, E]) Ensure(pred func(T) bool, e E) Result[T, E] {
	if r.ok && !pred(r.value) {
		return Fail[T](e)
	}
	return r
}

// EnsureFunc is Ensure with an error built from the rejected value.
func (r Result[T, E]) EnsureFunc(pred func(T) bool, mk func(T) E) Result[T, E] {
	if r.ok && !pred(r.value) {
		return Fail[T](mk(r.value))
	}
	return r
}

// Tap runs f on the success value and returns r unchanged.
func (r Result[T, E]) Tap(f func(T)) Result[T, E] {
	if r.ok {
		f(r.value)
	}
	return r
}

// TapError runs f on the failure value and returns r unchanged.
func (r Result[T, E]) TapError(f func(E)) Result[T, E] {
	if !r.ok {
		f(r.err)
	}
	return r
}

// Map applies f to an Ok value. Failures pass through.
func Map[T, U any, E error](r Result[T, E], f func(T) U) Result[U, E] {
	if !r.ok {
		return Fail[U](r.err)
	}
	return Ok[U, E](f(r.value))
}

// MapError applies f to a failure value. Successes pass through.
func MapError[T any, E, F error](r Result[T, E], f func(E) F) Result[T, F] {
	if r.ok {
		return Ok[T, F](r.value)
	}
	return Fail[T](f(r.err))
}

// Bind sequences a fallible step after r, stopping at the first failure.
func Bind[T, U any, E error](r Result[T, E], f func(T) Result[U, E]) Result[U, E] {
	if !r.ok {
		return Fail[U](r.err)
	}
	return f(r.value)
}

// Match consumes r, producing a value from whichever branch it holds.
func Match[T any, E error, R any](r Result[T, E], onOk func(T) R, onFail func(E) R) R {
	if r.ok {
		return onOk(r.value)
	}
	return onFail(r.err)
}

// Do consumes r for its side effects only.
func Do[T any, E error](r Result[T, E], onOk func(T), onFail func(E)) {
	if r.ok {
		onOk(r.value)
		return
	}
	onFail(r.err)
}

// Try runs fn and converts a returned error or a panic into Fail(mkErr(err)).
// It is the boundary where untyped failures enter the Result channel.
func Try[T any, E error](fn func() (T, error), mkErr func(error) E) (res Result[T, E]) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail[T](mkErr(panicError(p)))
		}
	}()
	v, err := fn()
	if err != nil {
		return Fail[T](mkErr(err))
	}
	return Ok[T, E](v)
}

// TryValue is Try for steps that cannot return an error but may panic.
func TryValue[T any, E error](fn func() T, mkErr func(error) E) Result[T, E] {
	return Try(func() (T, error) { return fn(), nil }, mkErr)
}

// PanicError is the error Try hands to mkErr when fn panics, and the value
// a Future re-panics with when its goroutine panicked.
type PanicError struct {
	Value any
	// Stack is where the original panic happened. Set only by Go.
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func asPanicError(p any) *PanicError {
	if pe, ok := p.(*PanicError); ok {
		return pe
	}
	return &PanicError{Value: p, Stack: debug.Stack()}
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return &PanicError{Value: p}
}

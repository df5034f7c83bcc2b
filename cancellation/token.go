// Package cancellation provides a cooperative, clonable cancellation signal.
//
// A Token never interrupts work on its own. Holders either poll IsCancelled
// or select on Done to stop at their own suspension points.
package cancellation

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the context cause used by Token.Context.
var ErrCancelled = errors.New("cancellation: token cancelled")

type state struct {
	once sync.Once
	done chan struct{}
}

// Token is a shared one-way Active -> Cancelled flag. Copies of a Token
// observe the same state. The zero Token is never cancelled and cannot be
// cancelled; use New.
type Token struct {
	s *state
}

// New returns an Active token.
func New() Token {
	return Token{s: &state{done: make(chan struct{})}}
}

// Clone returns a token sharing t's state.
func (t Token) Clone() Token { return t }

// Cancel moves the token to Cancelled and wakes all waiters.
// Further calls are no-ops.
func (t Token) Cancel() {
	if t.s == nil {
		return
	}
	t.s.once.Do(func() { close(t.s.done) })
}

// IsCancelled reports the current state without blocking.
func (t Token) IsCancelled() bool {
	if t.s == nil {
		return false
	}
	select {
	case <-t.s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the token is cancelled.
// The zero Token returns a nil channel, which blocks forever.
func (t Token) Done() <-chan struct{} {
	if t.s == nil {
		return nil
	}
	return t.s.done
}

// Wait blocks the calling goroutine until the token is cancelled or ctx ends.
// It returns nil on cancellation and ctx.Err() otherwise.
func (t Token) Wait(ctx context.Context) error {
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context derives a context that is cancelled, with cause ErrCancelled, when
// the token is. The returned CancelFunc releases the watcher and must be called.
func (t Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-t.Done():
			cancel(ErrCancelled)
		case <-ctx.Done():
		case <-stop:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel(context.Canceled)
	}
}

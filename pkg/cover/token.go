package cover

import (
	"context"
	"sync/atomic"
)

var tokenSeq atomic.Uint64

// Token is the cancellation signal shared by one logical operation (a search
// session or a single resolve) and every adapter call made on its behalf. It
// combines a context, so HTTP requests abort as soon as it fires, with an
// atomic flag that is cheap to poll between blocking steps. Every token gets
// a unique ID which the orchestrator uses to recognise late results from a
// superseded session.
type Token struct {
	ctx       context.Context
	cancel    context.CancelFunc
	id        uint64
	cancelled atomic.Bool
}

// NewToken derives a token from parent. Cancelling parent cancels the token.
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel, id: tokenSeq.Add(1)}
}

// ID returns the identity of the token.
func (t *Token) ID() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}

// Context returns the context tied to the token. A nil token yields
// context.Background so adapters can be exercised directly in tests.
func (t *Token) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

// Cancel signals the token. It is safe to call more than once.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether the token or its parent context has fired.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	if t.cancelled.Load() {
		return true
	}
	if t.ctx.Err() != nil {
		t.cancelled.Store(true)
		return true
	}
	return false
}

// Done mirrors context.Context.Done.
func (t *Token) Done() <-chan struct{} {
	return t.Context().Done()
}

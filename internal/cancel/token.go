// Package cancel provides the cooperative cancellation flag consulted by
// long-running pipeline stages.
package cancel

import "sync/atomic"

// Token is a process-wide cooperative cancellation flag. It is constructed
// once per process and injected into whatever consults it; cancellation is
// best-effort and never aborts an in-flight warehouse call, only the loop
// between calls. Committed updates stay committed.
type Token struct {
	requested atomic.Bool
}

// NewToken returns a token with no cancellation requested.
func NewToken() *Token {
	return &Token{}
}

// Request flags the current operation for cancellation.
func (t *Token) Request() {
	t.requested.Store(true)
}

// IsRequested reports whether cancellation has been requested.
func (t *Token) IsRequested() bool {
	return t.requested.Load()
}

// Reset clears the flag so the next operation can run.
func (t *Token) Reset() {
	t.requested.Store(false)
}

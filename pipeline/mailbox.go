// Package pipeline - frame hand-off, temporal smoothing and display helpers
// shared by the camera, video and HTTP front ends.
package pipeline

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrMailboxClosed is returned by Take once the mailbox is closed and empty.
var ErrMailboxClosed = errors.New("pipeline: mailbox closed")

// Mailbox is a one-slot, latest-wins hand-off between goroutines. A Put that
// finds the slot occupied overwrites it, so the reader always sees the most
// recent value and intermediate values are lost.
type Mailbox[T any] struct {
	mu     sync.Mutex
	val    T
	full   bool
	closed bool
	ready  chan struct{}
	done   chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Put stores v. When an unread value is overwritten it is returned with
// replaced set so the caller can release it. Put on a closed mailbox hands
// v straight back.
func (m *Mailbox[T]) Put(v T) (old T, replaced bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return v, true
	}
	old, replaced = m.val, m.full
	m.val, m.full = v, true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return old, replaced
}

// TryTake removes and returns the stored value without blocking.
func (m *Mailbox[T]) TryTake() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeLocked()
}

func (m *Mailbox[T]) takeLocked() (T, bool) {
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.val
	m.val, m.full = zero, false
	return v, true
}

// Take waits for a value, the context to end or the mailbox to close.
func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if v, ok := m.takeLocked(); ok {
			m.mu.Unlock()
			return v, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return zero, ErrMailboxClosed
		}

		select {
		case <-m.ready:
		case <-m.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close wakes every waiting Take. A value still in the slot can be taken
// after Close.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

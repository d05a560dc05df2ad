package transport

import (
    "context"
    "errors"
    "sync"
)

// ErrListenerClosed is returned by Accept and Push once a Backlog is closed.
var ErrListenerClosed = errors.New("listener closed")

// Backlog queues inbound sessions between a listener's accept loop and
// Accept. Sessions still queued when the backlog closes are closed as well,
// so a peer never keeps a connection that no server will read.
type Backlog struct {
    ch   chan Session
    done chan struct{}
    once sync.Once
}

// NewBacklog returns a backlog holding up to n sessions that have not been accepted.
func NewBacklog(n int) *Backlog {
    if n <= 0 { n = 8 }
    return &Backlog{ch: make(chan Session, n), done: make(chan struct{})}
}

// Push queues s, blocking while the backlog is full. If the backlog closes
// or ctx ends first, s is closed and an error returned.
func (b *Backlog) Push(ctx context.Context, s Session) error {
    select {
    case <-b.done:
        _ = s.Close()
        return ErrListenerClosed
    default:
    }
    select {
    case b.ch <- s:
        // Close may have drained before this send landed.
        select {
        case <-b.done:
            b.drain()
            return ErrListenerClosed
        default:
        }
        return nil
    case <-b.done:
        _ = s.Close()
        return ErrListenerClosed
    case <-ctx.Done():
        _ = s.Close()
        return ctx.Err()
    }
}

// Accept returns the next queued session.
func (b *Backlog) Accept(ctx context.Context) (Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-b.done:
        return nil, ErrListenerClosed
    case s := <-b.ch:
        return s, nil
    }
}

// Done is closed when the backlog is closed.
func (b *Backlog) Done() <-chan struct{} { return b.done }

// Close stops the backlog and closes every session nobody accepted.
// It reports whether this call was the one that closed it.
func (b *Backlog) Close() bool {
    first := false
    b.once.Do(func() {
        close(b.done)
        first = true
    })
    b.drain()
    return first
}

func (b *Backlog) drain() {
    for {
        select {
        case s := <-b.ch:
            _ = s.Close()
        default:
            return
        }
    }
}

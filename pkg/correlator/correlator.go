// Package correlator matches responses to the requests that caused them.
package correlator

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Sender transmits one encoded frame on a connection.
type Sender interface {
    Send(id transport.ConnID, frame []byte) error
}

type result struct {
    resp protocol.Response
    err  error
}

type pending struct {
    id        uuid.UUID
    conn      transport.ConnID
    createdAt time.Time
    done      chan result // buffered; receives exactly one value
}

// Correlator owns the pending request table.
type Correlator struct {
    codec   *protocol.Codec
    sender  Sender
    timeout time.Duration
    newID   func() uuid.UUID

    mu      sync.Mutex
    pending map[uuid.UUID]*pending
}

// Option customizes a Correlator.
type Option func(*Correlator)

// WithIDSource replaces uuid.New as the request id generator.
func WithIDSource(f func() uuid.UUID) Option { return func(c *Correlator) { c.newID = f } }

// New returns a correlator sending through s. defaultTimeout applies when
// Send is called with a zero timeout.
func New(codec *protocol.Codec, s Sender, defaultTimeout time.Duration, opts ...Option) *Correlator {
    c := &Correlator{
        codec:   codec,
        sender:  s,
        timeout: defaultTimeout,
        newID:   uuid.New,
        pending: make(map[uuid.UUID]*pending),
    }
    for _, o := range opts { o(c) }
    return c
}

// Send assigns req a fresh id, transmits it on conn and waits for the
// matching response, the timeout, connection loss or ctx. A timeout <= 0
// selects the default; a zero default waits on ctx alone.
func (c *Correlator) Send(ctx context.Context, conn transport.ConnID, req protocol.Request, timeout time.Duration) (protocol.Response, error) {
    if req == nil { return nil, protocol.ErrMsgDataInvalid }
    if timeout <= 0 { timeout = c.timeout }

    p := c.register(conn)
    req.SetRequestID(p.id)

    frame, err := c.codec.Marshal(req)
    if err != nil {
        c.remove(p.id)
        return nil, err
    }
    if err := c.sender.Send(conn, frame); err != nil {
        c.remove(p.id)
        return nil, err
    }

    var expire <-chan time.Time
    if timeout > 0 {
        t := time.NewTimer(timeout)
        defer t.Stop()
        expire = t.C
    }
    select {
    case r := <-p.done:
        return r.resp, r.err
    case <-expire:
        if c.remove(p.id) {
            zap.L().Debug("request timed out",
                zap.String("type", req.TypeID()),
                zap.String("id", p.id.String()),
                zap.String("conn", string(conn)),
                zap.Duration("timeout", timeout))
            return nil, fmt.Errorf("%w: %s after %s", protocol.ErrRequestTimeout, req.TypeID(), timeout)
        }
    case <-ctx.Done():
        if c.remove(p.id) { return nil, ctx.Err() }
    }
    // Completed concurrently with the deadline; the result is already queued.
    r := <-p.done
    return r.resp, r.err
}

func (c *Correlator) register(conn transport.ConnID) *pending {
    c.mu.Lock()
    defer c.mu.Unlock()
    id := c.newID()
    for _, taken := c.pending[id]; taken || id == uuid.Nil; _, taken = c.pending[id] {
        id = c.newID()
    }
    p := &pending{id: id, conn: conn, createdAt: time.Now(), done: make(chan result, 1)}
    c.pending[id] = p
    return p
}

// remove deletes the entry and reports whether it was still pending.
func (c *Correlator) remove(id uuid.UUID) bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    if _, ok := c.pending[id]; !ok { return false }
    delete(c.pending, id)
    return true
}

// Complete delivers resp received on conn. It returns false when no request
// is waiting for it; such responses are dropped.
func (c *Correlator) Complete(conn transport.ConnID, resp protocol.Response) bool {
    id := resp.ResponseTo()
    c.mu.Lock()
    p, ok := c.pending[id]
    if ok && p.conn != conn {
        ok = false
    }
    if ok { delete(c.pending, id) }
    c.mu.Unlock()
    if !ok {
        zap.L().Debug("discarding unmatched response",
            zap.String("type", resp.TypeID()),
            zap.String("request_id", id.String()),
            zap.String("conn", string(conn)))
        return false
    }
    p.done <- result{resp: resp}
    return true
}

// FailConnection fails every request pending on conn with ErrClientNotConnected.
func (c *Correlator) FailConnection(conn transport.ConnID) int {
    c.mu.Lock()
    var failed []*pending
    for id, p := range c.pending {
        if p.conn == conn {
            delete(c.pending, id)
            failed = append(failed, p)
        }
    }
    c.mu.Unlock()
    for _, p := range failed {
        p.done <- result{err: fmt.Errorf("%w: %s", protocol.ErrClientNotConnected, conn)}
    }
    return len(failed)
}

// Close fails every pending request.
func (c *Correlator) Close() {
    c.mu.Lock()
    all := c.pending
    c.pending = make(map[uuid.UUID]*pending)
    c.mu.Unlock()
    for _, p := range all {
        p.done <- result{err: fmt.Errorf("%w: endpoint closed", protocol.ErrClientNotConnected)}
    }
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return len(c.pending)
}

// Oldest returns the creation time of the oldest pending request.
func (c *Correlator) Oldest() (time.Time, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    var oldest time.Time
    for _, p := range c.pending {
        if oldest.IsZero() || p.createdAt.Before(oldest) { oldest = p.createdAt }
    }
    return oldest, !oldest.IsZero()
}

package mem

import (
    "context"
    "fmt"
    "net"
    "sync"
    "sync/atomic"

    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Transport is an in-process transport using net.Pipe. Listeners and dialers
// must share the same Transport value; Shared returns the process-wide one.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
    seq       atomic.Uint64
    maxFrame  int
}

var shared = New(0)

// Shared returns the process-wide in-memory transport.
func Shared() *Transport { return shared }

func New(maxFrame int) *Transport {
    return &Transport{listeners: make(map[string]*listener), maxFrame: maxFrame}
}

func (t *Transport) Kind() transport.Kind { return transport.KindShared }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok {
        return nil, fmt.Errorf("shared: listener %q already exists", name)
    }
    l := &listener{name: name, backlog: transport.NewBacklog(8)}
    l.release = func() {
        t.mu.Lock()
        if t.listeners[name] == l { delete(t.listeners, name) }
        t.mu.Unlock()
    }
    t.listeners[name] = l
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.backlog.Done():
        }
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Session, error) {
    t.mu.Lock()
    l := t.listeners[name]
    t.mu.Unlock()
    if l == nil { return nil, fmt.Errorf("shared: no listener %q", name) }
    n := t.seq.Add(1)
    c1, c2 := net.Pipe()
    srv := &session{
        FrameConn: transport.NewFrameConn(c1, t.maxFrame),
        peer:      transport.PeerInfo{ID: transport.ConnID(fmt.Sprintf("shared:%s#%d", name, n)), Addr: name},
        addr:      memAddr(name),
    }
    cli := &session{
        FrameConn: transport.NewFrameConn(c2, t.maxFrame),
        peer:      transport.PeerInfo{ID: transport.ConnID("shared:" + name), Addr: name},
        addr:      memAddr(name),
    }
    if err := l.backlog.Push(ctx, srv); err != nil {
        _ = cli.Close()
        return nil, fmt.Errorf("shared: %w", err)
    }
    return cli, nil
}

type listener struct {
    name    string
    backlog *transport.Backlog
    release func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    return l.backlog.Accept(ctx)
}

func (l *listener) Close() error {
    if l.backlog.Close() { l.release() }
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "shared" }
func (a memAddr) String() string  { return string(a) }

type session struct {
    *transport.FrameConn
    peer transport.PeerInfo
    addr memAddr
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindShared }
func (s *session) LocalAddr() net.Addr { return s.addr }
func (s *session) RemoteAddr() net.Addr { return s.addr }

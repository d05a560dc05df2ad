package tcp

import (
    "context"
    "net"

    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Transport implements a stream-based TCP transport with length-prefixed frames (u32 LE).
type Transport struct {
    maxFrame int
}

func New(maxFrame int) *Transport { return &Transport{maxFrame: maxFrame} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := net.Listen("tcp", address)
    if err != nil { return nil, err }
    tl := &listener{l: l, maxFrame: t.maxFrame, backlog: transport.NewBacklog(8)}
    go tl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = tl.Close()
        case <-tl.backlog.Done():
        }
    }()
    return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Session, error) {
    d := &net.Dialer{}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    return newSession(c, t.maxFrame), nil
}

type listener struct {
    l        net.Listener
    maxFrame int
    backlog  *transport.Backlog
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    return l.backlog.Accept(ctx)
}

func (l *listener) Close() error {
    if !l.backlog.Close() { return nil }
    return l.l.Close()
}

func (l *listener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil { return }
        if err := l.backlog.Push(context.Background(), newSession(c, l.maxFrame)); err != nil { return }
    }
}

type session struct {
    *transport.FrameConn
    peer transport.PeerInfo
    c    net.Conn
}

func newSession(c net.Conn, maxFrame int) *session {
    return &session{
        FrameConn: transport.NewFrameConn(c, maxFrame),
        peer:      transport.PeerInfo{ID: transport.TempConnID(transport.KindTCP, c.RemoteAddr()), Addr: c.RemoteAddr().String()},
        c:         c,
    }
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindTCP }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

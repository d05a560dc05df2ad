//go:build windows

package winpipe

import (
    "context"
    "net"

    "github.com/Microsoft/go-winio"

    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Transport carries frames over Windows named pipes, e.g. `\\.\pipe\sis`.
type Transport struct {
    maxFrame int
}

func New(maxFrame int) *Transport { return &Transport{maxFrame: maxFrame} }

func (t *Transport) Kind() transport.Kind { return transport.KindPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
    l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{MessageMode: false})
    if err != nil { return nil, err }
    wl := &listener{l: l, name: pipeName, maxFrame: t.maxFrame, backlog: transport.NewBacklog(8)}
    go wl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = wl.Close()
        case <-wl.backlog.Done():
        }
    }()
    return wl, nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Session, error) {
    conn, err := winio.DialPipeContext(ctx, pipeName)
    if err != nil { return nil, err }
    return newSession(conn, pipeName, t.maxFrame), nil
}

type listener struct {
    l        net.Listener
    name     string
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
        if err := l.backlog.Push(context.Background(), newSession(c, l.name, l.maxFrame)); err != nil { return }
    }
}

type session struct {
    *transport.FrameConn
    peer transport.PeerInfo
    c    net.Conn
}

// Pipe clients have no distinct remote address; the manager disambiguates ids.
func newSession(c net.Conn, name string, maxFrame int) *session {
    return &session{
        FrameConn: transport.NewFrameConn(c, maxFrame),
        peer:      transport.PeerInfo{ID: transport.ConnID("pipe:" + name), Addr: name},
        c:         c,
    }
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindPipe }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

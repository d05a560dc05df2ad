package netstack

import (
    "context"
    "errors"
    "io"
    "sync"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Events receives the lifecycle of attached sessions. OnReceive is called
// from the session's single read goroutine, so frames of one connection
// arrive in order.
type Events interface {
    OnConnect(id transport.ConnID, s transport.Session)
    OnReceive(id transport.ConnID, frame []byte)
    OnDisconnect(id transport.ConnID, err error)
}

// Serve accepts sessions from l until ctx is done or the listener fails,
// attaching each one to mgr. It returns after every session it attached has
// been torn down.
func Serve(ctx context.Context, l transport.Listener, mgr *transport.Manager, ev Events) error {
    var wg sync.WaitGroup
    defer wg.Wait()
    for {
        s, err := l.Accept(ctx)
        if err != nil {
            if ctx.Err() != nil || errors.Is(err, transport.ErrListenerClosed) { return nil }
            zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
            return err
        }
        zap.L().Info("inbound session", zap.String("kind", s.TransportKind().String()), zap.String("raddr", s.RemoteAddr().String()))
        _, done := Attach(ctx, s, mgr, ev)
        wg.Add(1)
        go func() {
            defer wg.Done()
            <-done
        }()
    }
}

// Attach registers s in mgr, reports OnConnect and starts the read loop. The
// returned channel is closed once the session is removed and OnDisconnect has
// returned. The session is closed when ctx is done.
func Attach(ctx context.Context, s transport.Session, mgr *transport.Manager, ev Events) (transport.ConnID, <-chan struct{}) {
    id := mgr.Add(s)
    ev.OnConnect(id, s)
    done := make(chan struct{})
    stop := context.AfterFunc(ctx, func() { _ = s.Close() })
    go func() {
        defer close(done)
        defer stop()
        err := readLoop(id, s, ev)
        mgr.Remove(id)
        _ = s.Close()
        zap.L().Info("session closed", zap.String("conn", string(id)), zap.Error(err))
        ev.OnDisconnect(id, err)
    }()
    return id, done
}

func readLoop(id transport.ConnID, s transport.Session, ev Events) error {
    for {
        b, err := s.RecvBytes()
        if err != nil {
            if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrClientNotConnected) { return nil }
            return err
        }
        ev.OnReceive(id, b)
    }
}

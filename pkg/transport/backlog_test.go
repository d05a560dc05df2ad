package transport

import (
    "context"
    "errors"
    "net"
    "testing"
    "time"
)

type pipeSession struct {
    *FrameConn
}

func (pipeSession) Peer() PeerInfo       { return PeerInfo{ID: "pipe"} }
func (pipeSession) TransportKind() Kind  { return KindShared }
func (pipeSession) LocalAddr() net.Addr  { return nil }
func (pipeSession) RemoteAddr() net.Addr { return nil }

func pipePair() (Session, *FrameConn) {
    a, b := net.Pipe()
    return pipeSession{NewFrameConn(a, 0)}, NewFrameConn(b, 0)
}

func TestBacklogCloseClosesQueuedSessions(t *testing.T) {
    b := NewBacklog(4)
    var peers []*FrameConn
    for i := 0; i < 3; i++ {
        s, peer := pipePair()
        if err := b.Push(context.Background(), s); err != nil { t.Fatalf("push %d: %v", i, err) }
        peers = append(peers, peer)
    }
    if !b.Close() { t.Fatalf("first close should report true") }
    if b.Close() { t.Fatalf("second close should report false") }

    for i, peer := range peers {
        errc := make(chan error, 1)
        go func() {
            _, err := peer.RecvBytes()
            errc <- err
        }()
        select {
        case err := <-errc:
            if err == nil { t.Fatalf("peer %d: expected read error after backlog close", i) }
        case <-time.After(2 * time.Second):
            t.Fatalf("peer %d still connected after backlog close", i)
        }
    }
}

func TestBacklogPushAfterClose(t *testing.T) {
    b := NewBacklog(1)
    b.Close()
    s, peer := pipePair()
    if err := b.Push(context.Background(), s); !errors.Is(err, ErrListenerClosed) {
        t.Fatalf("expected ErrListenerClosed, got %v", err)
    }
    if _, err := peer.RecvBytes(); err == nil { t.Fatalf("rejected session should be closed") }
    if _, err := b.Accept(context.Background()); !errors.Is(err, ErrListenerClosed) {
        t.Fatalf("accept after close: %v", err)
    }
}

func TestBacklogAcceptAndContext(t *testing.T) {
    b := NewBacklog(1)
    defer b.Close()
    s, _ := pipePair()
    if err := b.Push(context.Background(), s); err != nil { t.Fatalf("push: %v", err) }
    got, err := b.Accept(context.Background())
    if err != nil || got != s { t.Fatalf("accept: %v %v", got, err) }

    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    if _, err := b.Accept(ctx); !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("accept timeout: %v", err) }

    // A full backlog blocks Push until ctx ends.
    s1, _ := pipePair()
    s2, peer2 := pipePair()
    if err := b.Push(context.Background(), s1); err != nil { t.Fatalf("push: %v", err) }
    pctx, pcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer pcancel()
    if err := b.Push(pctx, s2); !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("push full: %v", err) }
    if _, err := peer2.RecvBytes(); err == nil { t.Fatalf("timed out session should be closed") }
}

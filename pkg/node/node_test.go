package node

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/spf13/afero"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/core/netstack"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/upload"
)

var listenSeq atomic.Int64

func startServer(t *testing.T, fs afero.Fs) (*Server, string) {
    t.Helper()
    name := fmt.Sprintf("node-test-%d", listenSeq.Add(1))
    if fs == nil { fs = afero.NewMemMapFs() }
    srv, err := NewServer(ServerOptions{
        Transports:     []config.TransportConfig{{Kind: "shared", Listen: []string{name}}},
        RequestTimeout: 2 * time.Second,
        UploadStore:    upload.NewFileStore(fs, "in"),
    })
    if err != nil { t.Fatalf("new server: %v", err) }
    if err := srv.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    t.Cleanup(func() { _ = srv.Stop() })
    return srv, name
}

func connect(t *testing.T, name string, f protocol.Format) *Client {
    t.Helper()
    c, err := NewClient(ClientOptions{
        Kind:           "shared",
        Address:        name,
        Format:         f,
        RequestTimeout: 2 * time.Second,
        Backoff:        netstack.Backoff{Attempts: 1},
        Upload:         upload.UploaderOptions{ChunkSize: 5},
    })
    if err != nil { t.Fatalf("new client: %v", err) }
    if err := c.Connect(context.Background()); err != nil { t.Fatalf("connect: %v", err) }
    t.Cleanup(func() { _ = c.Close() })
    return c
}

func eventually(t *testing.T, what string, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for !cond() {
        if time.Now().After(deadline) { t.Fatalf("timed out waiting for %s", what) }
        time.Sleep(5 * time.Millisecond)
    }
}

func echoHandler(_ context.Context, _ transport.ConnID, req *message.EchoRequest) (protocol.Response, error) {
    return &message.EchoResponse{Text: strings.ToUpper(req.Text)}, nil
}

func TestEchoRoundTrip(t *testing.T) {
    srv, name := startServer(t, nil)
    OnRequest(srv, echoHandler)
    for _, f := range []protocol.Format{protocol.FormatCBOR, protocol.FormatJSON} {
        c := connect(t, name, f)
        resp, err := Call[*message.EchoResponse](context.Background(), c, &message.EchoRequest{Text: "hi"})
        if err != nil { t.Fatalf("%s: request: %v", f, err) }
        if resp.Text != "HI" { t.Fatalf("%s: text=%q", f, resp.Text) }
        if c.PendingRequests() != 0 { t.Fatalf("pending left behind") }
    }
}

func TestUnhandledRequestFailsFast(t *testing.T) {
    _, name := startServer(t, nil)
    c := connect(t, name, 0)
    start := time.Now()
    _, err := c.Request(context.Background(), &message.EchoRequest{Text: "x"})
    var re *RemoteError
    if !errors.As(err, &re) || re.Code != message.CodeNoHandler {
        t.Fatalf("err=%v", err)
    }
    if time.Since(start) > time.Second { t.Fatalf("error response took too long") }
}

func TestHandlerErrorBecomesRemoteError(t *testing.T) {
    srv, name := startServer(t, nil)
    OnRequest(srv, func(context.Context, transport.ConnID, *message.EchoRequest) (protocol.Response, error) {
        return nil, errors.New("boom")
    })
    c := connect(t, name, 0)
    _, err := c.Request(context.Background(), &message.EchoRequest{})
    var re *RemoteError
    if !errors.As(err, &re) || re.Code != message.CodeHandlerFailed || !strings.Contains(re.Message, "boom") {
        t.Fatalf("err=%v", err)
    }
}

func chatInbox(c *Client) chan string {
    ch := make(chan string, 8)
    OnNotification(c, func(_ context.Context, _ transport.ConnID, m *message.Chat) { ch <- m.Text })
    return ch
}

func TestGroupBroadcastReachesOnlyMembers(t *testing.T) {
    srv, name := startServer(t, nil)
    c1, c2, c3 := connect(t, name, 0), connect(t, name, 0), connect(t, name, 0)
    in1, in2, in3 := chatInbox(c1), chatInbox(c2), chatInbox(c3)
    for _, c := range []*Client{c1, c2} {
        if err := c.JoinGroup("Manager"); err != nil { t.Fatalf("join: %v", err) }
    }
    eventually(t, "two members", func() bool { return len(srv.Groups().Members("Manager")) == 2 })

    n, err := srv.SendGroupMessage([]string{"Manager"}, &message.Chat{From: "srv", Text: "meeting"})
    if err != nil || n != 2 { t.Fatalf("n=%d err=%v", n, err) }
    for i, in := range []chan string{in1, in2} {
        select {
        case got := <-in:
            if got != "meeting" { t.Fatalf("member %d got %q", i, got) }
        case <-time.After(2 * time.Second):
            t.Fatalf("member %d got nothing", i)
        }
    }
    select {
    case got := <-in3:
        t.Fatalf("non-member received %q", got)
    case <-time.After(100 * time.Millisecond):
    }

    n, err = srv.SendGroupMessage([]string{"Nobody"}, &message.Chat{Text: "void"})
    if err != nil || n != 0 { t.Fatalf("empty group: n=%d err=%v", n, err) }
}

func TestClientGroupSendRelays(t *testing.T) {
    srv, name := startServer(t, nil)
    member, sender := connect(t, name, 0), connect(t, name, protocol.FormatJSON)
    in := chatInbox(member)
    if err := member.JoinGroup("Manager"); err != nil { t.Fatalf("join: %v", err) }
    eventually(t, "membership", func() bool { return len(srv.Groups().Members("Manager")) == 1 })

    n, err := sender.SendGroupMessage(context.Background(), []string{"Manager"}, &message.Chat{From: "bob", Text: "hello"})
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    select {
    case got := <-in:
        if got != "hello" { t.Fatalf("got %q", got) }
    case <-time.After(2 * time.Second):
        t.Fatalf("relayed message not delivered")
    }

    if err := member.LeaveGroup("Manager"); err != nil { t.Fatalf("leave: %v", err) }
    eventually(t, "leave", func() bool { return len(srv.Groups().Members("Manager")) == 0 })
}

func TestDisconnectLeavesGroups(t *testing.T) {
    srv, name := startServer(t, nil)
    c := connect(t, name, 0)
    if err := c.JoinGroup("Manager"); err != nil { t.Fatalf("join: %v", err) }
    eventually(t, "membership", func() bool { return len(srv.Groups().Members("Manager")) == 1 })
    _ = c.Close()
    eventually(t, "cleanup", func() bool { return len(srv.Groups().Members("Manager")) == 0 })
}

func TestUploadEndToEnd(t *testing.T) {
    fs := afero.NewMemMapFs()
    srv, name := startServer(t, fs)
    c := connect(t, name, 0)
    mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

    id, err := c.Upload(context.Background(), "a.txt", strings.NewReader("helloworld"), 10, mtime)
    if err != nil { t.Fatalf("upload: %v", err) }
    snap, ok := srv.Uploads().Snapshot(id)
    if !ok || snap.State != upload.StateCompleted || snap.Received != 10 {
        t.Fatalf("snapshot=%+v ok=%v", snap, ok)
    }
    b, err := afero.ReadFile(fs, "in/a.txt")
    if err != nil || string(b) != "helloworld" { t.Fatalf("content=%q err=%v", b, err) }
    fi, _ := fs.Stat("in/a.txt")
    if !fi.ModTime().Equal(mtime) { t.Fatalf("mtime=%v", fi.ModTime()) }
}

func TestUploadRejectedByPolicy(t *testing.T) {
    _, name := startServer(t, nil)
    c := connect(t, name, 0)
    _, err := c.Upload(context.Background(), "../evil", strings.NewReader("x"), 1, time.Now())
    if !errors.Is(err, upload.ErrRejected) { t.Fatalf("err=%v", err) }
}

func TestServerRequestsClient(t *testing.T) {
    srv, name := startServer(t, nil)
    c := connect(t, name, 0)
    OnRequest(c, echoHandler)
    eventually(t, "client listed", func() bool { return len(srv.Clients()) == 1 })

    resp, err := srv.Request(context.Background(), srv.Clients()[0], &message.EchoRequest{Text: "up"})
    if err != nil { t.Fatalf("request: %v", err) }
    if resp.(*message.EchoResponse).Text != "UP" { t.Fatalf("resp=%+v", resp) }

    if _, err := srv.Request(context.Background(), "ghost", &message.EchoRequest{}); !errors.Is(err, protocol.ErrClientNotExist) {
        t.Fatalf("err=%v", err)
    }
}

func TestCloseClientFailsPendingRequest(t *testing.T) {
    srv, name := startServer(t, nil)
    release := make(chan struct{})
    t.Cleanup(func() { close(release) })
    entered := make(chan struct{}, 1)
    OnRequest(srv, func(ctx context.Context, _ transport.ConnID, _ *message.EchoRequest) (protocol.Response, error) {
        entered <- struct{}{}
        select {
        case <-release:
        case <-ctx.Done():
        }
        return &message.EchoResponse{}, nil
    })
    c := connect(t, name, 0)

    errc := make(chan error, 1)
    go func() {
        _, err := c.Request(context.Background(), &message.EchoRequest{})
        errc <- err
    }()
    <-entered
    ids := srv.Clients()
    if len(ids) != 1 { t.Fatalf("clients=%v", ids) }
    if err := srv.CloseClient(ids[0]); err != nil { t.Fatalf("close client: %v", err) }

    select {
    case err := <-errc:
        if !errors.Is(err, protocol.ErrClientNotConnected) { t.Fatalf("err=%v", err) }
    case <-time.After(2 * time.Second):
        t.Fatalf("pending request not failed")
    }
    eventually(t, "client sees disconnect", func() bool { return !c.Connected() })
    if err := c.Send(&message.Chat{}); !errors.Is(err, protocol.ErrClientNotConnected) {
        t.Fatalf("send after close: %v", err)
    }
    if err := srv.CloseClient(ids[0]); !errors.Is(err, protocol.ErrClientNotExist) {
        t.Fatalf("second close: %v", err)
    }
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
    srv, name := startServer(t, nil)
    OnRequest(srv, echoHandler)
    c := connect(t, name, 0)
    if err := c.conns.Send(c.ID(), []byte{0x0a, 0x03, 'b', 'a', 'd'}); err != nil { t.Fatalf("raw send: %v", err) }
    if _, err := Call[*message.EchoResponse](context.Background(), c, &message.EchoRequest{Text: "ok"}); err != nil {
        t.Fatalf("connection unusable after bad frame: %v", err)
    }
}

func TestServerLifecycle(t *testing.T) {
    name := fmt.Sprintf("node-life-%d", listenSeq.Add(1))
    opts := ServerOptions{Transports: []config.TransportConfig{{Kind: "shared", Listen: []string{name}}}}
    srv, err := NewServer(opts)
    if err != nil { t.Fatalf("new: %v", err) }
    if err := srv.Stop(); !errors.Is(err, protocol.ErrServerNotRunning) { t.Fatalf("stop idle: %v", err) }
    if _, err := srv.SendGroupMessage([]string{"g"}, &message.Chat{}); !errors.Is(err, protocol.ErrServerNotRunning) {
        t.Fatalf("broadcast idle: %v", err)
    }
    if err := srv.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    if err := srv.Start(context.Background()); !errors.Is(err, protocol.ErrServerAlreadyRunning) { t.Fatalf("double start: %v", err) }

    other, _ := NewServer(opts)
    if err := other.Start(context.Background()); !errors.Is(err, protocol.ErrStartServerFailed) {
        t.Fatalf("taken address: %v", err)
    }

    c := connect(t, name, 0)
    if err := srv.Stop(); err != nil { t.Fatalf("stop: %v", err) }
    if srv.Running() { t.Fatalf("still running") }
    eventually(t, "client dropped", func() bool { return !c.Connected() })
    if err := srv.Send("any", &message.Chat{}); !errors.Is(err, protocol.ErrServerNotRunning) { t.Fatalf("send: %v", err) }

    // restart on the same address
    if err := srv.Start(context.Background()); err != nil { t.Fatalf("restart: %v", err) }
    if err := c.Connect(context.Background()); err != nil { t.Fatalf("reconnect: %v", err) }
    if !c.Connected() { t.Fatalf("not reconnected") }
    _ = c.Close()
    if err := srv.Stop(); err != nil { t.Fatalf("final stop: %v", err) }
}

func TestStopDropsFreshConnections(t *testing.T) {
    name := fmt.Sprintf("node-churn-%d", listenSeq.Add(1))
    srv, err := NewServer(ServerOptions{Transports: []config.TransportConfig{{Kind: "shared", Listen: []string{name}}}})
    if err != nil { t.Fatalf("new: %v", err) }
    for i := 0; i < 20; i++ {
        if err := srv.Start(context.Background()); err != nil { t.Fatalf("round %d start: %v", i, err) }
        c := connect(t, name, 0)
        if err := srv.Stop(); err != nil { t.Fatalf("round %d stop: %v", i, err) }
        eventually(t, fmt.Sprintf("round %d client dropped", i), func() bool { return !c.Connected() })
    }
}

// vanishingSession leaves its manager while a frame is being written, as a
// connection torn down by its read loop at that moment would.
type vanishingSession struct {
    mgr *transport.Manager
    id  transport.ConnID
}

func (v *vanishingSession) SendBytes(b []byte) error {
    v.mgr.Remove(v.id)
    return v.mgr.Send(v.id, b)
}

func (*vanishingSession) RecvBytes() ([]byte, error)    { return nil, io.EOF }
func (*vanishingSession) Close() error                  { return nil }
func (*vanishingSession) Peer() transport.PeerInfo      { return transport.PeerInfo{ID: "vanishing"} }
func (*vanishingSession) TransportKind() transport.Kind { return transport.KindShared }
func (*vanishingSession) LocalAddr() net.Addr           { return nil }
func (*vanishingSession) RemoteAddr() net.Addr          { return nil }
func (*vanishingSession) Quality() transport.Quality    { return transport.Quality{} }

func TestServerRequestLostMidSendIsDisconnect(t *testing.T) {
    srv, _ := startServer(t, nil)
    v := &vanishingSession{mgr: srv.conns}
    v.id = srv.conns.Add(v)
    _, err := srv.Request(context.Background(), v.id, &message.EchoRequest{Text: "gone"})
    if !errors.Is(err, protocol.ErrClientNotConnected) || errors.Is(err, protocol.ErrClientNotExist) {
        t.Fatalf("err=%v", err)
    }
    if srv.PendingRequests() != 0 { t.Fatalf("pending left behind") }
}

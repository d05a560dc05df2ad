// Package node wires the transport, codec, correlator, group router and
// upload manager into a message Server and Client.
package node

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/correlator"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol/codec"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

const defaultInboxSize = 256

type inbound struct {
    msg   protocol.Message
    shape protocol.Shape
}

type worker struct {
    conn  transport.ConnID
    inbox chan inbound
}

// endpoint is the part shared by Server and Client: it decodes frames,
// completes responses straight from the read loop and feeds everything else
// to one FIFO worker per connection.
type endpoint struct {
    role      string
    codec     *protocol.Codec
    conns     *transport.Manager
    corr      *correlator.Correlator
    inboxSize int
    *Mux

    mu      sync.Mutex
    ctx     context.Context
    workers map[transport.ConnID]*worker
    wg      sync.WaitGroup

    connectHooks    []func(transport.ConnID)
    disconnectHooks []func(transport.ConnID)
    // released runs after a connection's worker has drained.
    released func(transport.ConnID)
}

func newEndpoint(role string, reg *protocol.Registry, f protocol.Format, timeout time.Duration, inboxSize int) (*endpoint, error) {
    if reg == nil {
        r, err := message.NewRegistry()
        if err != nil { return nil, err }
        reg = r
    }
    formats, err := codec.NewRegistry()
    if err != nil { return nil, err }
    if f == protocol.FormatUnknown { f = protocol.FormatCBOR }
    c, err := protocol.NewCodec(reg, formats, f)
    if err != nil { return nil, err }
    if inboxSize <= 0 { inboxSize = defaultInboxSize }
    conns := transport.NewManager()
    return &endpoint{
        role:      role,
        codec:     c,
        conns:     conns,
        corr:      correlator.New(c, conns, timeout),
        inboxSize: inboxSize,
        Mux:       NewMux(),
        ctx:       context.Background(),
        workers:   make(map[transport.ConnID]*worker),
    }, nil
}

// Codec returns the codec used for every frame.
func (e *endpoint) Codec() *protocol.Codec { return e.codec }

// PendingRequests returns the number of requests awaiting a response.
func (e *endpoint) PendingRequests() int { return e.corr.Pending() }

// logPending reports requests that are about to be failed by a shutdown.
func (e *endpoint) logPending(event string) {
    since, ok := e.corr.Oldest()
    if !ok { return }
    zap.L().Info(e.role+" "+event,
        zap.Int("pending", e.corr.Pending()),
        zap.Duration("oldest", time.Since(since)))
}

// OnConnect registers fn to run when a connection is established.
func (e *endpoint) OnConnect(fn func(transport.ConnID)) {
    e.mu.Lock()
    e.connectHooks = append(e.connectHooks, fn)
    e.mu.Unlock()
}

// OnDisconnect registers fn to run after a connection is gone and its
// queued messages have been processed.
func (e *endpoint) OnDisconnect(fn func(transport.ConnID)) {
    e.mu.Lock()
    e.disconnectHooks = append(e.disconnectHooks, fn)
    e.mu.Unlock()
}

func (e *endpoint) setContext(ctx context.Context) {
    e.mu.Lock()
    e.ctx = ctx
    e.mu.Unlock()
}

// events adapts an endpoint to netstack.Events.
type events struct{ e *endpoint }

func (v events) OnConnect(id transport.ConnID, _ transport.Session) { v.e.connected(id) }
func (v events) OnReceive(id transport.ConnID, frame []byte)      { v.e.received(id, frame) }
func (v events) OnDisconnect(id transport.ConnID, err error)      { v.e.disconnected(id, err) }

func (e *endpoint) connected(id transport.ConnID) {
    w := &worker{conn: id, inbox: make(chan inbound, e.inboxSize)}
    e.mu.Lock()
    e.workers[id] = w
    ctx := e.ctx
    hooks := append([]func(transport.ConnID){}, e.connectHooks...)
    e.mu.Unlock()

    e.wg.Add(1)
    go e.run(ctx, w)
    zap.L().Info(e.role+" connection up", zap.String("conn", string(id)))
    for _, fn := range hooks { fn(id) }
}

// received runs on the connection's read goroutine.
func (e *endpoint) received(id transport.ConnID, frame []byte) {
    msg, shape, err := e.codec.Unmarshal(frame)
    if err != nil {
        zap.L().Warn("dropping undecodable frame", zap.String("conn", string(id)), zap.Int("bytes", len(frame)), zap.Error(err))
        return
    }
    if shape.Kind == protocol.KindResponse {
        if !e.corr.Complete(id, msg.(protocol.Response)) {
            zap.L().Debug("discarding response without pending request", zap.String("conn", string(id)), zap.String("type", shape.TypeID))
        }
        return
    }
    e.mu.Lock()
    w := e.workers[id]
    e.mu.Unlock()
    if w == nil { return }
    w.inbox <- inbound{msg: msg, shape: shape}
}

func (e *endpoint) disconnected(id transport.ConnID, err error) {
    if n := e.corr.FailConnection(id); n > 0 {
        zap.L().Debug("failed pending requests", zap.String("conn", string(id)), zap.Int("count", n))
    }
    e.mu.Lock()
    w := e.workers[id]
    delete(e.workers, id)
    e.mu.Unlock()
    if w != nil { close(w.inbox) }
    if err != nil {
        zap.L().Warn(e.role+" connection lost", zap.String("conn", string(id)), zap.Error(err))
    }
}

func (e *endpoint) run(ctx context.Context, w *worker) {
    defer e.wg.Done()
    for in := range w.inbox {
        e.dispatch(ctx, w.conn, in)
    }
    if e.released != nil { e.released(w.conn) }
    e.mu.Lock()
    hooks := append([]func(transport.ConnID){}, e.disconnectHooks...)
    e.mu.Unlock()
    zap.L().Info(e.role+" connection down", zap.String("conn", string(w.conn)))
    for _, fn := range hooks { fn(w.conn) }
}

func (e *endpoint) dispatch(ctx context.Context, conn transport.ConnID, in inbound) {
    switch in.shape.Kind {
    case protocol.KindRequest:
        e.serve(ctx, conn, in.msg.(protocol.Request))
    case protocol.KindNotification:
        h, ok := e.notification(in.shape.TypeID)
        if !ok {
            zap.L().Debug("no notification handler", zap.String("conn", string(conn)), zap.String("type", in.shape.TypeID))
            return
        }
        h(ctx, conn, in.msg)
    }
}

// serve answers one request. Unhandled or failed requests are answered with
// an error response so the caller does not wait for its timeout.
func (e *endpoint) serve(ctx context.Context, conn transport.ConnID, req protocol.Request) {
    var resp protocol.Response
    h, ok := e.request(req.TypeID())
    if !ok {
        resp = errorResponse(message.CodeNoHandler, fmt.Errorf("no handler for %s", req.TypeID()))
    } else {
        r, err := h(ctx, conn, req)
        switch {
        case err != nil:
            code := message.CodeHandlerFailed
            var re *RemoteError
            if errors.As(err, &re) { code = re.Code }
            resp = errorResponse(code, err)
        case r == nil:
            resp = errorResponse(message.CodeHandlerFailed, fmt.Errorf("%s handler returned no response", req.TypeID()))
        default:
            resp = r
        }
    }
    resp.SetResponseTo(req.RequestID())
    frame, err := e.codec.Marshal(resp)
    if err != nil {
        zap.L().Error("encode response failed", zap.String("type", resp.TypeID()), zap.Error(err))
        fallback := errorResponse(message.CodeInvalid, err)
        fallback.SetResponseTo(req.RequestID())
        if frame, err = e.codec.Marshal(fallback); err != nil { return }
    }
    if err := e.conns.Send(conn, frame); err != nil {
        zap.L().Debug("send response failed", zap.String("conn", string(conn)), zap.String("type", resp.TypeID()), zap.Error(err))
    }
}

func (e *endpoint) send(conn transport.ConnID, msg protocol.Message) error {
    frame, err := e.codec.Marshal(msg)
    if err != nil { return err }
    return e.conns.Send(conn, frame)
}

// call sends req on conn and waits for its response. Error responses are
// turned into *RemoteError.
func (e *endpoint) call(ctx context.Context, conn transport.ConnID, req protocol.Request) (protocol.Response, error) {
    resp, err := e.corr.Send(ctx, conn, req, 0)
    if err != nil { return nil, err }
    if er, ok := resp.(*message.ErrorResponse); ok {
        return nil, &RemoteError{TypeID: req.TypeID(), Code: er.Code, Message: er.Message}
    }
    return resp, nil
}

func (e *endpoint) waitWorkers() { e.wg.Wait() }

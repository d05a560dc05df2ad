package node

import (
    "context"
    "fmt"
    "sync"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// RequestHandler serves one request received on conn. The returned response
// is correlated to req automatically.
type RequestHandler func(ctx context.Context, conn transport.ConnID, req protocol.Request) (protocol.Response, error)

// NotificationHandler consumes one notification received on conn.
type NotificationHandler func(ctx context.Context, conn transport.ConnID, msg protocol.Message)

// Registrar is implemented by Server and Client.
type Registrar interface {
    HandleRequest(typeID string, h RequestHandler)
    HandleNotification(typeID string, h NotificationHandler)
}

// Mux maps type ids to handlers. Registering a type id again replaces the
// previous handler.
type Mux struct {
    mu       sync.RWMutex
    requests map[string]RequestHandler
    notes    map[string]NotificationHandler
}

func NewMux() *Mux {
    return &Mux{requests: make(map[string]RequestHandler), notes: make(map[string]NotificationHandler)}
}

func (m *Mux) HandleRequest(typeID string, h RequestHandler) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if h == nil { delete(m.requests, typeID); return }
    m.requests[typeID] = h
}

func (m *Mux) HandleNotification(typeID string, h NotificationHandler) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if h == nil { delete(m.notes, typeID); return }
    m.notes[typeID] = h
}

func (m *Mux) request(typeID string) (RequestHandler, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    h, ok := m.requests[typeID]
    return h, ok
}

func (m *Mux) notification(typeID string) (NotificationHandler, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    h, ok := m.notes[typeID]
    return h, ok
}

// OnRequest registers a handler for the request type Req, e.g.
//
//  node.OnRequest(srv, func(ctx context.Context, conn transport.ConnID, req *message.EchoRequest) (protocol.Response, error) { ... })
func OnRequest[Req protocol.Request](r Registrar, h func(ctx context.Context, conn transport.ConnID, req Req) (protocol.Response, error)) {
    var zero Req
    r.HandleRequest(zero.TypeID(), func(ctx context.Context, conn transport.ConnID, req protocol.Request) (protocol.Response, error) {
        v, ok := req.(Req)
        if !ok { return nil, fmt.Errorf("%w: unexpected %T", protocol.ErrMalformedPayload, req) }
        return h(ctx, conn, v)
    })
}

// OnNotification registers a handler for the notification type M.
func OnNotification[M protocol.Message](r Registrar, h func(ctx context.Context, conn transport.ConnID, msg M)) {
    var zero M
    r.HandleNotification(zero.TypeID(), func(ctx context.Context, conn transport.ConnID, msg protocol.Message) {
        if v, ok := msg.(M); ok { h(ctx, conn, v) }
    })
}

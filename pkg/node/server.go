package node

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/spf13/afero"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/core/netstack"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/router"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/upload"
)

// ServerOptions configure a Server.
type ServerOptions struct {
    // Transports lists the endpoints to listen on; dial entries are ignored.
    Transports     []config.TransportConfig
    Format         protocol.Format
    RequestTimeout time.Duration
    MaxFrame       int
    InboxSize      int
    // Registry defaults to the built-in messages.
    Registry *protocol.Registry

    Upload       upload.Options
    UploadStore  upload.Store
    UploadPolicy upload.Policy
}

// ServerOptionsFromConfig derives server options from cfg. Uploads are stored
// on the OS filesystem below cfg.UploadDir().
func ServerOptionsFromConfig(cfg *config.Config) (ServerOptions, error) {
    f, err := protocol.ParseFormat(cfg.Protocol.Format)
    if err != nil { return ServerOptions{}, err }
    return ServerOptions{
        Transports:     cfg.Transports,
        Format:         f,
        RequestTimeout: cfg.Protocol.RequestTimeout(),
        MaxFrame:       cfg.Protocol.MaxFrameBytes,
        InboxSize:      cfg.Protocol.InboxSize,
        Upload: upload.Options{
            MaxSessions:  cfg.Upload.MaxSessions,
            IdleTimeout:  cfg.Upload.IdleTimeout(),
            TombstoneTTL: cfg.Upload.TombstoneTTL(),
        },
        UploadStore:  upload.NewFileStore(afero.NewOsFs(), cfg.UploadDir()),
        UploadPolicy: upload.DefaultPolicy{MaxFileSize: cfg.Upload.MaxFileBytes},
    }, nil
}

// Server accepts client connections on every configured transport, answers
// requests through registered handlers and serves group membership and
// file uploads itself.
type Server struct {
    *endpoint
    opts    ServerOptions
    router  *router.Router
    uploads *upload.Manager
    up      atomic.Bool

    life      sync.Mutex
    cancel    context.CancelFunc
    listeners []transport.Listener
    group     *errgroup.Group
}

func NewServer(opts ServerOptions) (*Server, error) {
    ep, err := newEndpoint("server", opts.Registry, opts.Format, opts.RequestTimeout, opts.InboxSize)
    if err != nil { return nil, err }
    store := opts.UploadStore
    if store == nil { store = upload.NewFileStore(afero.NewOsFs(), "uploads") }
    s := &Server{
        endpoint: ep,
        opts:     opts,
        router:   router.New(ep.codec, ep.conns),
        uploads:  upload.NewManager(store, opts.UploadPolicy, opts.Upload),
    }
    ep.released = func(id transport.ConnID) {
        s.router.OnDisconnect(id)
        s.uploads.OnDisconnect(id)
    }
    s.registerBuiltins()
    return s, nil
}

func (s *Server) registerBuiltins() {
    OnNotification(s, func(_ context.Context, conn transport.ConnID, m *message.JoinGroup) {
        if err := s.router.Join(conn, m.Group); err != nil {
            zap.L().Warn("join group failed", zap.String("conn", string(conn)), zap.String("group", m.Group), zap.Error(err))
        }
    })
    OnNotification(s, func(_ context.Context, conn transport.ConnID, m *message.LeaveGroup) {
        if err := s.router.Leave(conn, m.Group); err != nil {
            zap.L().Warn("leave group failed", zap.String("conn", string(conn)), zap.String("group", m.Group), zap.Error(err))
        }
    })
    OnRequest(s, s.relay)

    serveUpload := func(ctx context.Context, conn transport.ConnID, req protocol.Request) (protocol.Response, error) {
        return s.uploads.Handle(ctx, conn, req)
    }
    s.HandleRequest((*message.UploadFileBeginRequest)(nil).TypeID(), serveUpload)
    s.HandleRequest((*message.UploadFileEndRequest)(nil).TypeID(), serveUpload)
    s.HandleRequest((*message.UploadFileCancelRequest)(nil).TypeID(), serveUpload)
    OnNotification(s, func(_ context.Context, conn transport.ConnID, m *message.UploadFileData) {
        if err := s.uploads.Data(conn, m); err != nil {
            zap.L().Warn("upload chunk rejected", zap.String("conn", string(conn)), zap.String("session", m.SessionID.String()), zap.Error(err))
        }
    })
}

// relay forwards a client's group message without re-encoding it.
func (s *Server) relay(_ context.Context, conn transport.ConnID, req *message.GroupSendRequest) (protocol.Response, error) {
    if len(req.Frame) == 0 { return nil, protocol.ErrMsgDataInvalid }
    if _, _, err := s.codec.Unmarshal(req.Frame); err != nil { return nil, err }
    n, err := s.router.BroadcastFrame(req.Groups, req.Frame)
    if err != nil { return nil, err }
    zap.L().Debug("group message relayed", zap.String("from", string(conn)), zap.Strings("groups", req.Groups), zap.Int("delivered", n))
    return &message.GroupSendResponse{Delivered: n}, nil
}

// Start opens every listener and begins accepting clients. The server runs
// until Stop is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
    s.life.Lock()
    defer s.life.Unlock()
    if s.up.Load() { return protocol.ErrServerAlreadyRunning }

    ls, err := netstack.ListenAll(ctx, s.opts.Transports, s.opts.MaxFrame)
    if err != nil { return fmt.Errorf("%w: %w", protocol.ErrStartServerFailed, err) }

    runCtx, cancel := context.WithCancel(ctx)
    s.setContext(runCtx)
    s.router.Open()
    g := &errgroup.Group{}
    for _, l := range ls {
        l := l
        g.Go(func() error { return netstack.Serve(runCtx, l, s.conns, events{s.endpoint}) })
    }
    g.Go(func() error {
        s.uploads.Run(runCtx)
        return nil
    })
    s.cancel, s.listeners, s.group = cancel, ls, g
    s.up.Store(true)
    zap.L().Info("server started", zap.Int("listeners", len(ls)))
    return nil
}

// Stop closes the listeners and every client connection and waits until
// all connection workers have finished.
func (s *Server) Stop() error {
    s.life.Lock()
    defer s.life.Unlock()
    if !s.up.Load() { return protocol.ErrServerNotRunning }
    s.up.Store(false)
    s.logPending("stopping with requests in flight")
    s.router.Shutdown()
    s.cancel()
    for _, l := range s.listeners { _ = l.Close() }
    s.conns.CloseAll()
    if err := s.group.Wait(); err != nil {
        zap.L().Warn("listener stopped with error", zap.Error(err))
    }
    s.waitWorkers()
    s.uploads.Close()
    s.cancel, s.listeners, s.group = nil, nil, nil
    zap.L().Info("server stopped")
    return nil
}

// Running reports whether the server has been started and not stopped.
func (s *Server) Running() bool { return s.up.Load() }

// Listeners returns the addresses the server is listening on.
func (s *Server) Listeners() []string {
    s.life.Lock()
    defer s.life.Unlock()
    out := make([]string, 0, len(s.listeners))
    for _, l := range s.listeners { out = append(out, l.Addr().String()) }
    return out
}

// Clients lists the connected clients.
func (s *Server) Clients() []transport.ConnID { return s.conns.List() }

// Send delivers msg to one client.
func (s *Server) Send(conn transport.ConnID, msg protocol.Message) error {
    if !s.up.Load() { return protocol.ErrServerNotRunning }
    return s.send(conn, msg)
}

// Request sends req to one client and waits for its response.
func (s *Server) Request(ctx context.Context, conn transport.ConnID, req protocol.Request) (protocol.Response, error) {
    if !s.up.Load() { return nil, protocol.ErrServerNotRunning }
    if _, ok := s.conns.Get(conn); !ok { return nil, fmt.Errorf("%w: %s", protocol.ErrClientNotExist, conn) }
    resp, err := s.call(ctx, conn, req)
    // The connection was live above, so losing it since is a disconnect.
    if errors.Is(err, protocol.ErrClientNotExist) { return nil, fmt.Errorf("%w: %s", protocol.ErrClientNotConnected, conn) }
    return resp, err
}

// SendGroupMessage broadcasts msg to every member of groups and returns how
// many clients it was written to.
func (s *Server) SendGroupMessage(groups []string, msg protocol.Message) (int, error) {
    return s.router.Broadcast(groups, msg)
}

// CloseClient disconnects one client.
func (s *Server) CloseClient(conn transport.ConnID) error {
    if !s.up.Load() { return protocol.ErrServerNotRunning }
    return s.conns.Close(conn)
}

// Groups exposes group membership.
func (s *Server) Groups() *router.Router { return s.router }

// Uploads exposes the upload sessions.
func (s *Server) Uploads() *upload.Manager { return s.uploads }

// Package upload implements negotiated, chunked, cancellable file uploads:
// the receiving session manager and the sending Uploader.
package upload

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/patrickmn/go-cache"
    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Options tune a Manager.
type Options struct {
    // MaxSessions caps concurrently open sessions when positive.
    MaxSessions int
    // IdleTimeout fails sessions without traffic for this long when positive.
    IdleTimeout time.Duration
    // TombstoneTTL is how long terminal sessions stay queryable.
    TombstoneTTL time.Duration
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
    ID            uuid.UUID
    Conn          transport.ConnID
    FileName      string
    FileSize      int64
    Received      int64
    State         State
    LastWriteTime time.Time
    Path          string
}

type session struct {
    id       uuid.UUID
    conn     transport.ConnID
    fileName string
    fileSize int64

    cancelled atomic.Bool
    touched   atomic.Int64

    mu        sync.Mutex
    state     State
    received  int64
    lastWrite time.Time
    path      string
    sink      Sink
}

func (s *session) touch() { s.touched.Store(time.Now().UnixNano()) }

// snapshot must be called with s.mu held.
func (s *session) snapshot() Snapshot {
    return Snapshot{
        ID: s.id, Conn: s.conn, FileName: s.fileName, FileSize: s.fileSize,
        Received: s.received, State: s.state, LastWriteTime: s.lastWrite, Path: s.path,
    }
}

// Manager owns the upload sessions of a server.
type Manager struct {
    store  Store
    policy Policy
    opts   Options

    mu       sync.RWMutex
    sessions map[uuid.UUID]*session
    byConn   map[transport.ConnID]map[uuid.UUID]struct{}

    tombs *cache.Cache
}

func NewManager(store Store, policy Policy, opts Options) *Manager {
    if policy == nil { policy = DefaultPolicy{} }
    if opts.TombstoneTTL <= 0 { opts.TombstoneTTL = 10 * time.Minute }
    return &Manager{
        store:    store,
        policy:   policy,
        opts:     opts,
        sessions: make(map[uuid.UUID]*session),
        byConn:   make(map[transport.ConnID]map[uuid.UUID]struct{}),
        tombs:    cache.New(opts.TombstoneTTL, opts.TombstoneTTL/2),
    }
}

// Handle serves one upload message received on conn. Requests yield a
// response; data chunks yield only an error.
func (m *Manager) Handle(ctx context.Context, conn transport.ConnID, msg protocol.Message) (protocol.Response, error) {
    switch v := msg.(type) {
    case *message.UploadFileBeginRequest:
        return m.Begin(ctx, conn, v), nil
    case *message.UploadFileData:
        return nil, m.Data(conn, v)
    case *message.UploadFileEndRequest:
        return m.End(conn, v), nil
    case *message.UploadFileCancelRequest:
        return m.Cancel(conn, v), nil
    }
    return nil, fmt.Errorf("%w: %s is not handled by the upload manager", protocol.ErrMsgDataInvalid, msg.TypeID())
}

// Begin negotiates a new session.
func (m *Manager) Begin(ctx context.Context, conn transport.ConnID, req *message.UploadFileBeginRequest) *message.UploadFileBeginResponse {
    resp := &message.UploadFileBeginResponse{}
    resp.SetResponseTo(req.RequestID())
    reject := func(reason string) *message.UploadFileBeginResponse {
        zap.L().Info("upload rejected",
            zap.String("conn", string(conn)),
            zap.String("file", req.FileName),
            zap.Int64("size", req.FileSize),
            zap.String("reason", reason))
        resp.AllowUpload = false
        resp.Message = reason
        resp.SessionID = uuid.Nil
        return resp
    }

    s := &session{id: uuid.New(), conn: conn, fileName: req.FileName, fileSize: req.FileSize, state: StateNegotiating}
    s.touch()
    m.mu.Lock()
    if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
        m.mu.Unlock()
        return reject(fmt.Sprintf("too many concurrent uploads (%d)", m.opts.MaxSessions))
    }
    m.sessions[s.id] = s
    mine := m.byConn[conn]
    if mine == nil {
        mine = make(map[uuid.UUID]struct{})
        m.byConn[conn] = mine
    }
    mine[s.id] = struct{}{}
    m.mu.Unlock()

    err := m.policy.Admit(ctx, Admission{SessionID: s.id, Conn: conn, FileName: req.FileName, FileSize: req.FileSize})
    var sink Sink
    if err == nil { sink, err = m.store.Create(s.id, req.FileName) }

    s.mu.Lock()
    if err == nil && s.state != StateNegotiating {
        err = fmt.Errorf("session %s while negotiating", s.state)
    }
    if err != nil {
        s.mu.Unlock()
        if sink != nil { _ = sink.Discard() }
        m.unlink(s)
        return reject(err.Error())
    }
    s.sink = sink
    s.state = StateAccepted
    s.mu.Unlock()

    zap.L().Info("upload accepted",
        zap.String("conn", string(conn)),
        zap.String("session", s.id.String()),
        zap.String("file", s.fileName),
        zap.Int64("size", s.fileSize))
    resp.AllowUpload = true
    resp.SessionID = s.id
    return resp
}

// Data appends one chunk.
func (m *Manager) Data(conn transport.ConnID, msg *message.UploadFileData) error {
    s, err := m.lookup(conn, msg.SessionID)
    if err != nil { return err }
    if len(msg.Chunk) == 0 { return fmt.Errorf("%w: empty chunk", protocol.ErrMsgDataInvalid) }
    if s.cancelled.Load() { return fmt.Errorf("%w: session %s cancelled", protocol.ErrInvalidSessionState, s.id) }

    s.mu.Lock()
    defer s.mu.Unlock()
    if s.cancelled.Load() || !s.state.accepting() {
        return fmt.Errorf("%w: session %s is %s", protocol.ErrInvalidSessionState, s.id, s.state)
    }
    if s.received+int64(len(msg.Chunk)) > s.fileSize {
        return fmt.Errorf("%w: chunk of %d bytes at %d exceeds size %d", protocol.ErrOffsetInvalid, len(msg.Chunk), s.received, s.fileSize)
    }
    n, werr := s.sink.Write(msg.Chunk)
    s.received += int64(n)
    s.touch()
    if werr != nil {
        s.state = StateFailed
        _ = s.sink.Discard()
        m.finish(s, s.snapshot())
        return fmt.Errorf("write chunk: %w", werr)
    }
    s.state = StateTransferring
    return nil
}

// End finalizes the upload when every byte arrived.
func (m *Manager) End(conn transport.ConnID, req *message.UploadFileEndRequest) *message.UploadFileEndResponse {
    resp := &message.UploadFileEndResponse{SessionID: req.SessionID}
    resp.SetResponseTo(req.RequestID())
    s, err := m.lookup(conn, req.SessionID)
    if err != nil {
        resp.Message = err.Error()
        return resp
    }
    if s.cancelled.Load() {
        resp.Message = "upload cancelled"
        return resp
    }

    s.mu.Lock()
    if !s.state.accepting() {
        resp.Message = fmt.Sprintf("session is %s", s.state)
        s.mu.Unlock()
        return resp
    }
    if s.received != s.fileSize {
        resp.Message = fmt.Sprintf("received %d of %d bytes", s.received, s.fileSize)
        s.mu.Unlock()
        return resp
    }
    path, cerr := s.sink.Commit(req.LastWriteTime)
    s.path = path
    s.lastWrite = req.LastWriteTime
    if cerr != nil {
        s.state = StateFailed
        _ = s.sink.Discard()
        resp.Message = cerr.Error()
    } else {
        s.state = StateCompleted
        resp.Success = true
    }
    snap := s.snapshot()
    s.mu.Unlock()
    m.finish(s, snap)

    if resp.Success {
        zap.L().Info("upload completed",
            zap.String("session", s.id.String()),
            zap.String("path", path),
            zap.Int64("bytes", snap.Received))
    } else {
        zap.L().Warn("upload commit failed", zap.String("session", s.id.String()), zap.Error(cerr))
    }
    return resp
}

// Cancel aborts a non-terminal session at the uploader's request.
func (m *Manager) Cancel(conn transport.ConnID, req *message.UploadFileCancelRequest) *message.UploadFileCancelResponse {
    resp := &message.UploadFileCancelResponse{SessionID: req.SessionID}
    resp.SetResponseTo(req.RequestID())
    s, err := m.lookup(conn, req.SessionID)
    if err != nil {
        resp.Message = err.Error()
        return resp
    }
    if err := m.abort(s, StateCancelled); err != nil {
        resp.Message = err.Error()
        return resp
    }
    resp.Success = true
    return resp
}

// Abort cancels a session locally, e.g. from an operator command.
func (m *Manager) Abort(id uuid.UUID) error {
    m.mu.RLock()
    s := m.sessions[id]
    m.mu.RUnlock()
    if s == nil { return m.missing(id) }
    return m.abort(s, StateCancelled)
}

func (m *Manager) abort(s *session, to State) error {
    if to == StateCancelled { s.cancelled.Store(true) }
    s.mu.Lock()
    if s.state.Terminal() {
        st := s.state
        s.mu.Unlock()
        return fmt.Errorf("%w: session %s is %s", protocol.ErrInvalidSessionState, s.id, st)
    }
    s.state = to
    if s.sink != nil { _ = s.sink.Discard() }
    snap := s.snapshot()
    s.mu.Unlock()
    m.finish(s, snap)
    zap.L().Info("upload aborted",
        zap.String("session", s.id.String()),
        zap.String("state", to.String()),
        zap.Int64("received", snap.Received))
    return nil
}

// OnDisconnect fails every open session of conn.
func (m *Manager) OnDisconnect(conn transport.ConnID) {
    m.mu.RLock()
    var open []*session
    for id := range m.byConn[conn] {
        if s := m.sessions[id]; s != nil { open = append(open, s) }
    }
    m.mu.RUnlock()
    for _, s := range open { _ = m.abort(s, StateFailed) }
}

// Run fails idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
    if m.opts.IdleTimeout <= 0 { return }
    t := time.NewTicker(m.opts.IdleTimeout / 2)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            m.SweepIdle(time.Now())
        }
    }
}

// SweepIdle fails sessions untouched since now-IdleTimeout and returns how
// many were failed.
func (m *Manager) SweepIdle(now time.Time) int {
    if m.opts.IdleTimeout <= 0 { return 0 }
    cutoff := now.Add(-m.opts.IdleTimeout).UnixNano()
    m.mu.RLock()
    var idle []*session
    for _, s := range m.sessions {
        if s.touched.Load() < cutoff { idle = append(idle, s) }
    }
    m.mu.RUnlock()
    n := 0
    for _, s := range idle {
        if m.abort(s, StateFailed) == nil { n++ }
    }
    return n
}

// Close fails every open session.
func (m *Manager) Close() {
    m.mu.RLock()
    all := make([]*session, 0, len(m.sessions))
    for _, s := range m.sessions { all = append(all, s) }
    m.mu.RUnlock()
    for _, s := range all { _ = m.abort(s, StateFailed) }
}

// Snapshot returns the live or recently terminated session id.
func (m *Manager) Snapshot(id uuid.UUID) (Snapshot, bool) {
    m.mu.RLock()
    s := m.sessions[id]
    m.mu.RUnlock()
    if s != nil {
        s.mu.Lock()
        defer s.mu.Unlock()
        return s.snapshot(), true
    }
    if v, ok := m.tombs.Get(id.String()); ok { return v.(Snapshot), true }
    return Snapshot{}, false
}

// Active lists open sessions ordered by file name.
func (m *Manager) Active() []Snapshot {
    m.mu.RLock()
    all := make([]*session, 0, len(m.sessions))
    for _, s := range m.sessions { all = append(all, s) }
    m.mu.RUnlock()
    out := make([]Snapshot, 0, len(all))
    for _, s := range all {
        s.mu.Lock()
        out = append(out, s.snapshot())
        s.mu.Unlock()
    }
    sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
    return out
}

func (m *Manager) lookup(conn transport.ConnID, id uuid.UUID) (*session, error) {
    m.mu.RLock()
    s := m.sessions[id]
    m.mu.RUnlock()
    if s == nil || s.conn != conn { return nil, m.missing(id) }
    return s, nil
}

func (m *Manager) missing(id uuid.UUID) error {
    if v, ok := m.tombs.Get(id.String()); ok {
        return fmt.Errorf("%w: session %s is %s", protocol.ErrInvalidSessionState, id, v.(Snapshot).State)
    }
    return fmt.Errorf("%w: %s", protocol.ErrSessionNotFound, id)
}

func (m *Manager) unlink(s *session) {
    m.mu.Lock()
    defer m.mu.Unlock()
    delete(m.sessions, s.id)
    if mine := m.byConn[s.conn]; mine != nil {
        delete(mine, s.id)
        if len(mine) == 0 { delete(m.byConn, s.conn) }
    }
}

// finish removes a terminal session and leaves its tombstone.
func (m *Manager) finish(s *session, snap Snapshot) {
    m.tombs.SetDefault(s.id.String(), snap)
    m.unlink(s)
}

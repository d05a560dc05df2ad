package transport

import (
    "fmt"
    "sort"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// Manager is the live connection set of an endpoint. Sessions are added when
// established and removed when their read loop ends.
type Manager struct {
    mu    sync.RWMutex
    conns map[ConnID]Session
    seq   atomic.Uint64
}

func NewManager() *Manager { return &Manager{conns: make(map[ConnID]Session)} }

// Add registers s and returns the id it is reachable under. The session's own
// peer id is used unless empty or already taken.
func (m *Manager) Add(s Session) ConnID {
    id := s.Peer().ID
    if id == "" { id = TempConnID(s.TransportKind(), s.RemoteAddr()) }
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, taken := m.conns[id]; taken {
        id = ConnID(fmt.Sprintf("%s#%d", id, m.seq.Add(1)))
    }
    m.conns[id] = s
    return id
}

// Get returns the session registered under id.
func (m *Manager) Get(id ConnID) (Session, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    s, ok := m.conns[id]
    return s, ok
}

// Send writes one frame to the connection. The table lock is not held during
// the write.
func (m *Manager) Send(id ConnID, frame []byte) error {
    s, ok := m.Get(id)
    if !ok { return fmt.Errorf("%w: %s", protocol.ErrClientNotExist, id) }
    if len(frame) == 0 { return protocol.ErrMsgDataInvalid }
    return s.SendBytes(frame)
}

// Close closes the connection; its read loop observes the error and removes it.
func (m *Manager) Close(id ConnID) error {
    s, ok := m.Get(id)
    if !ok { return fmt.Errorf("%w: %s", protocol.ErrClientNotExist, id) }
    zap.L().Debug("closing connection", zap.String("conn", string(id)))
    return s.Close()
}

// Remove drops id from the table without closing it.
func (m *Manager) Remove(id ConnID) Session {
    m.mu.Lock()
    defer m.mu.Unlock()
    s := m.conns[id]
    delete(m.conns, id)
    return s
}

// List returns the live connection ids sorted.
func (m *Manager) List() []ConnID {
    m.mu.RLock()
    out := make([]ConnID, 0, len(m.conns))
    for id := range m.conns { out = append(out, id) }
    m.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

func (m *Manager) Len() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return len(m.conns)
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
    m.mu.RLock()
    all := make([]Session, 0, len(m.conns))
    for _, s := range m.conns { all = append(all, s) }
    m.mu.RUnlock()
    for _, s := range all { _ = s.Close() }
}

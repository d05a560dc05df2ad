// Package router keeps named-group membership per connection and fans
// messages out to group members.
package router

import (
    "fmt"
    "sort"
    "strings"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Sender transmits one encoded frame on a connection.
type Sender interface {
    Send(id transport.ConnID, frame []byte) error
}

type set map[transport.ConnID]struct{}

// Router maps group names to member connections. It only operates while
// open; the owning server opens it on start and shuts it down on stop.
type Router struct {
    codec  *protocol.Codec
    sender Sender
    open   atomic.Bool

    mu     sync.RWMutex
    groups map[string]set
    byConn map[transport.ConnID]map[string]struct{}
}

func New(codec *protocol.Codec, s Sender) *Router {
    return &Router{
        codec:  codec,
        sender: s,
        groups: make(map[string]set),
        byConn: make(map[transport.ConnID]map[string]struct{}),
    }
}

// Open enables the router.
func (r *Router) Open() { r.open.Store(true) }

// Shutdown disables the router and forgets every membership.
func (r *Router) Shutdown() {
    r.open.Store(false)
    r.mu.Lock()
    r.groups = make(map[string]set)
    r.byConn = make(map[transport.ConnID]map[string]struct{})
    r.mu.Unlock()
}

func (r *Router) check(group string) error {
    if !r.open.Load() { return protocol.ErrServerNotRunning }
    if strings.TrimSpace(group) == "" { return fmt.Errorf("%w: empty group name", protocol.ErrMsgDataInvalid) }
    return nil
}

// Join adds conn to group. Joining twice is a no-op.
func (r *Router) Join(conn transport.ConnID, group string) error {
    if err := r.check(group); err != nil { return err }
    r.mu.Lock()
    defer r.mu.Unlock()
    members := r.groups[group]
    if members == nil {
        members = make(set)
        r.groups[group] = members
    }
    members[conn] = struct{}{}
    mine := r.byConn[conn]
    if mine == nil {
        mine = make(map[string]struct{})
        r.byConn[conn] = mine
    }
    mine[group] = struct{}{}
    return nil
}

// Leave removes conn from group. Leaving a group conn is not in is a no-op.
func (r *Router) Leave(conn transport.ConnID, group string) error {
    if err := r.check(group); err != nil { return err }
    r.mu.Lock()
    defer r.mu.Unlock()
    r.leaveLocked(conn, group)
    return nil
}

func (r *Router) leaveLocked(conn transport.ConnID, group string) {
    if members := r.groups[group]; members != nil {
        delete(members, conn)
        if len(members) == 0 { delete(r.groups, group) }
    }
    if mine := r.byConn[conn]; mine != nil {
        delete(mine, group)
        if len(mine) == 0 { delete(r.byConn, conn) }
    }
}

// OnDisconnect removes conn from every group.
func (r *Router) OnDisconnect(conn transport.ConnID) {
    r.mu.Lock()
    defer r.mu.Unlock()
    for g := range r.byConn[conn] { r.leaveLocked(conn, g) }
}

// Broadcast encodes msg once and sends it to the union of the members of
// groups. It returns the number of connections the frame was written to.
func (r *Router) Broadcast(groups []string, msg protocol.Message) (int, error) {
    if !r.open.Load() { return 0, protocol.ErrServerNotRunning }
    frame, err := r.codec.Marshal(msg)
    if err != nil { return 0, err }
    return r.BroadcastFrame(groups, frame)
}

// BroadcastFrame sends an already encoded frame. Members whose send fails
// are skipped; there is no rollback.
func (r *Router) BroadcastFrame(groups []string, frame []byte) (int, error) {
    if !r.open.Load() { return 0, protocol.ErrServerNotRunning }
    if len(frame) == 0 { return 0, protocol.ErrMsgDataInvalid }
    targets := r.union(groups)
    sent := 0
    for _, id := range targets {
        if err := r.sender.Send(id, frame); err != nil {
            zap.L().Debug("broadcast skipped member", zap.String("conn", string(id)), zap.Error(err))
            continue
        }
        sent++
    }
    return sent, nil
}

func (r *Router) union(groups []string) []transport.ConnID {
    r.mu.RLock()
    seen := make(set)
    for _, g := range groups {
        for id := range r.groups[g] { seen[id] = struct{}{} }
    }
    r.mu.RUnlock()
    out := make([]transport.ConnID, 0, len(seen))
    for id := range seen { out = append(out, id) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// Members returns the sorted members of group.
func (r *Router) Members(group string) []transport.ConnID {
    return r.union([]string{group})
}

// Groups returns the sorted groups conn belongs to.
func (r *Router) Groups(conn transport.ConnID) []string {
    r.mu.RLock()
    out := make([]string, 0, len(r.byConn[conn]))
    for g := range r.byConn[conn] { out = append(out, g) }
    r.mu.RUnlock()
    sort.Strings(out)
    return out
}

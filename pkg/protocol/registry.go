package protocol

import (
    "fmt"
    "sort"
    "sync"
)

// Shape describes one registered message type.
type Shape struct {
    TypeID string
    Kind   Kind
    // Upload is set when instances implement UploadMessage.
    Upload bool
    // New returns a fresh zero value, always a pointer.
    New func() Message
}

// NewShape derives a Shape from the message type T.
func NewShape[T any, P interface {
    *T
    Message
}](kind Kind) Shape {
    probe := P(new(T))
    _, upload := any(probe).(UploadMessage)
    return Shape{
        TypeID: probe.TypeID(),
        Kind:   kind,
        Upload: upload,
        New:    func() Message { return P(new(T)) },
    }
}

// Registry maps type ids to shapes. It is filled once at startup and read
// concurrently afterwards.
type Registry struct {
    mu   sync.RWMutex
    byID map[string]Shape
}

func NewRegistry() *Registry { return &Registry{byID: make(map[string]Shape)} }

// Register adds s. It fails with ErrDuplicateTypeID when the id is taken.
func (r *Registry) Register(s Shape) error {
    if s.TypeID == "" { return fmt.Errorf("%w: empty type id", ErrMsgDataInvalid) }
    if s.New == nil { return fmt.Errorf("%w: %s has no factory", ErrMsgDataInvalid, s.TypeID) }
    probe := s.New()
    if probe == nil || probe.TypeID() != s.TypeID {
        return fmt.Errorf("%w: factory for %s builds a different type", ErrMsgDataInvalid, s.TypeID)
    }
    var ok bool
    switch s.Kind {
    case KindNotification:
        ok = true
    case KindRequest:
        _, ok = probe.(Request)
    case KindResponse:
        _, ok = probe.(Response)
    }
    if !ok { return fmt.Errorf("%w: %s does not satisfy kind %s", ErrMsgDataInvalid, s.TypeID, s.Kind) }
    if _, up := probe.(UploadMessage); up != s.Upload {
        return fmt.Errorf("%w: %s upload flag mismatch", ErrMsgDataInvalid, s.TypeID)
    }

    r.mu.Lock()
    defer r.mu.Unlock()
    if _, dup := r.byID[s.TypeID]; dup { return fmt.Errorf("%w: %s", ErrDuplicateTypeID, s.TypeID) }
    r.byID[s.TypeID] = s
    return nil
}

// MustRegister panics on error. Intended for static registration lists.
func (r *Registry) MustRegister(shapes ...Shape) {
    for _, s := range shapes {
        if err := r.Register(s); err != nil { panic(err) }
    }
}

// Resolve returns the shape registered under typeID.
func (r *Registry) Resolve(typeID string) (Shape, error) {
    r.mu.RLock()
    s, ok := r.byID[typeID]
    r.mu.RUnlock()
    if !ok { return Shape{}, fmt.Errorf("%w: %q", ErrUnknownTypeID, typeID) }
    return s, nil
}

// Shapes lists every registered shape ordered by type id.
func (r *Registry) Shapes() []Shape {
    r.mu.RLock()
    out := make([]Shape, 0, len(r.byID))
    for _, s := range r.byID { out = append(out, s) }
    r.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
    return out
}

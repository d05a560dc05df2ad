package codec

import (
    "sort"
    "sync"
)

// Content types of the built-in codecs.
const (
    ContentJSON = "application/json"
    ContentCBOR = "application/cbor"
)

// Codec marshals message bodies. Implementations must be safe for
// concurrent use and deterministic for equal inputs.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct {
    mu     sync.RWMutex
    byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with JSON and CBOR.
func NewRegistry() (*Registry, error) {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    c, err := CBOR()
    if err != nil { return nil, err }
    r.Register(c)
    return r, nil
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
    r.mu.Lock()
    r.byType[c.ContentType()] = c
    r.mu.Unlock()
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.byType[contentType]
}

// ContentTypes lists the registered content types.
func (r *Registry) ContentTypes() []string {
    r.mu.RLock()
    out := make([]string, 0, len(r.byType))
    for k := range r.byType { out = append(out, k) }
    r.mu.RUnlock()
    sort.Strings(out)
    return out
}

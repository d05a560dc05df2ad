package codec

import (
    "bytes"
    "testing"
    "time"
)

type sample struct {
    Name  string    `json:"name"`
    Count int       `json:"count"`
    Data  []byte    `json:"data"`
    When  time.Time `json:"when"`
}

func TestJSONCodec(t *testing.T) {
    c := JSON()
    in := map[string]any{"a": 1, "b": "x"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["a"].(float64) != 1 || out["b"].(string) != "x" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestCBORCodecStruct(t *testing.T) {
    c, err := CBOR()
    if err != nil { t.Fatalf("new cbor: %v", err) }
    in := sample{Name: "a.txt", Count: 3, Data: []byte{1, 2, 3}, When: time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out sample
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Name != in.Name || out.Count != in.Count || !bytes.Equal(out.Data, in.Data) {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
    if !out.When.Equal(in.When) { t.Fatalf("time mismatch: %v != %v", out.When, in.When) }
}

func TestCBORDeterministic(t *testing.T) {
    c, err := CBOR()
    if err != nil { t.Fatalf("new cbor: %v", err) }
    a, _ := c.Marshal(map[string]int{"z": 1, "a": 2, "m": 3})
    b, _ := c.Marshal(map[string]int{"m": 3, "z": 1, "a": 2})
    if !bytes.Equal(a, b) { t.Fatalf("canonical encoding differs") }
}

func TestRegistry(t *testing.T) {
    r, err := NewRegistry()
    if err != nil { t.Fatalf("registry: %v", err) }
    if r.Get(ContentJSON) == nil || r.Get(ContentCBOR) == nil { t.Fatalf("built-ins missing: %v", r.ContentTypes()) }
    if r.Get("application/x-unknown") != nil { t.Fatalf("unexpected codec") }
    if got := len(r.ContentTypes()); got != 2 { t.Fatalf("content types = %d", got) }
}

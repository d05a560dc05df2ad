package protocol

import (
    "fmt"
    "strings"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol/codec"
)

// Format is carried as the first byte of Envelope.Payload and selects the
// codec for the rest of it.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return "json"
    case FormatCBOR:
        return "cbor"
    default:
        return "unknown"
    }
}

// ParseFormat maps a configuration name to a Format.
func ParseFormat(s string) (Format, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "json":
        return FormatJSON, nil
    case "cbor", "":
        return FormatCBOR, nil
    }
    return FormatUnknown, fmt.Errorf("unknown payload format %q", s)
}

func (f Format) contentType() string {
    switch f {
    case FormatJSON:
        return codec.ContentJSON
    case FormatCBOR:
        return codec.ContentCBOR
    default:
        return ""
    }
}

// CodecFor returns the codec registered for f.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
    if c := r.Get(f.contentType()); c != nil { return c, nil }
    return nil, fmt.Errorf("no codec for format %d", f)
}

// Peers pick their payload format independently, so one connection may
// carry JSON from one side and CBOR from the other. The leading format byte
// lets the receiver choose a decoder per frame; the envelope around it stays
// format-neutral and routing never looks inside the payload.

// encodePayload serializes m with the codec for f behind its format byte.
func encodePayload(r *codec.Registry, f Format, m Message) ([]byte, error) {
    c, err := CodecFor(r, f)
    if err != nil { return nil, err }
    b, err := c.Marshal(m)
    if err != nil { return nil, fmt.Errorf("%s body: %w", f, err) }
    out := make([]byte, 0, 1+len(b))
    out = append(out, byte(f))
    return append(out, b...), nil
}

// decodePayload fills m from a payload in any registered format and reports
// the format the sender chose.
func decodePayload(r *codec.Registry, payload []byte, m Message) (Format, error) {
    if len(payload) == 0 { return FormatUnknown, fmt.Errorf("%w: empty payload", ErrMalformedPayload) }
    f := Format(payload[0])
    c, err := CodecFor(r, f)
    if err != nil { return f, fmt.Errorf("%w: %v", ErrMalformedPayload, err) }
    if err := c.Unmarshal(payload[1:], m); err != nil { return f, fmt.Errorf("%w: %s body: %v", ErrMalformedPayload, f, err) }
    return f, nil
}

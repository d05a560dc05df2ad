package protocol

import (
    "fmt"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol/codec"
)

// Codec turns registered messages into envelopes and frames and back.
type Codec struct {
    reg     *Registry
    formats *codec.Registry
    format  Format
}

// NewCodec returns a codec that encodes with format f. Decoding accepts every
// format known to formats.
func NewCodec(reg *Registry, formats *codec.Registry, f Format) (*Codec, error) {
    if _, err := CodecFor(formats, f); err != nil { return nil, err }
    return &Codec{reg: reg, formats: formats, format: f}, nil
}

// Registry returns the type registry backing the codec.
func (c *Codec) Registry() *Registry { return c.reg }

// Format returns the encoding used for outgoing payloads.
func (c *Codec) Format() Format { return c.format }

// Encode serializes m into an envelope.
func (c *Codec) Encode(m Message) (Envelope, error) {
    if m == nil { return Envelope{}, ErrMsgDataInvalid }
    if _, err := c.reg.Resolve(m.TypeID()); err != nil { return Envelope{}, err }
    payload, err := encodePayload(c.formats, c.format, m)
    if err != nil { return Envelope{}, fmt.Errorf("encode %s: %w", m.TypeID(), err) }
    return Envelope{TypeID: m.TypeID(), Payload: payload}, nil
}

// Decode resolves the envelope's type and parses its payload.
func (c *Codec) Decode(e Envelope) (Message, Shape, error) {
    s, err := c.reg.Resolve(e.TypeID)
    if err != nil { return nil, Shape{}, err }
    m := s.New()
    if _, err := decodePayload(c.formats, e.Payload, m); err != nil { return nil, s, fmt.Errorf("%s: %w", e.TypeID, err) }
    return m, s, nil
}

// Marshal encodes m straight into a frame.
func (c *Codec) Marshal(m Message) ([]byte, error) {
    e, err := c.Encode(m)
    if err != nil { return nil, err }
    return e.MarshalBinary()
}

// Unmarshal decodes one frame.
func (c *Codec) Unmarshal(frame []byte) (Message, Shape, error) {
    var e Envelope
    if err := e.UnmarshalBinary(frame); err != nil { return nil, Shape{}, err }
    return c.Decode(e)
}

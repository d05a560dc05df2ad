package protocol

import (
    "fmt"

    "google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers on the wire.
const (
    fieldTypeID  protowire.Number = 1
    fieldPayload protowire.Number = 2
)

// Envelope is the wire-level unit: a registry key and the encoded body.
//
// Frames use the protobuf wire format so other stacks can read them with a
// two-field message definition:
//
//	message Envelope { string type_id = 1; bytes payload = 2; }
type Envelope struct {
    TypeID  string
    Payload []byte
}

// MarshalBinary encodes the envelope into one frame.
func (e Envelope) MarshalBinary() ([]byte, error) {
    if e.TypeID == "" { return nil, fmt.Errorf("%w: envelope without type id", ErrMsgDataInvalid) }
    b := make([]byte, 0, len(e.TypeID)+len(e.Payload)+8)
    b = protowire.AppendTag(b, fieldTypeID, protowire.BytesType)
    b = protowire.AppendString(b, e.TypeID)
    b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
    b = protowire.AppendBytes(b, e.Payload)
    return b, nil
}

// UnmarshalBinary decodes a frame. Unknown fields are skipped; a repeated
// field keeps the last value.
func (e *Envelope) UnmarshalBinary(b []byte) error {
    *e = Envelope{}
    for len(b) > 0 {
        num, typ, n := protowire.ConsumeTag(b)
        if n < 0 { return fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n)) }
        b = b[n:]
        switch {
        case num == fieldTypeID && typ == protowire.BytesType:
            v, m := protowire.ConsumeString(b)
            if m < 0 { return fmt.Errorf("%w: type id: %v", ErrMalformedPayload, protowire.ParseError(m)) }
            e.TypeID = v
            n = m
        case num == fieldPayload && typ == protowire.BytesType:
            v, m := protowire.ConsumeBytes(b)
            if m < 0 { return fmt.Errorf("%w: payload: %v", ErrMalformedPayload, protowire.ParseError(m)) }
            e.Payload = append([]byte(nil), v...)
            n = m
        default:
            n = protowire.ConsumeFieldValue(num, typ, b)
            if n < 0 { return fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n)) }
        }
        b = b[n:]
    }
    if e.TypeID == "" { return fmt.Errorf("%w: envelope without type id", ErrMalformedPayload) }
    return nil
}

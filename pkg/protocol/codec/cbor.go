package codec

import (
    cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct{ enc cbor.EncMode; dec cbor.DecMode }

// CBOR returns a deterministic CBOR codec (RFC 8949 core profile). Field
// names follow json struct tags; times are RFC 3339 strings with nanoseconds.
func CBOR() (Codec, error) {
    opts := cbor.CanonicalEncOptions()
    opts.Time = cbor.TimeRFC3339Nano
    em, err := opts.EncMode()
    if err != nil { return nil, err }
    dm, err := cbor.DecOptions{}.DecMode()
    if err != nil { return nil, err }
    return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return ContentCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

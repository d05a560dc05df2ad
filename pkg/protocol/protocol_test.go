package protocol

import (
    "bytes"
    "errors"
    "testing"

    "github.com/google/uuid"
    "google.golang.org/protobuf/encoding/protowire"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol/codec"
)

type pingNote struct {
    Text string `json:"text"`
}

func (*pingNote) TypeID() string { return "test.ping" }

type sumRequest struct {
    RequestBase
    A, B int
}

func (*sumRequest) TypeID() string { return "test.sum.request" }

type sumResponse struct {
    ResponseBase
    Sum int `json:"sum"`
}

func (*sumResponse) TypeID() string { return "test.sum.response" }

type chunkNote struct {
    Session uuid.UUID `json:"session"`
    Chunk   []byte    `json:"chunk"`
}

func (*chunkNote) TypeID() string              { return "test.chunk" }
func (c *chunkNote) UploadSessionID() uuid.UUID { return c.Session }

func newTestCodec(t *testing.T, f Format) *Codec {
    t.Helper()
    reg := NewRegistry()
    reg.MustRegister(
        NewShape[pingNote](KindNotification),
        NewShape[sumRequest](KindRequest),
        NewShape[sumResponse](KindResponse),
        NewShape[chunkNote](KindNotification),
    )
    formats, err := codec.NewRegistry()
    if err != nil { t.Fatalf("formats: %v", err) }
    c, err := NewCodec(reg, formats, f)
    if err != nil { t.Fatalf("codec: %v", err) }
    return c
}

func TestRegistryDuplicateAndUnknown(t *testing.T) {
    reg := NewRegistry()
    if err := reg.Register(NewShape[pingNote](KindNotification)); err != nil { t.Fatalf("register: %v", err) }
    if err := reg.Register(NewShape[pingNote](KindNotification)); !errors.Is(err, ErrDuplicateTypeID) {
        t.Fatalf("want ErrDuplicateTypeID, got %v", err)
    }
    if _, err := reg.Resolve("nope"); !errors.Is(err, ErrUnknownTypeID) {
        t.Fatalf("want ErrUnknownTypeID, got %v", err)
    }
    s, err := reg.Resolve("test.ping")
    if err != nil || s.Kind != KindNotification { t.Fatalf("resolve: %v %+v", err, s) }
}

func TestRegistryRejectsWrongKind(t *testing.T) {
    reg := NewRegistry()
    if err := reg.Register(NewShape[pingNote](KindRequest)); !errors.Is(err, ErrMsgDataInvalid) {
        t.Fatalf("notification registered as request: %v", err)
    }
    if err := reg.Register(NewShape[sumRequest](KindResponse)); err == nil {
        t.Fatalf("request registered as response")
    }
    if err := reg.Register(Shape{TypeID: "x"}); err == nil { t.Fatalf("nil factory accepted") }
}

func TestUploadFlagDerived(t *testing.T) {
    if s := NewShape[chunkNote](KindNotification); !s.Upload { t.Fatalf("upload flag not derived") }
    if s := NewShape[pingNote](KindNotification); s.Upload { t.Fatalf("unexpected upload flag") }
}

func TestCodecRoundTrip(t *testing.T) {
    for _, f := range []Format{FormatJSON, FormatCBOR} {
        c := newTestCodec(t, f)
        req := &sumRequest{A: 2, B: 3}
        req.SetRequestID(uuid.New())
        frame, err := c.Marshal(req)
        if err != nil { t.Fatalf("%s marshal: %v", f, err) }
        m, s, err := c.Unmarshal(frame)
        if err != nil { t.Fatalf("%s unmarshal: %v", f, err) }
        got, ok := m.(*sumRequest)
        if !ok || s.Kind != KindRequest { t.Fatalf("%s decoded %T kind %s", f, m, s.Kind) }
        if *got != *req { t.Fatalf("%s mismatch: %+v != %+v", f, got, req) }

        chunk := &chunkNote{Session: uuid.New(), Chunk: []byte("hello")}
        frame, err = c.Marshal(chunk)
        if err != nil { t.Fatalf("%s marshal chunk: %v", f, err) }
        m, s, err = c.Unmarshal(frame)
        if err != nil || !s.Upload { t.Fatalf("%s chunk: %v upload=%v", f, err, s.Upload) }
        if gc := m.(*chunkNote); gc.Session != chunk.Session || !bytes.Equal(gc.Chunk, chunk.Chunk) {
            t.Fatalf("%s chunk mismatch", f)
        }
    }
}

func TestCodecMixedFormats(t *testing.T) {
    enc := newTestCodec(t, FormatJSON)
    dec := newTestCodec(t, FormatCBOR)
    frame, err := enc.Marshal(&pingNote{Text: "hi"})
    if err != nil { t.Fatalf("marshal: %v", err) }
    m, _, err := dec.Unmarshal(frame)
    if err != nil { t.Fatalf("unmarshal: %v", err) }
    if m.(*pingNote).Text != "hi" { t.Fatalf("mismatch") }
}

func TestPayloadReportsSenderFormat(t *testing.T) {
    for _, f := range []Format{FormatJSON, FormatCBOR} {
        e, err := newTestCodec(t, f).Encode(&pingNote{Text: "hi"})
        if err != nil { t.Fatalf("%s encode: %v", f, err) }
        if Format(e.Payload[0]) != f { t.Fatalf("%s: leading byte %d", f, e.Payload[0]) }
        formats, _ := codec.NewRegistry()
        var got pingNote
        seen, err := decodePayload(formats, e.Payload, &got)
        if err != nil || seen != f || got.Text != "hi" { t.Fatalf("%s decode: %v %s %+v", f, err, seen, got) }
    }
    e, _ := newTestCodec(t, FormatJSON).Encode(&pingNote{Text: "hi"})
    if !bytes.HasPrefix(e.Payload[1:], []byte("{")) { t.Fatalf("json body = %q", e.Payload[1:]) }
}

func TestCodecDecodeErrors(t *testing.T) {
    c := newTestCodec(t, FormatCBOR)
    if _, _, err := c.Decode(Envelope{TypeID: "missing", Payload: []byte{byte(FormatJSON), '{', '}'}}); !errors.Is(err, ErrUnknownTypeID) {
        t.Fatalf("want ErrUnknownTypeID, got %v", err)
    }
    if _, _, err := c.Decode(Envelope{TypeID: "test.ping"}); !errors.Is(err, ErrMalformedPayload) {
        t.Fatalf("empty payload: %v", err)
    }
    if _, _, err := c.Decode(Envelope{TypeID: "test.ping", Payload: []byte{byte(FormatJSON), '{'}}); !errors.Is(err, ErrMalformedPayload) {
        t.Fatalf("truncated json: %v", err)
    }
    if _, _, err := c.Decode(Envelope{TypeID: "test.ping", Payload: []byte{99, 1, 2}}); !errors.Is(err, ErrMalformedPayload) {
        t.Fatalf("unknown format byte: %v", err)
    }
    if _, _, err := c.Unmarshal([]byte{0xff, 0xff}); !errors.Is(err, ErrMalformedPayload) {
        t.Fatalf("garbage frame: %v", err)
    }
}

func TestEncodeUnregistered(t *testing.T) {
    c := NewRegistry()
    formats, _ := codec.NewRegistry()
    cd, err := NewCodec(c, formats, FormatJSON)
    if err != nil { t.Fatalf("codec: %v", err) }
    if _, err := cd.Encode(&pingNote{}); !errors.Is(err, ErrUnknownTypeID) { t.Fatalf("want ErrUnknownTypeID, got %v", err) }
}

func TestEnvelopeSkipsUnknownFields(t *testing.T) {
    in := Envelope{TypeID: "test.ping", Payload: []byte{1, 2, 3}}
    b, err := in.MarshalBinary()
    if err != nil { t.Fatalf("marshal: %v", err) }
    b = protowire.AppendTag(b, 9, protowire.VarintType)
    b = protowire.AppendVarint(b, 42)
    var out Envelope
    if err := out.UnmarshalBinary(b); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.TypeID != in.TypeID || !bytes.Equal(out.Payload, in.Payload) { t.Fatalf("mismatch: %+v", out) }

    var empty Envelope
    if err := empty.UnmarshalBinary(nil); !errors.Is(err, ErrMalformedPayload) { t.Fatalf("empty frame: %v", err) }
}

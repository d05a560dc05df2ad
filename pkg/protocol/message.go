package protocol

import "github.com/google/uuid"

// Kind is the closed set of message variants.
type Kind uint8

const (
    KindUnknown Kind = iota
    KindNotification
    KindRequest
    KindResponse
)

func (k Kind) String() string {
    switch k {
    case KindNotification:
        return "notification"
    case KindRequest:
        return "request"
    case KindResponse:
        return "response"
    default:
        return "unknown"
    }
}

// Message is any registered application message. TypeID must be a constant
// of the concrete type and stable across versions.
type Message interface {
    TypeID() string
}

// Request is a message that expects exactly one Response.
type Request interface {
    Message
    RequestID() uuid.UUID
    SetRequestID(uuid.UUID)
}

// Response answers the Request whose id it carries.
type Response interface {
    Message
    ResponseTo() uuid.UUID
    SetResponseTo(uuid.UUID)
}

// UploadMessage marks messages that belong to one upload session.
type UploadMessage interface {
    Message
    UploadSessionID() uuid.UUID
}

// RequestBase is embedded by request messages.
type RequestBase struct {
    ID uuid.UUID `json:"id"`
}

func (b *RequestBase) RequestID() uuid.UUID      { return b.ID }
func (b *RequestBase) SetRequestID(id uuid.UUID) { b.ID = id }

// ResponseBase is embedded by response messages.
type ResponseBase struct {
    RequestID uuid.UUID `json:"requestId"`
}

func (b *ResponseBase) ResponseTo() uuid.UUID      { return b.RequestID }
func (b *ResponseBase) SetResponseTo(id uuid.UUID) { b.RequestID = id }

package message

import "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"

// Error codes carried by ErrorResponse.
const (
    CodeNoHandler     = "no_handler"
    CodeHandlerFailed = "handler_failed"
    CodeInvalid       = "invalid"
)

// ErrorResponse answers a request that could not be served.
type ErrorResponse struct {
    protocol.ResponseBase
    Code    string `json:"code"`
    Message string `json:"message"`
}

func (*ErrorResponse) TypeID() string { return "error.response" }

// Chat is a demo notification relayed between clients.
type Chat struct {
    From string `json:"from"`
    Text string `json:"text"`
}

func (*Chat) TypeID() string { return "chat.message" }

type EchoRequest struct {
    protocol.RequestBase
    Text string `json:"text"`
}

func (*EchoRequest) TypeID() string { return "echo.request" }

type EchoResponse struct {
    protocol.ResponseBase
    Text string `json:"text"`
}

func (*EchoResponse) TypeID() string { return "echo.response" }

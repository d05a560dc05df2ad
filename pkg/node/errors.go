package node

import (
    "context"
    "fmt"

    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// RemoteError is returned by Request when the peer answered with an error
// response instead of the expected one.
type RemoteError struct {
    TypeID  string // the request that failed
    Code    string
    Message string
}

func (e *RemoteError) Error() string {
    return fmt.Sprintf("%s failed remotely (%s): %s", e.TypeID, e.Code, e.Message)
}

func errorResponse(code string, err error) *message.ErrorResponse {
    return &message.ErrorResponse{Code: code, Message: err.Error()}
}

// Requester sends a request and waits for its response.
type Requester interface {
    Request(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Call issues req through r and asserts the response type.
func Call[Resp protocol.Response](ctx context.Context, r Requester, req protocol.Request) (Resp, error) {
    var zero Resp
    resp, err := r.Request(ctx, req)
    if err != nil { return zero, err }
    v, ok := resp.(Resp)
    if !ok { return zero, fmt.Errorf("%w: %s answered with %s", protocol.ErrMalformedPayload, req.TypeID(), resp.TypeID()) }
    return v, nil
}

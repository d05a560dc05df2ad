package message

import "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"

// Shapes is the static registration list of every built-in message.
func Shapes() []protocol.Shape {
    return []protocol.Shape{
        protocol.NewShape[JoinGroup](protocol.KindNotification),
        protocol.NewShape[LeaveGroup](protocol.KindNotification),
        protocol.NewShape[GroupSendRequest](protocol.KindRequest),
        protocol.NewShape[GroupSendResponse](protocol.KindResponse),

        protocol.NewShape[UploadFileBeginRequest](protocol.KindRequest),
        protocol.NewShape[UploadFileBeginResponse](protocol.KindResponse),
        protocol.NewShape[UploadFileData](protocol.KindNotification),
        protocol.NewShape[UploadFileEndRequest](protocol.KindRequest),
        protocol.NewShape[UploadFileEndResponse](protocol.KindResponse),
        protocol.NewShape[UploadFileCancelRequest](protocol.KindRequest),
        protocol.NewShape[UploadFileCancelResponse](protocol.KindResponse),

        protocol.NewShape[ErrorResponse](protocol.KindResponse),
        protocol.NewShape[Chat](protocol.KindNotification),
        protocol.NewShape[EchoRequest](protocol.KindRequest),
        protocol.NewShape[EchoResponse](protocol.KindResponse),
    }
}

// Register adds the built-in shapes to r.
func Register(r *protocol.Registry) error {
    for _, s := range Shapes() {
        if err := r.Register(s); err != nil { return err }
    }
    return nil
}

// NewRegistry returns a registry holding the built-in shapes.
func NewRegistry() (*protocol.Registry, error) {
    r := protocol.NewRegistry()
    if err := Register(r); err != nil { return nil, err }
    return r, nil
}

package message

import "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"

// JoinGroup adds the sending connection to Group.
type JoinGroup struct {
    Group string `json:"group"`
}

func (*JoinGroup) TypeID() string { return "group.join" }

// LeaveGroup removes the sending connection from Group.
type LeaveGroup struct {
    Group string `json:"group"`
}

func (*LeaveGroup) TypeID() string { return "group.leave" }

// GroupSendRequest asks the server to relay Frame, an encoded envelope, to
// every member of Groups.
type GroupSendRequest struct {
    protocol.RequestBase
    Groups []string `json:"groups"`
    Frame  []byte   `json:"frame"`
}

func (*GroupSendRequest) TypeID() string { return "group.send.request" }

type GroupSendResponse struct {
    protocol.ResponseBase
    Delivered int `json:"delivered"`
}

func (*GroupSendResponse) TypeID() string { return "group.send.response" }

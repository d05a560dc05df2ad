package message

import (
    "time"

    "github.com/google/uuid"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// UploadFileBeginRequest opens an upload. The session id is assigned by the
// receiver, so the request carries none.
type UploadFileBeginRequest struct {
    protocol.RequestBase
    FileName string `json:"fileName"`
    FileSize int64  `json:"fileSize"`
}

func (*UploadFileBeginRequest) TypeID() string             { return "upload.begin.request" }
func (*UploadFileBeginRequest) UploadSessionID() uuid.UUID { return uuid.Nil }

type UploadFileBeginResponse struct {
    protocol.ResponseBase
    AllowUpload bool      `json:"allowUpload"`
    Message     string    `json:"message,omitempty"`
    SessionID   uuid.UUID `json:"uploadSessionId"`
}

func (*UploadFileBeginResponse) TypeID() string               { return "upload.begin.response" }
func (m *UploadFileBeginResponse) UploadSessionID() uuid.UUID { return m.SessionID }

// UploadFileData carries one chunk. It is fire-and-forget.
type UploadFileData struct {
    SessionID uuid.UUID `json:"uploadSessionId"`
    Chunk     []byte    `json:"chunk"`
}

func (*UploadFileData) TypeID() string               { return "upload.data" }
func (m *UploadFileData) UploadSessionID() uuid.UUID { return m.SessionID }

type UploadFileEndRequest struct {
    protocol.RequestBase
    SessionID     uuid.UUID `json:"uploadSessionId"`
    LastWriteTime time.Time `json:"lastWriteTime"`
}

func (*UploadFileEndRequest) TypeID() string               { return "upload.end.request" }
func (m *UploadFileEndRequest) UploadSessionID() uuid.UUID { return m.SessionID }

type UploadFileEndResponse struct {
    protocol.ResponseBase
    Success   bool      `json:"success"`
    Message   string    `json:"message,omitempty"`
    SessionID uuid.UUID `json:"uploadSessionId"`
}

func (*UploadFileEndResponse) TypeID() string               { return "upload.end.response" }
func (m *UploadFileEndResponse) UploadSessionID() uuid.UUID { return m.SessionID }

type UploadFileCancelRequest struct {
    protocol.RequestBase
    SessionID uuid.UUID `json:"uploadSessionId"`
}

func (*UploadFileCancelRequest) TypeID() string               { return "upload.cancel.request" }
func (m *UploadFileCancelRequest) UploadSessionID() uuid.UUID { return m.SessionID }

type UploadFileCancelResponse struct {
    protocol.ResponseBase
    Success   bool      `json:"success"`
    Message   string    `json:"message,omitempty"`
    SessionID uuid.UUID `json:"uploadSessionId"`
}

func (*UploadFileCancelResponse) TypeID() string               { return "upload.cancel.response" }
func (m *UploadFileCancelResponse) UploadSessionID() uuid.UUID { return m.SessionID }

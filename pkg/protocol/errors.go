package protocol

import "errors"

// Connection and lifecycle errors.
var (
    ErrClientNotConnected   = errors.New("client not connected")
    ErrClientNotExist       = errors.New("client does not exist")
    ErrServerNotRunning     = errors.New("server not running")
    ErrServerAlreadyRunning = errors.New("server already running")
    ErrStartServerFailed    = errors.New("start server failed")
)

// Argument errors.
var (
    ErrCountInvalid   = errors.New("count invalid")
    ErrOffsetInvalid  = errors.New("offset invalid")
    ErrMsgDataInvalid = errors.New("message data invalid")
)

// Codec, correlation and upload session errors.
var (
    ErrDuplicateTypeID     = errors.New("duplicate type id")
    ErrUnknownTypeID       = errors.New("unknown type id")
    ErrMalformedPayload    = errors.New("malformed payload")
    ErrRequestTimeout      = errors.New("request timeout")
    ErrSessionNotFound     = errors.New("upload session not found")
    ErrInvalidSessionState = errors.New("invalid upload session state")
)

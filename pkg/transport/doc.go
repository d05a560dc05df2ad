// Package transport defines the connection abstraction the message layer runs
// on and a connection table keyed by ConnID.
//
// Key concepts:
// - Transport: dials/listens for Sessions of a specific Kind (tcp, udp, pipe, shared, quic)
// - Session: one connection delivering discrete frames in both directions
// - FrameConn: u32 little-endian length framing shared by the stream kinds
// - Manager: the live connection set; send and close by ConnID
package transport

package transport

import (
    "context"
    "fmt"
    "net"
    "strings"
    "time"
)

// Kind identifies the link type a session runs over.
type Kind int

const (
    KindUnknown Kind = iota
    KindTCP
    KindUDP
    KindPipe
    KindShared
    KindQUIC
)

func (k Kind) String() string {
    switch k {
    case KindTCP:
        return "tcp"
    case KindUDP:
        return "udp"
    case KindPipe:
        return "pipe"
    case KindShared:
        return "shared"
    case KindQUIC:
        return "quic"
    default:
        return "unknown"
    }
}

// ParseKind maps a configuration name to a Kind. "mem" and "winpipe" are
// accepted as aliases of shared and pipe.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "tcp":
        return KindTCP, nil
    case "udp":
        return KindUDP, nil
    case "pipe", "winpipe":
        return KindPipe, nil
    case "shared", "mem":
        return KindShared, nil
    case "quic":
        return KindQUIC, nil
    }
    return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
}

// ConnID identifies one live connection inside a Manager.
type ConnID string

// PeerInfo bundles the connection identity and the remote address string.
type PeerInfo struct {
    ID   ConnID
    Addr string // transport-dependent address string
}

// Quality is a snapshot of connection activity.
type Quality struct {
    EstablishedAt time.Time
    LastSeen      time.Time
    FramesIn      uint64
    FramesOut     uint64
}

// Stream carries discrete message frames.
// Exactly one reader goroutine is expected; SendBytes may be called concurrently.
type Stream interface {
    // SendBytes sends one frame (an encoded envelope).
    SendBytes([]byte) error
    // RecvBytes blocks for the next frame.
    RecvBytes() ([]byte, error)
    Close() error
}

// Session is one established connection.
type Session interface {
    Stream
    Peer() PeerInfo
    TransportKind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr
    Quality() Quality
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    // Addr returns the local listening address.
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
    Kind() Kind
    // Listen accepts inbound sessions on address until ctx is done or the
    // listener is closed.
    Listen(ctx context.Context, address string) (Listener, error)
    // Dial creates an outbound session. ctx bounds only the dial itself.
    Dial(ctx context.Context, address string) (Session, error)
}

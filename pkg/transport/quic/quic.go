package quic

import (
    "context"
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "fmt"
    "io"
    "math/big"
    "net"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

const alpn = "sis-msg"

// preamble is written by the dialer right after opening the stream so the
// listener can accept it before any application frame is sent.
var preamble = []byte{'S', 'I', 'S', 1}

// Transport implements QUIC sessions carrying length-prefixed frames on one
// bidirectional stream, opened by the dialer and accepted by the listener.
type Transport struct {
    tlsConf  *tls.Config
    quicConf *quicgo.Config
    maxFrame int
}

// New builds a transport with an ephemeral self-signed server certificate.
func New(maxFrame int) (*Transport, error) {
    cert, err := selfSignedCert()
    if err != nil { return nil, fmt.Errorf("quic: certificate: %w", err) }
    tlsConf := &tls.Config{
        Certificates: []tls.Certificate{cert},
        NextProtos:   []string{alpn},
        MinVersion:   tls.VersionTLS13,
    }
    qconf := &quicgo.Config{KeepAlivePeriod: 15 * time.Second, MaxIdleTimeout: time.Minute}
    return &Transport{tlsConf: tlsConf, quicConf: qconf, maxFrame: maxFrame}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
    if err != nil { return nil, err }
    lctx, cancel := context.WithCancel(ctx)
    ql := &listener{l: l, maxFrame: t.maxFrame, backlog: transport.NewBacklog(8), cancel: cancel}
    go ql.acceptLoop(lctx)
    go func() {
        select {
        case <-ctx.Done():
            _ = ql.Close()
        case <-ql.backlog.Done():
        }
    }()
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Session, error) {
    // Peers authenticate at the application layer; the certificate is ephemeral.
    tlsClient := &tls.Config{
        InsecureSkipVerify: true,
        NextProtos:         []string{alpn},
        MinVersion:         tls.VersionTLS13,
    }
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil { return nil, err }
    st, err := c.OpenStreamSync(ctx)
    if err != nil {
        _ = c.CloseWithError(0, "open stream")
        return nil, err
    }
    if _, err := st.Write(preamble); err != nil {
        _ = c.CloseWithError(0, "preamble")
        return nil, err
    }
    return newSession(c, st, t.maxFrame), nil
}

// ---- Listener ----

type listener struct {
    l        *quicgo.Listener
    maxFrame int
    backlog  *transport.Backlog
    cancel   context.CancelFunc
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    return l.backlog.Accept(ctx)
}

func (l *listener) Close() error {
    if !l.backlog.Close() { return nil }
    l.cancel()
    return l.l.Close()
}

func (l *listener) acceptLoop(ctx context.Context) {
    for {
        c, err := l.l.Accept(ctx)
        if err != nil { return }
        go l.handshake(ctx, c)
    }
}

func (l *listener) handshake(ctx context.Context, c quicgo.Connection) {
    hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()
    st, err := c.AcceptStream(hctx)
    if err != nil {
        _ = c.CloseWithError(0, "no stream")
        return
    }
    var got [4]byte
    if _, err := io.ReadFull(st, got[:]); err != nil || string(got[:]) != string(preamble) {
        zap.L().Debug("quic preamble rejected", zap.String("remote", c.RemoteAddr().String()))
        _ = c.CloseWithError(1, "bad preamble")
        return
    }
    _ = l.backlog.Push(ctx, newSession(c, st, l.maxFrame))
}

// ---- Session ----

type session struct {
    *transport.FrameConn
    peer transport.PeerInfo
    c    quicgo.Connection
}

// streamConn closes the whole connection when the frame stream is closed.
type streamConn struct {
    quicgo.Stream
    c quicgo.Connection
}

func (sc streamConn) Close() error {
    _ = sc.Stream.Close()
    return sc.c.CloseWithError(0, "")
}

func newSession(c quicgo.Connection, st quicgo.Stream, maxFrame int) *session {
    return &session{
        FrameConn: transport.NewFrameConn(streamConn{Stream: st, c: c}, maxFrame),
        peer:      transport.PeerInfo{ID: transport.TempConnID(transport.KindQUIC, c.RemoteAddr()), Addr: c.RemoteAddr().String()},
        c:         c,
    }
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindQUIC }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

// selfSignedCert generates a short-lived self-signed TLS certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

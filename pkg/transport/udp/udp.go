package udp

import (
    "context"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// maxDatagram is the largest frame carried in one datagram.
const maxDatagram = 64 * 1024

// UDPTransport implements a datagram transport carrying one frame per datagram.
// Inbound sessions are demultiplexed by remote address on the listening socket.
type UDPTransport struct{}

func New() *UDPTransport { return &UDPTransport{} }

func (t *UDPTransport) Kind() transport.Kind { return transport.KindUDP }

func (t *UDPTransport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    laddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.ListenUDP("udp", laddr)
    if err != nil { return nil, err }
    ul := &udpListener{
        conn:     c,
        sessions: make(map[string]*udpSession),
        newCh:    make(chan *udpSession, 8),
        closeCh:  make(chan struct{}),
    }
    go ul.readLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = ul.Close()
        case <-ul.closeCh:
        }
    }()
    return ul, nil
}

func (t *UDPTransport) Dial(_ context.Context, address string) (transport.Session, error) {
    raddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.DialUDP("udp", nil, raddr)
    if err != nil { return nil, err }
    s := newSession(c, raddr, true)
    go s.recvLoop()
    return s, nil
}

// ---- Listener/demux ----

type udpListener struct {
    conn     *net.UDPConn
    mu       sync.Mutex
    sessions map[string]*udpSession
    newCh    chan *udpSession
    closeCh  chan struct{}
    once     sync.Once
}

func (l *udpListener) Addr() net.Addr { return l.conn.LocalAddr() }

func (l *udpListener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, transport.ErrListenerClosed
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *udpListener) Close() error {
    var err error
    l.once.Do(func() {
        close(l.closeCh)
        err = l.conn.Close()
        l.mu.Lock()
        for _, s := range l.sessions { s.markClosed() }
        l.sessions = map[string]*udpSession{}
        l.mu.Unlock()
    })
    return err
}

func (l *udpListener) forget(key string) {
    l.mu.Lock()
    delete(l.sessions, key)
    l.mu.Unlock()
}

func (l *udpListener) readLoop() {
    buf := make([]byte, maxDatagram)
    for {
        n, raddr, err := l.conn.ReadFromUDP(buf)
        if err != nil { return }
        key := raddr.String()
        l.mu.Lock()
        s, ok := l.sessions[key]
        if !ok {
            s = newSession(l.conn, raddr, false)
            s.onClose = func() { l.forget(key) }
            l.sessions[key] = s
        }
        l.mu.Unlock()
        if !ok {
            select {
            case l.newCh <- s:
            default:
                l.forget(key)
                continue
            }
        }
        pkt := make([]byte, n)
        copy(pkt, buf[:n])
        s.deliver(pkt)
    }
}

// ---- Session ----

type udpSession struct {
    peer     transport.PeerInfo
    conn     *net.UDPConn
    raddr    *net.UDPAddr
    outbound bool
    rxCh     chan []byte
    closed   chan struct{}
    once     sync.Once
    onClose  func()

    establishedAt time.Time
    lastSeen      atomic.Int64
    in, out       atomic.Uint64
}

func newSession(c *net.UDPConn, raddr *net.UDPAddr, outbound bool) *udpSession {
    return &udpSession{
        peer:          transport.PeerInfo{ID: transport.TempConnID(transport.KindUDP, raddr), Addr: raddr.String()},
        conn:          c,
        raddr:         raddr,
        outbound:      outbound,
        rxCh:          make(chan []byte, 64),
        closed:        make(chan struct{}),
        establishedAt: time.Now(),
    }
}

func (s *udpSession) Peer() transport.PeerInfo { return s.peer }
func (s *udpSession) TransportKind() transport.Kind { return transport.KindUDP }
func (s *udpSession) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *udpSession) RemoteAddr() net.Addr { return s.raddr }

func (s *udpSession) Quality() transport.Quality {
    q := transport.Quality{EstablishedAt: s.establishedAt, FramesIn: s.in.Load(), FramesOut: s.out.Load()}
    if ns := s.lastSeen.Load(); ns != 0 { q.LastSeen = time.Unix(0, ns) }
    return q
}

// deliver queues an inbound datagram, dropping it when the reader lags.
func (s *udpSession) deliver(pkt []byte) {
    select {
    case <-s.closed:
    case s.rxCh <- pkt:
    default:
    }
}

func (s *udpSession) recvLoop() {
    buf := make([]byte, maxDatagram)
    for {
        n, err := s.conn.Read(buf)
        if err != nil {
            s.markClosed()
            return
        }
        pkt := make([]byte, n)
        copy(pkt, buf[:n])
        s.deliver(pkt)
    }
}

func (s *udpSession) markClosed() {
    s.once.Do(func() { close(s.closed) })
}

func (s *udpSession) Close() error {
    select {
    case <-s.closed:
        return nil
    default:
    }
    s.markClosed()
    if s.onClose != nil { s.onClose() }
    if s.outbound { return s.conn.Close() }
    return nil
}

func (s *udpSession) SendBytes(b []byte) error {
    select {
    case <-s.closed:
        return protocol.ErrClientNotConnected
    default:
    }
    if len(b) > maxDatagram { return protocol.ErrCountInvalid }
    var err error
    if s.outbound {
        _, err = s.conn.Write(b)
    } else {
        _, err = s.conn.WriteToUDP(b, s.raddr)
    }
    if err != nil { return err }
    s.out.Add(1)
    s.lastSeen.Store(time.Now().UnixNano())
    return nil
}

func (s *udpSession) RecvBytes() ([]byte, error) {
    select {
    case pkt := <-s.rxCh:
        s.in.Add(1)
        s.lastSeen.Store(time.Now().UnixNano())
        return pkt, nil
    case <-s.closed:
        return nil, protocol.ErrClientNotConnected
    }
}

package transport

import (
    "bufio"
    "encoding/binary"
    "fmt"
    "io"
    "sync"
    "sync/atomic"
    "time"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// DefaultMaxFrame bounds a single frame on stream transports.
const DefaultMaxFrame = 1 << 24

// FrameConn implements Stream over a byte stream using u32 little-endian
// length prefixes. Writes are serialized; reads are expected from one goroutine.
type FrameConn struct {
    wmu sync.Mutex
    rw  io.ReadWriteCloser
    br  *bufio.Reader
    bw  *bufio.Writer
    max int

    closed    atomic.Bool
    closeOnce sync.Once
    closeErr  error

    establishedAt time.Time
    lastSeen      atomic.Int64
    in, out       atomic.Uint64
}

// NewFrameConn wraps rw. maxFrame <= 0 selects DefaultMaxFrame.
func NewFrameConn(rw io.ReadWriteCloser, maxFrame int) *FrameConn {
    if maxFrame <= 0 { maxFrame = DefaultMaxFrame }
    return &FrameConn{
        rw:            rw,
        br:            bufio.NewReader(rw),
        bw:            bufio.NewWriter(rw),
        max:           maxFrame,
        establishedAt: time.Now(),
    }
}

func (f *FrameConn) SendBytes(b []byte) error {
    if f.closed.Load() { return protocol.ErrClientNotConnected }
    if len(b) > f.max { return fmt.Errorf("%w: frame of %d bytes exceeds %d", protocol.ErrCountInvalid, len(b), f.max) }
    f.wmu.Lock()
    defer f.wmu.Unlock()
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := f.bw.Write(lenbuf[:]); err != nil { return f.wrap(err) }
    if _, err := f.bw.Write(b); err != nil { return f.wrap(err) }
    if err := f.bw.Flush(); err != nil { return f.wrap(err) }
    f.out.Add(1)
    f.lastSeen.Store(time.Now().UnixNano())
    return nil
}

func (f *FrameConn) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil { return nil, f.wrap(err) }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n < 0 || n > f.max { return nil, fmt.Errorf("invalid frame size %d", n) }
    buf := make([]byte, n)
    if _, err := io.ReadFull(f.br, buf); err != nil { return nil, f.wrap(err) }
    f.in.Add(1)
    f.lastSeen.Store(time.Now().UnixNano())
    return buf, nil
}

func (f *FrameConn) Close() error {
    f.closeOnce.Do(func() {
        f.closed.Store(true)
        f.closeErr = f.rw.Close()
    })
    return f.closeErr
}

// Closed reports whether Close has been called.
func (f *FrameConn) Closed() bool { return f.closed.Load() }

func (f *FrameConn) Quality() Quality {
    q := Quality{EstablishedAt: f.establishedAt, FramesIn: f.in.Load(), FramesOut: f.out.Load()}
    if ns := f.lastSeen.Load(); ns != 0 { q.LastSeen = time.Unix(0, ns) }
    return q
}

// wrap maps I/O failures after a local Close to ErrClientNotConnected.
func (f *FrameConn) wrap(err error) error {
    if f.closed.Load() { return fmt.Errorf("%w: %v", protocol.ErrClientNotConnected, err) }
    return err
}

// Package netstack builds transports from configuration and runs the accept,
// read and dial loops that feed sessions into a transport.Manager.
package netstack

import (
    "context"
    "fmt"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport/mem"
    tquic "github.com/autcn/SiS.Communcation-sub001/pkg/transport/quic"
    ttcp "github.com/autcn/SiS.Communcation-sub001/pkg/transport/tcp"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport/udp"
)

// NewByKind constructs a Transport by configuration kind. The shared kind
// always resolves to the process-wide in-memory transport so that servers
// and clients of one process can reach each other.
func NewByKind(kind string, maxFrame int) (transport.Transport, error) {
    k, err := transport.ParseKind(kind)
    if err != nil { return nil, ErrUnknownKind(kind) }
    switch k {
    case transport.KindUDP:
        return udp.New(), nil
    case transport.KindTCP:
        return ttcp.New(maxFrame), nil
    case transport.KindQUIC:
        return tquic.New(maxFrame)
    case transport.KindShared:
        return mem.Shared(), nil
    case transport.KindPipe:
        return newWinPipeTransport(maxFrame)
    }
    return nil, ErrUnknownKind(kind)
}

// ErrUnknownKind reports a transport kind with no implementation.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }

// ListenAll opens every listen endpoint in cfg. On the first failure the
// listeners opened so far are closed and the error is returned.
func ListenAll(ctx context.Context, cfg []config.TransportConfig, maxFrame int) ([]transport.Listener, error) {
    var out []transport.Listener
    fail := func(err error) ([]transport.Listener, error) {
        for i := len(out) - 1; i >= 0; i-- { _ = out[i].Close() }
        return nil, err
    }
    for _, tc := range cfg {
        if len(tc.Listen) == 0 { continue }
        tr, err := NewByKind(tc.Kind, maxFrame)
        if err != nil { return fail(err) }
        for _, addr := range tc.Listen {
            l, err := tr.Listen(ctx, addr)
            if err != nil { return fail(fmt.Errorf("listen %s %s: %w", tr.Kind(), addr, err)) }
            zap.L().Info("listening", zap.String("kind", tr.Kind().String()), zap.String("addr", l.Addr().String()))
            out = append(out, l)
        }
    }
    if len(out) == 0 { return nil, fmt.Errorf("no listen endpoints configured") }
    return out, nil
}

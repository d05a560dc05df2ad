//go:build windows

package netstack

import (
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport/winpipe"
)

func newWinPipeTransport(maxFrame int) (transport.Transport, error) { return winpipe.New(maxFrame), nil }

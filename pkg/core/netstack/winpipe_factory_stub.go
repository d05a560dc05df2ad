//go:build !windows

package netstack

import (
    "fmt"

    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

func newWinPipeTransport(int) (transport.Transport, error) {
    return nil, fmt.Errorf("pipe transport is not supported on this platform")
}

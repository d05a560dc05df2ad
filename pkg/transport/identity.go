package transport

import (
    "fmt"
    "net"
)

// TempConnID builds a connection id from transport kind and remote address.
func TempConnID(kind Kind, addr net.Addr) ConnID {
    if addr == nil { return ConnID(fmt.Sprintf("%s:unknown", kind)) }
    return ConnID(fmt.Sprintf("%s:%s", kind, addr.String()))
}

// SPDX-License-Identifier: MIT
package inet

import (
	"fmt"
	"net/netip"
)

// EthAddr is a 48-bit hardware address.
type EthAddr [6]byte

// Broadcast is the all-ones hardware address.
var Broadcast = EthAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (a EthAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether a is the null hardware address.
func (a EthAddr) IsZero() bool {
	return a == EthAddr{}
}

// Addr4 converts a to its 4-byte wire representation. a must be a valid
// IPv4 address.
func Addr4(a netip.Addr) [4]byte {
	return a.Unmap().As4()
}

// Routable reports whether dst is a sane destination for an outgoing
// connection. The unspecified address, multicast ranges and the limited
// broadcast address are never connectable.
func Routable(dst netip.Addr) bool {
	dst = dst.Unmap()
	switch {
	case !dst.IsValid() || !dst.Is4():
		return false
	case dst.IsUnspecified():
		return false
	case dst.IsMulticast():
		return false
	case dst == netip.AddrFrom4([4]byte{255, 255, 255, 255}):
		return false
	}
	return true
}

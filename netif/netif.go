// SPDX-License-Identifier: MIT

// Package netif describes network interfaces as capability sets: a bundle
// of addresses plus the transmit and poll hooks a device backend supplies.
// The protocol layers never reach past these hooks into the device.
package netif

import (
	"net/netip"

	"github.com/oskern/netstack/inet"
	"github.com/oskern/netstack/nbuf"
)

// Intf is a network interface. Any of the hooks may be nil when the
// backend has no use for them; test doubles typically install only Tx.
type Intf struct {
	Name string
	IP   netip.Addr
	Eth  inet.EthAddr
	MTU  int

	// Poll lets a polled backend pick up pending packets. Nothing in this
	// module calls it; the TUN backend is read directly by the daemon.
	Poll func()

	// Tx transmits a fully framed network-layer packet. Ownership of the
	// buffer passes to the hook.
	Tx func(b *nbuf.Buf) error

	// DevTx transmits a link-layer frame to a resolved hardware address.
	// Backends without link framing leave it nil.
	DevTx func(b *nbuf.Buf, dst inet.EthAddr) error
}

// New returns an interface with the given identity and no hooks installed.
func New(name string, ip netip.Addr, mtu int) *Intf {
	return &Intf{Name: name, IP: ip, MTU: mtu}
}

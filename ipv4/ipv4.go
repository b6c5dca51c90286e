// SPDX-License-Identifier: MIT

// Package ipv4 implements the minimal IPv4 egress path and header codec
// used by the transport layer. There is no fragmentation and no
// reassembly; a packet either fits the interface MTU or is refused.
package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/inet"
	"github.com/oskern/netstack/nbuf"
	"github.com/oskern/netstack/netif"
	"github.com/oskern/netstack/route"
)

const (
	// HeaderLen is the size of a header without options. Options are
	// never emitted and never honored on receive beyond skipping them.
	HeaderLen = 20

	// ProtoTCP is the protocol field value for TCP payloads.
	ProtoTCP = 6

	defaultTTL = 64
)

var (
	ErrNoRoute   = errors.New("ipv4: no route to host")
	ErrTooBig    = errors.New("ipv4: packet exceeds interface mtu")
	ErrTruncated = errors.New("ipv4: truncated header")
)

// Header is a decoded IPv4 header. Multi-byte fields are host values; the
// codec handles wire order.
type Header struct {
	TOS      uint8
	TotalLen uint16
	ID       uint16
	Offset   uint16
	TTL      uint8
	Protocol uint8
	Checksum uint16
	Src      netip.Addr
	Dst      netip.Addr
}

// Parse decodes the header at the front of b and returns it along with the
// header length, so the caller can locate the payload past any options.
func Parse(b []byte) (Header, int, error) {
	if len(b) < HeaderLen {
		return Header{}, 0, ErrTruncated
	}
	if b[0]>>4 != 4 {
		return Header{}, 0, fmt.Errorf("ipv4: bad version %d", b[0]>>4)
	}
	ihl := int(b[0]&0x0f) * 4
	if ihl < HeaderLen || len(b) < ihl {
		return Header{}, 0, ErrTruncated
	}

	h := Header{
		TOS:      b[1],
		TotalLen: binary.BigEndian.Uint16(b[2:4]),
		ID:       binary.BigEndian.Uint16(b[4:6]),
		Offset:   binary.BigEndian.Uint16(b[6:8]),
		TTL:      b[8],
		Protocol: b[9],
		Checksum: binary.BigEndian.Uint16(b[10:12]),
		Src:      netip.AddrFrom4([4]byte(b[12:16])),
		Dst:      netip.AddrFrom4([4]byte(b[16:20])),
	}
	return h, ihl, nil
}

// encode writes a 20-byte header for a packet of totalLen bytes into hdr
// and stamps the header checksum.
func encode(hdr []byte, src, dst netip.Addr, proto uint8, totalLen int) {
	hdr[0] = 4<<4 | 5
	hdr[1] = 0
	binary.BigEndian.PutUint16(hdr[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(hdr[4:6], 0) // id
	binary.BigEndian.PutUint16(hdr[6:8], 0) // flags, fragment offset
	hdr[8] = defaultTTL
	hdr[9] = proto
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	srcb := inet.Addr4(src)
	dstb := inet.Addr4(dst)
	copy(hdr[12:16], srcb[:])
	copy(hdr[16:20], dstb[:])

	binary.BigEndian.PutUint16(hdr[10:12], inet.Checksum(hdr[:HeaderLen]))
}

// SendVia frames the payload in b with an IPv4 header sourced from intf
// and hands the packet to the interface transmit hook. The buffer is
// consumed in all cases: the hook takes ownership when invoked, and
// failures before the hook free it here.
func SendVia(intf *netif.Intf, nextHop, dst netip.Addr, proto uint8, b *nbuf.Buf) error {
	totalLen := b.Len() + HeaderLen
	if intf.MTU > 0 && totalLen > intf.MTU {
		nbuf.Free(b)
		return ErrTooBig
	}

	hdr, err := b.Prepend(HeaderLen)
	if err != nil {
		nbuf.Free(b)
		return err
	}
	encode(hdr, intf.IP, dst, proto, totalLen)

	if intf.Tx == nil {
		nbuf.Free(b)
		return fmt.Errorf("ipv4: interface %s has no transmit hook", intf.Name)
	}

	logrus.WithFields(logrus.Fields{
		"intf":     intf.Name,
		"next_hop": nextHop,
		"dst":      dst,
		"proto":    proto,
		"len":      totalLen,
	}).Trace("ipv4 tx")

	return intf.Tx(b)
}

// Send resolves dst through the routing table and transmits via the
// matched interface. Like SendVia it consumes the buffer.
func Send(t *route.Table, dst netip.Addr, proto uint8, b *nbuf.Buf) error {
	nextHop, intf, ok := t.Lookup(dst)
	if !ok {
		nbuf.Free(b)
		return ErrNoRoute
	}
	return SendVia(intf, nextHop, dst, proto, b)
}

// SPDX-License-Identifier: MIT
package tcp

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/oskern/netstack/inet"
)

// HeaderLen is the size of a TCP header without options. The engine never
// emits options; received options are skipped via the data offset.
const HeaderLen = 20

// TCP flag bits.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

const pseudoLen = 12

var errTruncated = errors.New("tcp: truncated segment")

// Header is a decoded TCP header. Multi-byte fields hold host values; the
// codec owns the wire order.
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // 32-bit words, including options
	Flags      uint8
	Window     uint16
	Checksum   uint16
	Urgent     uint16
}

// decodeHeader parses the header at the front of seg. The data offset is
// validated against the segment length so the caller can slice the payload
// with hdr.DataOffset directly.
func decodeHeader(seg []byte) (Header, error) {
	if len(seg) < HeaderLen {
		return Header{}, errTruncated
	}
	h := Header{
		SrcPort:    binary.BigEndian.Uint16(seg[0:2]),
		DstPort:    binary.BigEndian.Uint16(seg[2:4]),
		Seq:        binary.BigEndian.Uint32(seg[4:8]),
		Ack:        binary.BigEndian.Uint32(seg[8:12]),
		DataOffset: seg[12] >> 4,
		Flags:      seg[13],
		Window:     binary.BigEndian.Uint16(seg[14:16]),
		Checksum:   binary.BigEndian.Uint16(seg[16:18]),
		Urgent:     binary.BigEndian.Uint16(seg[18:20]),
	}
	if int(h.DataOffset)*4 < HeaderLen || int(h.DataOffset)*4 > len(seg) {
		return Header{}, errTruncated
	}
	return h, nil
}

// encode writes h into b, which must be at least HeaderLen bytes. The
// checksum field is written as-is; the transmit path zeroes it here and
// stamps the computed value afterwards.
func (h *Header) encode(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint32(b[4:8], h.Seq)
	binary.BigEndian.PutUint32(b[8:12], h.Ack)
	b[12] = h.DataOffset << 4
	b[13] = h.Flags
	binary.BigEndian.PutUint16(b[14:16], h.Window)
	binary.BigEndian.PutUint16(b[16:18], h.Checksum)
	binary.BigEndian.PutUint16(b[18:20], h.Urgent)
}

// segLen returns SEG.LEN for a segment: the payload size plus one for
// each of SYN and FIN.
func segLen(h *Header, payload []byte) uint32 {
	n := uint32(len(payload))
	if h.Flags&FlagSYN != 0 {
		n++
	}
	if h.Flags&FlagFIN != 0 {
		n++
	}
	return n
}

// SegmentChecksum computes the internet checksum of seg prefixed by the
// IPv4 pseudo-header {src, dst, 0, 6, len(seg)}. A received segment with
// its checksum field in place sums to zero exactly when intact.
func SegmentChecksum(src, dst netip.Addr, seg []byte) uint16 {
	var pseudo [pseudoLen]byte
	srcb := inet.Addr4(src)
	dstb := inet.Addr4(dst)
	copy(pseudo[0:4], srcb[:])
	copy(pseudo[4:8], dstb[:])
	pseudo[8] = 0
	pseudo[9] = protoTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(seg)))

	acc := inet.ChecksumAccumulate(pseudo[:], 0)
	acc = inet.ChecksumAccumulate(seg, acc)
	return inet.ChecksumFinalize(acc)
}

// SPDX-License-Identifier: MIT
package tcp

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/ipv4"
	"github.com/oskern/netstack/nbuf"
)

// transmit builds one segment and emits it through the IPv4 egress path.
// The payload is laid out first, the header prepended, the checksum
// computed over the pseudo-header plus segment and stamped in place.
func (s *Stack) transmit(local, remote netip.AddrPort, seq, ack uint32, flags uint8, payload []byte) error {
	b := nbuf.Alloc()
	if len(payload) > 0 {
		b.Append(payload)
	}

	hdr, err := b.Prepend(HeaderLen)
	if err != nil {
		nbuf.Free(b)
		return err
	}

	h := Header{
		SrcPort:    local.Port(),
		DstPort:    remote.Port(),
		Seq:        seq,
		Ack:        ack,
		DataOffset: HeaderLen / 4,
		Flags:      flags,
		Window:     WindowSize,
	}
	h.encode(hdr)
	binary.BigEndian.PutUint16(hdr[16:18], SegmentChecksum(local.Addr(), remote.Addr(), b.Payload()))

	if err := ipv4.Send(s.routes, remote.Addr(), ipv4.ProtoTCP, b); err != nil {
		return err
	}

	s.metrics.IncTx()
	if flags&FlagRST != 0 {
		s.metrics.IncReset()
	}
	s.log.WithFields(logrus.Fields{
		"src":   local,
		"dst":   remote,
		"seq":   seq,
		"ack":   ack,
		"flags": flags,
		"len":   len(payload),
	}).Trace("tcp tx")
	return nil
}

// sendSegment emits a segment on c's tuple.
func (s *Stack) sendSegment(c *Conn, seq, ack uint32, flags uint8, payload []byte) error {
	return s.transmit(c.local, c.remote, seq, ack, flags, payload)
}

// retransmitEntry records an in-flight segment that consumes sequence
// space, keyed by the sequence number that acknowledges it.
type retransmitEntry struct {
	seq     uint32
	endSeq  uint32
	flags   uint8
	payload []byte
	sentAt  time.Time
	tries   int
}

// queueRetransmitLocked remembers a sequence-consuming segment until the
// peer acknowledges past endSeq. Caller holds s.mu.
func (s *Stack) queueRetransmitLocked(c *Conn, seq, endSeq uint32, flags uint8, payload []byte) {
	c.retransmits = append(c.retransmits, retransmitEntry{
		seq:     seq,
		endSeq:  endSeq,
		flags:   flags,
		payload: payload,
		sentAt:  s.clock.Now(),
	})
}

// ackRetransmitsLocked drops queued segments fully covered by snd_una.
// Caller holds s.mu.
func (s *Stack) ackRetransmitsLocked(c *Conn) {
	kept := c.retransmits[:0]
	for _, e := range c.retransmits {
		if !seqLEQ(e.endSeq, c.sndUna) {
			kept = append(kept, e)
		}
	}
	c.retransmits = kept
}

// retransmitLocked re-emits segments whose RTO has expired and aborts the
// connection once a segment exhausts its retries. Caller holds s.mu.
func (s *Stack) retransmitLocked(c *Conn, now time.Time) {
	for i := range c.retransmits {
		e := &c.retransmits[i]
		if now.Sub(e.sentAt) < s.rto {
			continue
		}
		if e.tries >= s.maxRetries {
			s.log.WithFields(logrus.Fields{
				"local":  c.local,
				"remote": c.remote,
				"seq":    e.seq,
			}).Warn("retransmission limit reached, aborting connection")
			s.removeLocked(c)
			return
		}

		var ack uint32
		if e.flags&FlagACK != 0 {
			ack = c.rcvNxt
		}
		if err := s.sendSegment(c, e.seq, ack, e.flags, e.payload); err != nil {
			s.log.WithError(err).Debug("retransmit dropped")
			continue
		}
		e.sentAt = now
		e.tries++
		s.metrics.IncRetransmit()
	}
}

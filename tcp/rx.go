// SPDX-License-Identifier: MIT
package tcp

import (
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/ipv4"
	"github.com/oskern/netstack/nbuf"
	"github.com/oskern/netstack/netif"
)

// Rx delivers a received TCP segment to the engine. The buffer payload is
// the raw segment as it arrived; ip carries the addresses the checksum
// pseudo-header is built from. Segments failing validation are dropped
// silently, segments for unknown tuples answered per the CLOSED-state
// rules, everything else dispatched to the owning connection's state
// handler.
func (s *Stack) Rx(intf *netif.Intf, ip *ipv4.Header, b *nbuf.Buf) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.IncRx()

	seg := b.Payload()
	if SegmentChecksum(ip.Src, ip.Dst, seg) != 0 {
		s.metrics.IncChecksumError()
		s.log.WithFields(logrus.Fields{
			"src": ip.Src,
			"dst": ip.Dst,
			"len": len(seg),
		}).Debug("segment checksum mismatch")
		return
	}

	hdr, err := decodeHeader(seg)
	if err != nil {
		s.metrics.IncDropped()
		return
	}
	payload := seg[int(hdr.DataOffset)*4:]

	key := tuple{
		local:  netip.AddrPortFrom(ip.Dst.Unmap(), hdr.DstPort),
		remote: netip.AddrPortFrom(ip.Src.Unmap(), hdr.SrcPort),
	}
	c, ok := s.conns[key]
	if !ok {
		s.replyClosedLocked(key, &hdr, payload)
		return
	}
	s.dispatchLocked(c, &hdr, payload)
}

// replyClosedLocked answers a segment addressed to no connection: RST
// segments are dropped, ACK segments answered with a bare RST aimed at the
// acknowledged sequence, everything else with RST|ACK covering the
// segment. The reply runs back over the swapped tuple.
func (s *Stack) replyClosedLocked(key tuple, hdr *Header, payload []byte) {
	if hdr.Flags&FlagRST != 0 {
		s.metrics.IncDropped()
		return
	}

	if hdr.Flags&FlagACK != 0 {
		if err := s.transmit(key.local, key.remote, hdr.Ack, 0, FlagRST, nil); err != nil {
			s.log.WithError(err).Debug("closed-state reset dropped")
		}
		return
	}
	if err := s.transmit(key.local, key.remote, 0, hdr.Seq+segLen(hdr, payload), FlagRST|FlagACK, nil); err != nil {
		s.log.WithError(err).Debug("closed-state reset dropped")
	}
}

// dispatchLocked routes a validated segment to the handler for c's state.
// Caller holds s.mu.
func (s *Stack) dispatchLocked(c *Conn, hdr *Header, payload []byte) {
	switch c.state {
	case StateSynSent:
		s.handleSynSentLocked(c, hdr)
	case StateSynReceived:
		s.handleSynReceivedLocked(c, hdr)
	case StateEstablished:
		s.handleEstablishedLocked(c, hdr, payload)
	case StateFinWait1:
		s.handleFinWait1Locked(c, hdr, payload)
	case StateFinWait2:
		s.handleFinWait2Locked(c, hdr, payload)
	case StateCloseWait:
		s.handleCloseWaitLocked(c, hdr)
	case StateClosing:
		s.handleClosingLocked(c, hdr)
	case StateLastAck:
		s.handleLastAckLocked(c, hdr)
	case StateTimeWait:
		s.handleTimeWaitLocked(c, hdr)
	default:
		s.metrics.IncDropped()
	}
}

// handleSynSentLocked implements the SYN_SENT rules: an unacceptable ACK
// draws a reset unless the segment already carries one, an acceptable RST
// aborts the open, a SYN synchronizes the receive space and completes or
// crosses the handshake.
func (s *Stack) handleSynSentLocked(c *Conn, hdr *Header) {
	if hdr.Flags&FlagACK != 0 && hdr.Ack != c.sndNxt {
		if hdr.Flags&FlagRST != 0 {
			s.metrics.IncDropped()
			return
		}
		if err := s.transmit(c.local, c.remote, hdr.Ack, 0, FlagRST, nil); err != nil {
			s.log.WithError(err).Debug("syn-sent reset dropped")
		}
		return
	}

	if hdr.Flags&FlagRST != 0 {
		if hdr.Flags&FlagACK != 0 {
			s.log.WithField("local", c.local).Warn("connection reset during open")
			s.removeLocked(c)
		} else {
			s.metrics.IncDropped()
		}
		return
	}

	if hdr.Flags&FlagSYN == 0 {
		s.metrics.IncDropped()
		return
	}

	c.irs = hdr.Seq
	c.rcvNxt = hdr.Seq + 1
	c.sndWnd = hdr.Window

	if hdr.Flags&FlagACK != 0 {
		c.sndUna = hdr.Ack
		s.ackRetransmitsLocked(c)
		c.state = StateEstablished
		s.log.WithFields(logrus.Fields{
			"local":  c.local,
			"remote": c.remote,
		}).Info("connection established")
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("handshake ack dropped")
		}
		return
	}

	// Simultaneous open: our SYN crossed the peer's.
	c.state = StateSynReceived
	if err := s.sendSegment(c, c.iss, c.rcvNxt, FlagSYN|FlagACK, nil); err != nil {
		s.log.WithError(err).Warn("syn-ack dropped")
	}
}

func (s *Stack) handleSynReceivedLocked(c *Conn, hdr *Header) {
	if hdr.Flags&FlagRST != 0 {
		s.log.WithField("local", c.local).Warn("connection reset during open")
		s.removeLocked(c)
		return
	}
	if hdr.Flags&FlagACK == 0 || hdr.Ack != c.sndNxt {
		s.metrics.IncDropped()
		return
	}
	c.sndUna = hdr.Ack
	c.sndWnd = hdr.Window
	s.ackRetransmitsLocked(c)
	c.state = StateEstablished
	s.log.WithFields(logrus.Fields{
		"local":  c.local,
		"remote": c.remote,
	}).Info("connection established")
}

// handleEstablishedLocked accepts in-order data and a closing FIN. Data
// beyond rcv_nxt is dropped; the engine keeps no out-of-order buffer.
func (s *Stack) handleEstablishedLocked(c *Conn, hdr *Header, payload []byte) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}
	if hdr.Flags&FlagSYN != 0 {
		s.metrics.IncDropped()
		return
	}
	if hdr.Flags&FlagACK != 0 {
		s.processAckLocked(c, hdr)
	}

	dataAccepted := false
	if len(payload) > 0 {
		if hdr.Seq != c.rcvNxt {
			s.metrics.IncDropped()
			return
		}
		c.rcvNxt += uint32(len(payload))
		dataAccepted = true
		if c.OnData != nil {
			data := make([]byte, len(payload))
			copy(data, payload)
			c.OnData(data)
		}
	}

	if hdr.Flags&FlagFIN != 0 {
		if hdr.Seq+uint32(len(payload)) != c.rcvNxt {
			s.metrics.IncDropped()
			return
		}
		c.rcvNxt++
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("fin ack dropped")
		}
		c.state = StateCloseWait
		s.log.WithField("local", c.local).Info("peer closed")
		return
	}

	if dataAccepted {
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("data ack dropped")
		}
	}
}

func (s *Stack) handleFinWait1Locked(c *Conn, hdr *Header, payload []byte) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}

	finAcked := false
	if hdr.Flags&FlagACK != 0 {
		s.processAckLocked(c, hdr)
		finAcked = hdr.Ack == c.sndNxt
	}

	if hdr.Flags&FlagFIN != 0 && hdr.Seq+uint32(len(payload)) == c.rcvNxt {
		c.rcvNxt++
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("fin ack dropped")
		}
		if finAcked {
			s.enterTimeWaitLocked(c)
		} else {
			c.state = StateClosing
		}
		return
	}

	if finAcked {
		c.state = StateFinWait2
	}
}

func (s *Stack) handleFinWait2Locked(c *Conn, hdr *Header, payload []byte) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}
	if hdr.Flags&FlagACK != 0 {
		s.processAckLocked(c, hdr)
	}
	if hdr.Flags&FlagFIN != 0 && hdr.Seq+uint32(len(payload)) == c.rcvNxt {
		c.rcvNxt++
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("fin ack dropped")
		}
		s.enterTimeWaitLocked(c)
	}
}

func (s *Stack) handleCloseWaitLocked(c *Conn, hdr *Header) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}
	if hdr.Flags&FlagACK != 0 {
		s.processAckLocked(c, hdr)
	}
}

func (s *Stack) handleClosingLocked(c *Conn, hdr *Header) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}
	if hdr.Flags&FlagACK != 0 {
		s.processAckLocked(c, hdr)
		if hdr.Ack == c.sndNxt {
			s.enterTimeWaitLocked(c)
		}
	}
}

func (s *Stack) handleLastAckLocked(c *Conn, hdr *Header) {
	if hdr.Flags&FlagRST != 0 {
		s.abortLocked(c)
		return
	}
	if hdr.Flags&FlagACK != 0 && hdr.Ack == c.sndNxt {
		s.log.WithField("local", c.local).Info("connection closed")
		s.removeLocked(c)
	}
}

func (s *Stack) handleTimeWaitLocked(c *Conn, hdr *Header) {
	// A retransmitted FIN means our final ACK was lost: answer it again
	// and restart the 2*MSL clock.
	if hdr.Flags&FlagFIN != 0 {
		if err := s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagACK, nil); err != nil {
			s.log.WithError(err).Warn("fin ack dropped")
		}
		s.enterTimeWaitLocked(c)
	}
}

// processAckLocked advances snd_una for an acceptable ACK and tracks the
// peer window. Caller holds s.mu.
func (s *Stack) processAckLocked(c *Conn, hdr *Header) {
	c.sndWnd = hdr.Window
	if seqLT(c.sndUna, hdr.Ack) && seqLEQ(hdr.Ack, c.sndNxt) {
		c.sndUna = hdr.Ack
		s.ackRetransmitsLocked(c)
	}
}

// abortLocked tears the connection down in response to a peer reset.
func (s *Stack) abortLocked(c *Conn) {
	s.log.WithFields(logrus.Fields{
		"local":  c.local,
		"remote": c.remote,
		"state":  c.state,
	}).Warn("connection reset by peer")
	s.removeLocked(c)
}

func (s *Stack) enterTimeWaitLocked(c *Conn) {
	c.state = StateTimeWait
	c.timeWaitDeadline = s.clock.Now().Add(2 * s.msl)
}

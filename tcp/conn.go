// SPDX-License-Identifier: MIT
package tcp

import (
	"errors"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/inet"
	"github.com/oskern/netstack/netif"
)

var (
	ErrNotClosed  = errors.New("tcp: connection is not in CLOSED state")
	ErrNoRoute    = errors.New("tcp: no route to remote address")
	ErrNoPorts    = errors.New("tcp: ephemeral port range exhausted")
	ErrUnroutable = errors.New("tcp: remote address is not connectable")
)

// Conn is one TCP connection. Its storage is owned by the stack's active
// set from Connect until the state machine returns to CLOSED; the
// interface reference is a lookup handle, never an ownership edge.
type Conn struct {
	stack *Stack
	intf  *netif.Intf

	local  netip.AddrPort
	remote netip.AddrPort

	state State

	// Send sequence space.
	iss    uint32
	sndUna uint32
	sndNxt uint32
	sndWnd uint16

	// Receive sequence space. The receive window is the fixed WindowSize.
	irs    uint32
	rcvNxt uint32

	retransmits      []retransmitEntry
	timeWaitDeadline time.Time

	// OnData, when set, receives in-order payload bytes as they are
	// accepted in ESTABLISHED.
	OnData func([]byte)
}

// State returns the connection state.
func (c *Conn) State() State {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	return c.state
}

// LocalAddr returns the local endpoint, valid after Connect.
func (c *Conn) LocalAddr() netip.AddrPort { return c.local }

// RemoteAddr returns the remote endpoint, valid after Connect.
func (c *Conn) RemoteAddr() netip.AddrPort { return c.remote }

// Connect performs an active open to remote:port. It resolves a route to
// fix the local interface, picks an unused ephemeral port, sends the
// opening SYN and moves the connection into SYN_SENT and the active set.
func (c *Conn) Connect(remote netip.Addr, port uint16) error {
	s := c.stack
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.state != StateClosed {
		return ErrNotClosed
	}
	if !inet.Routable(remote) {
		return ErrUnroutable
	}

	_, intf, ok := s.routes.Lookup(remote)
	if !ok {
		return ErrNoRoute
	}
	localPort, ok := s.allocPortLocked()
	if !ok {
		return ErrNoPorts
	}

	c.intf = intf
	c.local = netip.AddrPortFrom(intf.IP.Unmap(), localPort)
	c.remote = netip.AddrPortFrom(remote.Unmap(), port)

	c.iss = s.initialSeq(c.local, c.remote)
	c.sndUna = c.iss
	c.sndNxt = c.iss
	c.sndWnd = WindowSize

	if err := s.sendSegment(c, c.iss, 0, FlagSYN, nil); err != nil {
		return err
	}
	s.queueRetransmitLocked(c, c.iss, c.iss+1, FlagSYN, nil)
	c.sndNxt = c.iss + 1

	c.state = StateSynSent
	s.insertLocked(c)

	s.log.WithFields(logrus.Fields{
		"local":  c.local,
		"remote": c.remote,
		"iss":    c.iss,
	}).Info("active open")
	return nil
}

// Send transmits payload bytes on an established connection. The data is
// carried in a single ACK|PSH segment and held for retransmission until
// acknowledged.
func (c *Conn) Send(data []byte) error {
	s := c.stack
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.state != StateEstablished && c.state != StateCloseWait {
		return errors.New("tcp: cannot send in state " + c.state.String())
	}
	if len(data) == 0 {
		return nil
	}

	seq := c.sndNxt
	if err := s.sendSegment(c, seq, c.rcvNxt, FlagACK|FlagPSH, data); err != nil {
		return err
	}
	held := make([]byte, len(data))
	copy(held, data)
	s.queueRetransmitLocked(c, seq, seq+uint32(len(data)), FlagACK|FlagPSH, held)
	c.sndNxt += uint32(len(data))
	return nil
}

// Close shuts the connection down along the state diagram. From SYN_SENT
// it aborts straight to CLOSED; from SYN_RECEIVED or a synchronized state
// it sends FIN and walks the closing handshake. Calling Close again after
// the close has been initiated has no effect.
func (c *Conn) Close() {
	s := c.stack
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.state {
	case StateClosed:
		// Never opened, or already aborted and removed.
	case StateSynSent:
		s.removeLocked(c)
	case StateSynReceived, StateEstablished:
		s.sendFinLocked(c)
		c.state = StateFinWait1
	case StateCloseWait:
		s.sendFinLocked(c)
		c.state = StateLastAck
	default:
		// FIN already sent; nothing more to initiate.
	}
}

// sendFinLocked emits FIN|ACK and advances snd_nxt past the FIN, so the
// segment on the wire carries snd_nxt-1 once the call returns. Caller
// holds s.mu.
func (s *Stack) sendFinLocked(c *Conn) {
	seq := c.sndNxt
	if err := s.sendSegment(c, seq, c.rcvNxt, FlagFIN|FlagACK, nil); err != nil {
		s.log.WithError(err).Warn("fin dropped")
	}
	s.queueRetransmitLocked(c, seq, seq+1, FlagFIN|FlagACK, nil)
	c.sndNxt++
}

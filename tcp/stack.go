// SPDX-License-Identifier: MIT

// Package tcp implements the connection engine at the heart of the stack:
// an RFC 793 state machine for actively opened connections, the active
// connection set keyed by address 4-tuple, segment validation and reply
// generation, and the tick-driven retransmission and TIME_WAIT machinery.
package tcp

import (
	"net/netip"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2s"

	"github.com/oskern/netstack/route"
	"github.com/oskern/netstack/stats"
)

const (
	// WindowSize is the fixed receive window advertised on every emitted
	// segment.
	WindowSize = 8192

	protoTCP = 6

	// Ephemeral port range for active opens.
	portMin = 49152
	portMax = 65535

	defaultRTO        = time.Second
	defaultMaxRetries = 6
	defaultMSL        = 30 * time.Second
)

// tuple identifies a connection by its local and remote endpoints.
type tuple struct {
	local  netip.AddrPort
	remote netip.AddrPort
}

// Options tunes a Stack. Zero values select defaults.
type Options struct {
	Logger  *logrus.Logger
	Clock   clockwork.Clock
	Metrics *stats.Metrics

	// RTO is the retransmission timeout applied on each Tick.
	RTO time.Duration
	// MaxRetries bounds retransmissions of one segment before the
	// connection is aborted.
	MaxRetries int
	// MSL bounds TIME_WAIT (2*MSL) and the closed-port quarantine.
	MSL time.Duration
}

// Stack is the connection engine. All entry points (Connect, Close, Rx,
// Tick) run to completion under one lock, which is the concurrency model
// the protocol logic assumes: no segment is ever observed mid-transition.
type Stack struct {
	mu    sync.Mutex
	conns map[tuple]*Conn

	routes  *route.Table
	log     *logrus.Logger
	clock   clockwork.Clock
	metrics *stats.Metrics

	rto        time.Duration
	maxRetries int
	msl        time.Duration

	// Recently released local ports sit out 2*MSL before reuse, so a
	// reincarnated tuple cannot collide with stray segments from its
	// predecessor.
	portQuarantine *ttlcache.Cache[uint16, struct{}]
	nextPort       uint16

	isnSecret [blake2s.Size]byte
}

// New returns a Stack routing egress through routes.
func New(routes *route.Table, opts Options) *Stack {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RTO == 0 {
		opts.RTO = defaultRTO
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MSL == 0 {
		opts.MSL = defaultMSL
	}

	s := &Stack{
		conns:      make(map[tuple]*Conn),
		routes:     routes,
		log:        opts.Logger,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		rto:        opts.RTO,
		maxRetries: opts.MaxRetries,
		msl:        opts.MSL,
		nextPort:   portMin,
		isnSecret:  newISNSecret(),
	}
	s.portQuarantine = ttlcache.New[uint16, struct{}](
		ttlcache.WithTTL[uint16, struct{}](2 * opts.MSL),
	)
	go s.portQuarantine.Start()
	return s
}

// Stop releases the stack's background resources. Connections still in the
// active set are aborted.
func (s *Stack) Stop() {
	s.mu.Lock()
	for key, c := range s.conns {
		delete(s.conns, key)
		c.state = StateClosed
		s.metrics.ConnClosed()
	}
	s.mu.Unlock()
	s.portQuarantine.Stop()
}

// Create allocates a connection in CLOSED. It joins the active set only
// once Connect succeeds.
func (s *Stack) Create() *Conn {
	return &Conn{stack: s, state: StateClosed}
}

// Conns returns a snapshot of the active set.
func (s *Stack) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// insertLocked adds c to the active set. Caller holds s.mu.
func (s *Stack) insertLocked(c *Conn) {
	s.conns[tuple{local: c.local, remote: c.remote}] = c
	s.metrics.ConnOpened()
}

// removeLocked takes c out of the active set, marks it CLOSED and
// quarantines its local port. Caller holds s.mu.
func (s *Stack) removeLocked(c *Conn) {
	key := tuple{local: c.local, remote: c.remote}
	if _, ok := s.conns[key]; !ok {
		return
	}
	delete(s.conns, key)
	c.state = StateClosed
	c.retransmits = nil
	s.metrics.ConnClosed()
	s.portQuarantine.Set(c.local.Port(), struct{}{}, ttlcache.DefaultTTL)

	s.log.WithFields(logrus.Fields{
		"local":  c.local,
		"remote": c.remote,
	}).Debug("connection removed")
}

// allocPortLocked picks an ephemeral port unused by any active connection
// and not quarantined. Caller holds s.mu.
func (s *Stack) allocPortLocked() (uint16, bool) {
	inUse := make(map[uint16]bool, len(s.conns))
	for key := range s.conns {
		inUse[key.local.Port()] = true
	}

	for i := 0; i <= portMax-portMin; i++ {
		port := s.nextPort
		if s.nextPort == portMax {
			s.nextPort = portMin
		} else {
			s.nextPort++
		}
		if inUse[port] || s.portQuarantine.Get(port) != nil {
			continue
		}
		return port, true
	}
	return 0, false
}

// Tick drives the engine's timers: segments past their RTO are
// retransmitted and TIME_WAIT connections past 2*MSL are reaped. The run
// loop calls it periodically; tests call it directly against a fake clock.
func (s *Stack) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, c := range s.conns {
		if c.state == StateTimeWait {
			if !now.Before(c.timeWaitDeadline) {
				s.log.WithField("local", c.local).Debug("time-wait expired")
				s.removeLocked(c)
			}
			continue
		}
		s.retransmitLocked(c, now)
	}
}

// SPDX-License-Identifier: MIT

// Package route implements the IPv4 routing table consulted by the egress
// path.
package route

import (
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/netif"
)

// Route maps a destination prefix to an interface, optionally via a
// gateway. A route without a gateway is directly connected: the next hop
// is the destination itself.
type Route struct {
	Prefix  netip.Prefix
	Gateway netip.Addr
	Intf    *netif.Intf
}

// Table is an ordered set of routes. Lookups select the longest matching
// prefix.
type Table struct {
	mu     sync.RWMutex
	routes []Route
	log    *logrus.Logger
}

// NewTable returns an empty table logging through log.
func NewTable(log *logrus.Logger) *Table {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Table{log: log}
}

// Add inserts a route. A zero gateway marks a directly connected prefix.
func (t *Table) Add(prefix netip.Prefix, gateway netip.Addr, intf *netif.Intf) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes = append(t.routes, Route{Prefix: prefix.Masked(), Gateway: gateway, Intf: intf})
	t.log.WithFields(logrus.Fields{
		"prefix":  prefix,
		"gateway": gateway,
		"intf":    intf.Name,
	}).Debug("route added")
}

// Lookup returns the next hop and interface for dst, choosing the longest
// matching prefix. ok is false when no route covers dst.
func (t *Table) Lookup(dst netip.Addr) (nextHop netip.Addr, intf *netif.Intf, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := -1
	for _, r := range t.routes {
		if !r.Prefix.Contains(dst) || r.Prefix.Bits() <= best {
			continue
		}
		best = r.Prefix.Bits()
		intf = r.Intf
		if r.Gateway.IsValid() {
			nextHop = r.Gateway
		} else {
			nextHop = dst
		}
	}
	return nextHop, intf, best >= 0
}

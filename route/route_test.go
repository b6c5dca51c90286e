package route

import (
	"io"
	"net/netip"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oskern/netstack/netif"
)

func testTable(t *testing.T) (*Table, *netif.Intf, *netif.Intf) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	lo := netif.New("lo", netip.MustParseAddr("127.0.0.1"), 65535)
	eth := netif.New("eth0", netip.MustParseAddr("192.168.1.10"), 1500)

	table := NewTable(log)
	table.Add(netip.MustParsePrefix("127.0.0.1/32"), netip.Addr{}, lo)
	table.Add(netip.MustParsePrefix("192.168.1.0/24"), netip.Addr{}, eth)
	table.Add(netip.MustParsePrefix("0.0.0.0/0"), netip.MustParseAddr("192.168.1.1"), eth)
	return table, lo, eth
}

func TestLookupLongestPrefix(t *testing.T) {
	table, lo, eth := testTable(t)

	tests := []struct {
		name    string
		dst     string
		nextHop string
		intf    *netif.Intf
	}{
		{"loopback host route", "127.0.0.1", "127.0.0.1", lo},
		{"directly connected", "192.168.1.42", "192.168.1.42", eth},
		{"default via gateway", "8.8.8.8", "192.168.1.1", eth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextHop, intf, ok := table.Lookup(netip.MustParseAddr(tt.dst))
			require.True(t, ok)
			require.Same(t, tt.intf, intf)
			require.Equal(t, netip.MustParseAddr(tt.nextHop), nextHop)
		})
	}
}

func TestLookupNoRoute(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	table := NewTable(log)
	table.Add(netip.MustParsePrefix("127.0.0.1/32"), netip.Addr{}, netif.New("lo", netip.MustParseAddr("127.0.0.1"), 65535))

	_, _, ok := table.Lookup(netip.MustParseAddr("10.1.2.3"))
	require.False(t, ok)
}

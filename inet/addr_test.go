package inet

import (
	"net/netip"
	"testing"
)

func TestRoutable(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"loopback", "127.0.0.1", true},
		{"private 10.x", "10.0.0.1", true},
		{"private 192.168.x", "192.168.1.1", true},
		{"public", "8.8.8.8", true},

		{"unspecified", "0.0.0.0", false},
		{"multicast", "224.0.0.1", false},
		{"multicast upper", "239.255.255.255", false},
		{"limited broadcast", "255.255.255.255", false},
		{"ipv6", "2001:db8::1", false},
		{"invalid", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var addr netip.Addr
			if tt.addr != "" {
				var err error
				addr, err = netip.ParseAddr(tt.addr)
				if err != nil {
					t.Fatalf("failed to parse address: %s", tt.addr)
				}
			}
			if got := Routable(addr); got != tt.expected {
				t.Errorf("Routable(%s) = %v, expected %v", tt.addr, got, tt.expected)
			}
		})
	}
}

func TestEthAddrString(t *testing.T) {
	addr := EthAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	if got, want := addr.String(), "de:ad:be:ef:00:01"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestEthAddrIsZero(t *testing.T) {
	if !(EthAddr{}).IsZero() {
		t.Error("zero address not detected")
	}
	if Broadcast.IsZero() {
		t.Error("broadcast address reported as zero")
	}
}

func TestAddr4(t *testing.T) {
	got := Addr4(netip.MustParseAddr("192.0.2.7"))
	if got != [4]byte{192, 0, 2, 7} {
		t.Errorf("Addr4 = %v", got)
	}
}

package ipv4

import (
	"io"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oskern/netstack/inet"
	"github.com/oskern/netstack/nbuf"
	"github.com/oskern/netstack/netif"
	"github.com/oskern/netstack/route"
)

func captureIntf(t *testing.T, ip string, mtu int) (*netif.Intf, *[][]byte) {
	t.Helper()
	var captured [][]byte
	intf := netif.New("test", netip.MustParseAddr(ip), mtu)
	intf.Tx = func(b *nbuf.Buf) error {
		captured = append(captured, append([]byte(nil), b.Payload()...))
		nbuf.Free(b)
		return nil
	}
	return intf, &captured
}

func TestSendViaBuildsHeader(t *testing.T) {
	intf, captured := captureIntf(t, "127.0.0.1", 1500)
	dst := netip.MustParseAddr("127.0.0.1")

	b := nbuf.Alloc()
	b.Append([]byte("segment bytes"))
	require.NoError(t, SendVia(intf, dst, dst, ProtoTCP, b))
	require.Len(t, *captured, 1)

	pkt := (*captured)[0]
	hdr, ihl, err := Parse(pkt)
	require.NoError(t, err)
	require.Equal(t, HeaderLen, ihl)
	require.Equal(t, uint8(ProtoTCP), hdr.Protocol)
	require.Equal(t, uint8(64), hdr.TTL)
	require.Zero(t, hdr.ID)
	require.Zero(t, hdr.Offset)
	require.Equal(t, uint16(len(pkt)), hdr.TotalLen)
	require.Equal(t, intf.IP, hdr.Src)
	require.Equal(t, dst, hdr.Dst)
	require.Equal(t, []byte("segment bytes"), pkt[ihl:])

	// A header carrying its own checksum sums to zero.
	require.Zero(t, inet.Checksum(pkt[:ihl]))

	// Cross-check the layout with an independent decoder.
	// Only the IPv4 layer is decoded: the payload is not a TCP segment.
	var ipLayer layers.IPv4
	require.NoError(t, ipLayer.DecodeFromBytes(pkt, gopacket.NilDecodeFeedback))
	require.Equal(t, uint8(4), ipLayer.Version)
	require.Equal(t, layers.IPProtocolTCP, ipLayer.Protocol)
}

func TestSendViaRespectsMTU(t *testing.T) {
	intf, captured := captureIntf(t, "127.0.0.1", 100)

	b := nbuf.Alloc()
	b.Extend(200)
	err := SendVia(intf, intf.IP, intf.IP, ProtoTCP, b)
	require.ErrorIs(t, err, ErrTooBig)
	require.Empty(t, *captured)
}

func TestSendRouteLookup(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	intf, captured := captureIntf(t, "127.0.0.1", 1500)
	table := route.NewTable(log)
	table.Add(netip.MustParsePrefix("127.0.0.1/32"), netip.Addr{}, intf)

	b := nbuf.Alloc()
	b.Append([]byte{1, 2, 3})
	require.NoError(t, Send(table, netip.MustParseAddr("127.0.0.1"), ProtoTCP, b))
	require.Len(t, *captured, 1)

	b2 := nbuf.Alloc()
	err := Send(table, netip.MustParseAddr("10.0.0.1"), ProtoTCP, b2)
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"short", make([]byte, HeaderLen-1)},
		{"wrong version", append([]byte{0x65}, make([]byte, HeaderLen-1)...)},
		{"ihl past end", append([]byte{0x4f}, make([]byte, HeaderLen-1)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.pkt)
			require.Error(t, err)
		})
	}
}

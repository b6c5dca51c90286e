package tcp

import (
	"io"
	"net/netip"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oskern/netstack/route"
)

func TestInitialSeq(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := New(route.NewTable(log), Options{Logger: log})
	t.Cleanup(s.Stop)

	a := netip.MustParseAddrPort("127.0.0.1:49152")
	b := netip.MustParseAddrPort("127.0.0.1:80")
	c := netip.MustParseAddrPort("127.0.0.1:81")

	require.Equal(t, s.initialSeq(a, b), s.initialSeq(a, b), "same tuple must hash to the same isn")
	require.NotEqual(t, s.initialSeq(a, b), s.initialSeq(a, c), "distinct tuples should differ")

	other := New(route.NewTable(log), Options{Logger: log})
	t.Cleanup(other.Stop)
	require.NotEqual(t, s.initialSeq(a, b), other.initialSeq(a, b), "stacks must not share isn sequences")
}

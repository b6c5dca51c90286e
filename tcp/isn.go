// SPDX-License-Identifier: MIT
package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"

	"golang.org/x/crypto/blake2s"
)

// Initial send sequence numbers are a keyed hash over the connection
// 4-tuple, so they are stable for a connection's lifetime, differ across
// tuples, and cannot be predicted without the per-stack secret.

func newISNSecret() [blake2s.Size]byte {
	var key [blake2s.Size]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic("tcp: failed to seed isn secret: " + err.Error())
	}
	return key
}

func (s *Stack) initialSeq(local, remote netip.AddrPort) uint32 {
	h, err := blake2s.New256(s.isnSecret[:])
	if err != nil {
		panic("tcp: isn hash: " + err.Error())
	}

	var tuple [12]byte
	la := local.Addr().Unmap().As4()
	ra := remote.Addr().Unmap().As4()
	copy(tuple[0:4], la[:])
	copy(tuple[4:8], ra[:])
	binary.BigEndian.PutUint16(tuple[8:10], local.Port())
	binary.BigEndian.PutUint16(tuple[10:12], remote.Port())
	h.Write(tuple[:])

	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

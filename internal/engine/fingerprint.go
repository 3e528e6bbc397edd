// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"hash/fnv"
	"net/netip"

	"github.com/perimeterd/perimeterd/internal/policy"
)

// fingerprint hashes (device, protocol, sockaddr, exe) into the Decision
// Cache key. Payload length and rate-limit state are deliberately
// excluded: the cache captures the classification, not the charge.
func fingerprint(device policy.Device, proto policy.Protocol, addr netip.Addr, port uint16, exe string) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	buf[0] = byte(device)
	buf[1] = byte(proto)
	buf[2] = byte(port)
	buf[3] = byte(port >> 8)
	h.Write(buf[:])
	addrBytes := addr.As16()
	h.Write(addrBytes[:])
	h.Write([]byte(exe))
	return h.Sum64()
}

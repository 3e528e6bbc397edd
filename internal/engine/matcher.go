// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"

	"github.com/perimeterd/perimeterd/internal/index"
	"github.com/perimeterd/perimeterd/internal/policy"
)

// Packet is the classifier input: a packet descriptor as handed off by
// the (out of scope) capture layer, with the executable path already
// resolved upstream by socket-diag attribution.
type Packet struct {
	Device     policy.Device
	Proto      policy.Protocol
	Addr       netip.Addr
	Port       uint16
	PayloadLen int
	Exe        string
}

// classify runs the cache-miss classification algorithm of spec.md
// §4.3: pick the smallest candidate pair, confirm the full predicate
// for every candidate in concrete-then-wildcard order, and keep the
// smallest surviving index. The IP pair holds only the rules of the
// longest matching prefix, so when no candidate survives, the raw rule
// list is scanned and the lowest-indexed fully matching rule is used
// before falling back to the default target. It never mutates ir.
func classify(ir *index.IndexedRules, pkt Packet) (*int, policy.Target) {
	pairs := ir.CandidatePairs(pkt.Device, pkt.Proto, pkt.Exe, pkt.Port, pkt.Addr)
	best := index.SmallestPair(pairs)

	raw := ir.Raw()
	survivor := -1
	for _, i := range best.Combined() {
		if i < 0 || i >= len(raw) {
			continue
		}
		if fullyMatches(raw[i], pkt) {
			if survivor == -1 || i < survivor {
				survivor = i
			}
		}
	}

	if survivor == -1 {
		for i, rule := range raw {
			if fullyMatches(rule, pkt) {
				survivor = i
				break
			}
		}
	}

	if survivor == -1 {
		return nil, ir.DefaultTarget()
	}
	idx := survivor
	return &idx, raw[idx].Target
}

// fullyMatches re-evaluates every predicate of rule against pkt. The
// candidate lists that feed classify are necessary-but-not-sufficient —
// a rule lives in exactly one bucket per field, so surviving the
// cheapest pair's membership test does not by itself confirm the other
// four fields also match.
func fullyMatches(rule policy.Rule, pkt Packet) bool {
	if rule.Device != policy.DeviceAny && rule.Device != pkt.Device {
		return false
	}
	if rule.Proto != policy.ProtocolAny && rule.Proto != pkt.Proto {
		return false
	}
	if rule.HasExe && rule.Exe != pkt.Exe {
		return false
	}
	if rule.HasPort && (pkt.Port < rule.Port.Lo || pkt.Port > rule.Port.Hi) {
		return false
	}
	if rule.HasSubnet && !subnetContains(rule.Subnet, pkt.Addr) {
		return false
	}
	return true
}

func subnetContains(s policy.Subnet, addr netip.Addr) bool {
	norm := s.Normalize()
	p := netip.PrefixFrom(norm.Prefix, norm.Bits)
	if !p.IsValid() {
		return false
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return p.Contains(addr)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package index derives the read-optimized IndexedRules structure from a
// policy.Rules document: per-field inverted indices, a longest-prefix-match
// table per IP family, and an interval tree over port ranges. Construction
// is the only place fallibility from a malformed invariant is checked; the
// matcher that consumes IndexedRules never re-validates it.
package index

import (
	"fmt"
	"net/netip"

	"github.com/perimeterd/perimeterd/internal/index/interval"
	"github.com/perimeterd/perimeterd/internal/index/prefix"
	pderrors "github.com/perimeterd/perimeterd/internal/errors"
	"github.com/perimeterd/perimeterd/internal/policy"
)

// fieldIndex is a concrete-value map plus the parallel wildcard list for
// one discriminating field (device, protocol, or executable path).
type fieldIndex[K comparable] struct {
	concrete map[K][]int
	any      []int
}

func newFieldIndex[K comparable]() fieldIndex[K] {
	return fieldIndex[K]{concrete: make(map[K][]int)}
}

func (f *fieldIndex[K]) addConcrete(k K, idx int) {
	f.concrete[k] = append(f.concrete[k], idx)
}

func (f *fieldIndex[K]) addAny(idx int) {
	f.any = append(f.any, idx)
}

func (f *fieldIndex[K]) lookup(k K) []int {
	return f.concrete[k]
}

// IndexedRules is the frozen, read-optimized view of a policy.Rules used
// by the matcher. Every field of this struct is immutable once returned
// by Build; callers never mutate it in place, they build a replacement
// and swap it in wholesale.
type IndexedRules struct {
	device   fieldIndex[policy.Device]
	proto    fieldIndex[policy.Protocol]
	exe      fieldIndex[string]
	port     *interval.Tree
	anyPort  []int
	v4Table  *prefix.Table
	v6Table  *prefix.Table
	anyV4    []int
	anyV6    []int
	raw      []policy.Rule
	rateLimits []policy.RateLimitRule

	defaultTarget policy.Target
}

// Raw returns the unchanged rule sequence, used for final full-predicate
// confirmation of a classification candidate.
func (ir *IndexedRules) Raw() []policy.Rule { return ir.raw }

// DefaultTarget is applied when no candidate rule survives confirmation.
func (ir *IndexedRules) DefaultTarget() policy.Target { return ir.defaultTarget }

// RateLimits is the ordered rate-limit bucket definitions this index was
// built against, used by the engine to size a fresh bucket vector on swap.
func (ir *IndexedRules) RateLimits() []policy.RateLimitRule { return ir.rateLimits }

func (ir *IndexedRules) deviceCandidates(d policy.Device) ([]int, []int) {
	return ir.device.lookup(d), ir.device.any
}

func (ir *IndexedRules) protoCandidates(p policy.Protocol) ([]int, []int) {
	return ir.proto.lookup(p), ir.proto.any
}

func (ir *IndexedRules) exeCandidates(exe string) ([]int, []int) {
	return ir.exe.lookup(exe), ir.exe.any
}

func (ir *IndexedRules) portCandidates(port uint16) ([]int, []int) {
	return ir.port.QueryPoint(int(port)), ir.anyPort
}

func (ir *IndexedRules) ipCandidates(addr netip.Addr) ([]int, []int) {
	if addr.Is4() || addr.Is4In6() {
		return ir.v4Table.Lookup(addr.Unmap()), ir.anyV4
	}
	return ir.v6Table.Lookup(addr), ir.anyV6
}

// Build constructs an IndexedRules from rules, per spec.md §4.2. rules is
// assumed already validated by policy.Rules.Validate; Build itself
// returns a KindInternal error for a subnet whose mask does not form a
// valid prefix, and checks that every rule index lands in the device,
// protocol and exe indices (see checkCoverage), returning an
// InternalInvariantViolation error if one is missing, rather than letting
// the matcher silently miss a rule in the hot path.
func Build(rules policy.Rules) (*IndexedRules, error) {
	ir := &IndexedRules{
		device:        newFieldIndex[policy.Device](),
		proto:         newFieldIndex[policy.Protocol](),
		exe:           newFieldIndex[string](),
		v4Table:       prefix.New(),
		v6Table:       prefix.New(),
		raw:           append([]policy.Rule(nil), rules.Rules...),
		rateLimits:    append([]policy.RateLimitRule(nil), rules.RateLimits...),
		defaultTarget: rules.DefaultTarget,
	}

	var ivs []interval.Interval

	for i, rule := range rules.Rules {
		if rule.Device == policy.DeviceAny {
			ir.device.addAny(i)
		} else {
			ir.device.addConcrete(rule.Device, i)
		}

		if rule.Proto == policy.ProtocolAny {
			ir.proto.addAny(i)
		} else {
			ir.proto.addConcrete(rule.Proto, i)
		}

		if rule.HasExe {
			ir.exe.addConcrete(rule.Exe, i)
		} else {
			ir.exe.addAny(i)
		}

		if rule.HasPort {
			ivs = append(ivs, interval.Interval{
				Lo:      int(rule.Port.Lo),
				Hi:      int(rule.Port.Hi) + 1,
				Indices: []int{i},
			})
		} else {
			ir.anyPort = append(ir.anyPort, i)
		}

		if rule.HasSubnet {
			norm := rule.Subnet.Normalize()
			p := netip.PrefixFrom(norm.Prefix, norm.Bits)
			if !p.IsValid() {
				return nil, pderrors.Errorf(pderrors.KindInternal, "rule[%d]: subnet mask %d invalid for address %s", i, norm.Bits, norm.Prefix)
			}
			if norm.Prefix.Is4() {
				ir.v4Table.Insert(p, i)
			} else {
				ir.v6Table.Insert(p, i)
			}
		} else {
			ir.anyV4 = append(ir.anyV4, i)
			ir.anyV6 = append(ir.anyV6, i)
		}
	}

	ir.port = interval.Build(ivs)

	if err := ir.checkCoverage(len(rules.Rules)); err != nil {
		return nil, err
	}

	return ir, nil
}

// checkCoverage verifies that every rule index 0..n appears in at least
// one bucket of the device, protocol and exe indices. It does not detect
// an index listed twice, and it does not check the port or subnet
// structures. A violation here means a
// bug in Build above, not a malformed policy — policy.Rules.Validate
// already rejected structurally invalid input before Build ran.
func (ir *IndexedRules) checkCoverage(n int) error {
	seenDevice := coverageSet(n, ir.device.any)
	for _, list := range ir.device.concrete {
		markCoverage(seenDevice, list)
	}
	if !fullyCovered(seenDevice) {
		return pderrors.New(pderrors.KindInternal, "InternalInvariantViolation: rule index missing from device index")
	}

	seenProto := coverageSet(n, ir.proto.any)
	for _, list := range ir.proto.concrete {
		markCoverage(seenProto, list)
	}
	if !fullyCovered(seenProto) {
		return pderrors.New(pderrors.KindInternal, "InternalInvariantViolation: rule index missing from protocol index")
	}

	seenExe := coverageSet(n, ir.exe.any)
	for _, list := range ir.exe.concrete {
		markCoverage(seenExe, list)
	}
	if !fullyCovered(seenExe) {
		return pderrors.New(pderrors.KindInternal, "InternalInvariantViolation: rule index missing from exe index")
	}

	return nil
}

func coverageSet(n int, initial []int) []bool {
	seen := make([]bool, n)
	markCoverage(seen, initial)
	return seen
}

func markCoverage(seen []bool, indices []int) {
	for _, i := range indices {
		seen[i] = true
	}
}

func fullyCovered(seen []bool) bool {
	for _, ok := range seen {
		if !ok {
			return false
		}
	}
	return true
}

// CandidatePair is one of the five (concrete, wildcard) pairs the
// matcher chooses between by total length, per spec.md §4.3 step 4-5.
type CandidatePair struct {
	Concrete, Wildcard []int
}

func (p CandidatePair) len() int { return len(p.Concrete) + len(p.Wildcard) }

// Combined returns the concrete list followed by the wildcard list, the
// iteration order spec.md §4.3 step 6 confirms candidates in.
func (p CandidatePair) Combined() []int {
	out := make([]int, 0, len(p.Concrete)+len(p.Wildcard))
	out = append(out, p.Concrete...)
	out = append(out, p.Wildcard...)
	return out
}

// CandidatePairs returns the five (concrete, wildcard) pairs for a packet
// descriptor, in the fixed order (device, protocol, exe, port, ip).
func (ir *IndexedRules) CandidatePairs(device policy.Device, proto policy.Protocol, exe string, port uint16, addr netip.Addr) [5]CandidatePair {
	dc, da := ir.deviceCandidates(device)
	pc, pa := ir.protoCandidates(proto)
	ec, ea := ir.exeCandidates(exe)
	prc, pra := ir.portCandidates(port)
	ic, ia := ir.ipCandidates(addr)
	return [5]CandidatePair{
		{dc, da},
		{pc, pa},
		{ec, ea},
		{prc, pra},
		{ic, ia},
	}
}

// SmallestPair returns the pair with the minimum total length among
// pairs, implementing spec.md §4.3 step 5. The order of equal-length
// ties is resolved by the first pair encountered in the fixed order
// above, which has no bearing on correctness (only on how many
// candidates get re-verified).
func SmallestPair(pairs [5]CandidatePair) CandidatePair {
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.len() < best.len() {
			best = p
		}
	}
	return best
}

// String is used only in diagnostics; it is not part of the matcher hot path.
func (ir *IndexedRules) String() string {
	return fmt.Sprintf("IndexedRules{rules=%d, v4=%d, v6=%d}", len(ir.raw), ir.v4Table.Size(), ir.v6Table.Size())
}

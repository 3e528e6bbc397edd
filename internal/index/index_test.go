// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package index

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perimeterd/perimeterd/internal/policy"
)

// scenarioRules builds the five-rule policy used throughout spec §8's
// end-to-end scenarios.
func scenarioRules() policy.Rules {
	return policy.Rules{
		DefaultTarget: policy.Drop(),
		Rules: []policy.Rule{
			{ // 0: in, *, *, *, 1.1.1.1/32 -> accept
				Device: policy.DeviceInbound,
				HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("1.1.1.1"), Bits: 32},
				Target: policy.Accept(),
			},
			{ // 1: in, tcp, *, *, 1.1.1.1/32 -> accept
				Device: policy.DeviceInbound, Proto: policy.ProtocolTCP,
				HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("1.1.1.1"), Bits: 32},
				Target: policy.Accept(),
			},
			{ // 2: in, tcp, *, *, 2.2.2.0/30 -> accept
				Device: policy.DeviceInbound, Proto: policy.ProtocolTCP,
				HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("2.2.2.0"), Bits: 30},
				Target: policy.Accept(),
			},
			{ // 3: in, *, "", 10-200, 2.2.2.2/32 -> accept
				Device: policy.DeviceInbound,
				HasExe: true, Exe: "",
				HasPort: true, Port: policy.PortRange{Lo: 10, Hi: 200},
				HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("2.2.2.2"), Bits: 32},
				Target: policy.Accept(),
			},
			{ // 4: in, *, "", 100-100, 0.0.0.0/0 -> accept
				Device: policy.DeviceInbound,
				HasExe: true, Exe: "",
				HasPort: true, Port: policy.PortRange{Lo: 100, Hi: 100},
				HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("0.0.0.0"), Bits: 0},
				Target: policy.Accept(),
			},
		},
	}
}

func TestBuildCoversEveryRuleIndex(t *testing.T) {
	ir, err := Build(scenarioRules())
	require.NoError(t, err)
	if len(ir.Raw()) != 5 {
		t.Fatalf("expected 5 raw rules, got %d", len(ir.Raw()))
	}
}

func TestDeviceFieldPartition(t *testing.T) {
	rules := policy.Rules{Rules: []policy.Rule{
		{Device: policy.DeviceInbound, Target: policy.Accept()},
		{Device: policy.DeviceAny, Target: policy.Drop()},
	}}
	ir, err := Build(rules)
	require.NoError(t, err)
	concrete, any := ir.deviceCandidates(policy.DeviceInbound)
	if len(concrete) != 1 || concrete[0] != 0 {
		t.Errorf("expected [0] in concrete inbound bucket, got %v", concrete)
	}
	if len(any) != 1 || any[0] != 1 {
		t.Errorf("expected [1] in any_device bucket, got %v", any)
	}
}

func TestIPCandidatesLongestPrefixWins(t *testing.T) {
	ir, err := Build(scenarioRules())
	require.NoError(t, err)
	concrete, _ := ir.ipCandidates(netip.MustParseAddr("2.2.2.2"))
	if len(concrete) != 1 || concrete[0] != 3 {
		t.Fatalf("expected rule 3's /32 to win over rule 2's /30, got %v", concrete)
	}
}

func TestPortCandidatesIntervalHit(t *testing.T) {
	ir, err := Build(scenarioRules())
	require.NoError(t, err)
	concrete, any := ir.portCandidates(100)
	if len(concrete) != 2 {
		t.Fatalf("expected both port-bearing rules 3 and 4 at port 100, got %v", concrete)
	}
	if len(any) != 3 {
		t.Fatalf("expected the 3 port-wildcard rules, got %v", any)
	}
}

func TestSmallestPairPicksMinimum(t *testing.T) {
	pairs := [5]CandidatePair{
		{Concrete: []int{1, 2, 3}, Wildcard: []int{4, 5}},
		{Concrete: []int{1}, Wildcard: nil},
		{Concrete: []int{1, 2}, Wildcard: []int{3}},
		{Concrete: nil, Wildcard: nil},
		{Concrete: []int{1, 2, 3, 4}, Wildcard: []int{5, 6}},
	}
	got := SmallestPair(pairs)
	if got.len() != 0 {
		t.Fatalf("expected the empty pair to win, got len %d", got.len())
	}
}

func TestBuildRejectsInvalidSubnetBits(t *testing.T) {
	// A subnet whose address can't be masked to Bits produces an
	// InternalInvariantViolation-style error rather than panicking.
	rules := policy.Rules{Rules: []policy.Rule{
		{HasSubnet: true, Subnet: policy.Subnet{Prefix: netip.MustParseAddr("1.1.1.1"), Bits: 200}, Target: policy.Accept()},
	}}
	if _, err := Build(rules); err == nil {
		t.Fatal("expected an error for an out-of-range subnet mask")
	}
}

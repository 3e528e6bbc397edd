// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package policy defines the user-authored firewall policy: an ordered
// list of rules, named rate-limit buckets, and a default action. It is
// the immutable input from which internal/index derives its read
// optimized lookup structures.
package policy

import (
	"net/netip"

	"github.com/google/uuid"
)

// Device is the packet direction a rule matches against.
type Device int

const (
	// DeviceAny matches packets regardless of direction.
	DeviceAny Device = iota
	DeviceInbound
	DeviceOutbound
)

func (d Device) String() string {
	switch d {
	case DeviceInbound:
		return "inbound"
	case DeviceOutbound:
		return "outbound"
	default:
		return "any"
	}
}

// Protocol is the transport protocol a rule matches against.
type Protocol int

const (
	ProtocolAny Protocol = iota
	ProtocolTCP
	ProtocolUDP
	ProtocolUDPLite
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolUDPLite:
		return "udp-lite"
	default:
		return "any"
	}
}

// TargetKind distinguishes the three possible rule targets.
type TargetKind int

const (
	TargetAccept TargetKind = iota
	TargetDrop
	TargetRateLimit
)

// Target is the action a matching rule applies. For TargetRateLimit,
// BucketIndex names the RateLimitRule (by position in Rules.RateLimits)
// whose bucket is charged.
type Target struct {
	Kind        TargetKind
	BucketIndex int
}

func Accept() Target { return Target{Kind: TargetAccept} }
func Drop() Target   { return Target{Kind: TargetDrop} }
func RateLimit(bucketIndex int) Target {
	return Target{Kind: TargetRateLimit, BucketIndex: bucketIndex}
}

// PortRange is an inclusive [Lo, Hi] port range. A rule with no port
// filter leaves this as the zero value and Rule.HasPort false.
type PortRange struct {
	Lo uint16
	Hi uint16
}

// Subnet is an IP prefix filter: the network address and a mask length
// (in bits, relative to the address's own family — 0-32 for v4, 0-128
// for v6). The address is always normalized (host bits zeroed) by
// Normalize before use in index construction.
type Subnet struct {
	Prefix netip.Addr
	Bits   int
}

// Normalize returns the subnet with host bits masked off, i.e. the
// canonical network prefix for (Prefix, Bits).
func (s Subnet) Normalize() Subnet {
	p, err := s.Prefix.Prefix(s.Bits)
	if err != nil {
		return s
	}
	return Subnet{Prefix: p.Masked().Addr(), Bits: s.Bits}
}

// Rule is a single ordered policy entry. A zero-valued optional field
// (HasX == false) means "wildcard" for that dimension: device/protocol
// use the Any sentinel directly, exe/port/subnet use explicit presence
// flags since their own zero values (empty string, zero range, zero
// prefix) are meaningful inputs.
type Rule struct {
	Device Device
	Proto  Protocol

	Exe    string
	HasExe bool

	Port    PortRange
	HasPort bool

	Subnet    Subnet
	HasSubnet bool

	Target Target
}

// RateLimitRule names a rate bucket and its byte budget per window.
type RateLimitRule struct {
	Name       string
	LimitBytes uint64
}

// Rules is the full policy set pushed wholesale over the control
// channel: an ordered rule list, ordered rate-limit bucket
// definitions, and a default action applied when no rule matches.
type Rules struct {
	Rules         []Rule
	RateLimits    []RateLimitRule
	DefaultTarget Target
}

// NewGenerationID mints an identifier for a single policy swap, used to
// correlate logs and metrics across the daemon with the rule set that
// produced them. It plays no role in matching.
func NewGenerationID() uuid.UUID {
	return uuid.New()
}

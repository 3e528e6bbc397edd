// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"fmt"
	"net/netip"

	"gopkg.in/yaml.v3"
)

// wireRules is the YAML-friendly shape of Rules pushed over the control
// channel. Device/Proto/Target are plain strings rather than the
// internal int enums so a hand-written policy document stays readable.
type wireRules struct {
	Rules         []wireRule          `yaml:"rules"`
	RateLimits    []wireRateLimitRule `yaml:"rate_limits"`
	DefaultTarget string              `yaml:"default_target"`
}

type wireRule struct {
	Device  string `yaml:"device,omitempty"`
	Proto   string `yaml:"protocol,omitempty"`
	Exe     *string `yaml:"exe,omitempty"`
	PortLo  *int   `yaml:"port_lo,omitempty"`
	PortHi  *int   `yaml:"port_hi,omitempty"`
	Subnet  string `yaml:"subnet,omitempty"`
	Target  string `yaml:"target"`
}

type wireRateLimitRule struct {
	Name       string `yaml:"name"`
	LimitBytes uint64 `yaml:"limit_bytes"`
}

// MarshalYAML encodes r in the wire format used by the control channel.
func (r Rules) MarshalYAML() (interface{}, error) {
	w := wireRules{
		RateLimits:    make([]wireRateLimitRule, len(r.RateLimits)),
		DefaultTarget: targetToString(r.DefaultTarget),
	}
	for i, rl := range r.RateLimits {
		w.RateLimits[i] = wireRateLimitRule{Name: rl.Name, LimitBytes: rl.LimitBytes}
	}
	w.Rules = make([]wireRule, len(r.Rules))
	for i, rule := range r.Rules {
		wr := wireRule{
			Device: rule.Device.String(),
			Proto:  rule.Proto.String(),
			Target: targetToString(rule.Target),
		}
		if rule.HasExe {
			exe := rule.Exe
			wr.Exe = &exe
		}
		if rule.HasPort {
			lo, hi := int(rule.Port.Lo), int(rule.Port.Hi)
			wr.PortLo, wr.PortHi = &lo, &hi
		}
		if rule.HasSubnet {
			p, err := rule.Subnet.Prefix.Prefix(rule.Subnet.Bits)
			if err != nil {
				return nil, fmt.Errorf("rule[%d].subnet: %w", i, err)
			}
			wr.Subnet = p.String()
		}
		w.Rules[i] = wr
	}
	return w, nil
}

// UnmarshalYAML decodes r from the wire format.
func (r *Rules) UnmarshalYAML(value *yaml.Node) error {
	var w wireRules
	if err := value.Decode(&w); err != nil {
		return err
	}

	parsed := Rules{
		RateLimits: make([]RateLimitRule, len(w.RateLimits)),
	}
	for i, rl := range w.RateLimits {
		parsed.RateLimits[i] = RateLimitRule{Name: rl.Name, LimitBytes: rl.LimitBytes}
	}

	target, err := targetFromString(w.DefaultTarget)
	if err != nil {
		return fmt.Errorf("default_target: %w", err)
	}
	parsed.DefaultTarget = target

	parsed.Rules = make([]Rule, len(w.Rules))
	for i, wr := range w.Rules {
		rule := Rule{
			Device: deviceFromString(wr.Device),
			Proto:  protoFromString(wr.Proto),
		}
		if wr.Exe != nil {
			rule.HasExe, rule.Exe = true, *wr.Exe
		}
		if wr.PortLo != nil && wr.PortHi != nil {
			rule.HasPort = true
			rule.Port = PortRange{Lo: uint16(*wr.PortLo), Hi: uint16(*wr.PortHi)}
		}
		if wr.Subnet != "" {
			p, err := netip.ParsePrefix(wr.Subnet)
			if err != nil {
				return fmt.Errorf("rule[%d].subnet: %w", i, err)
			}
			rule.HasSubnet = true
			rule.Subnet = Subnet{Prefix: p.Addr(), Bits: p.Bits()}
		}
		t, err := targetFromString(wr.Target)
		if err != nil {
			return fmt.Errorf("rule[%d].target: %w", i, err)
		}
		rule.Target = t
		parsed.Rules[i] = rule
	}

	*r = parsed
	return nil
}

// Marshal renders r as YAML bytes.
func Marshal(r Rules) ([]byte, error) {
	return yaml.Marshal(r)
}

// Unmarshal parses a YAML-encoded Rules document.
func Unmarshal(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func deviceFromString(s string) Device {
	switch s {
	case "inbound", "in":
		return DeviceInbound
	case "outbound", "out":
		return DeviceOutbound
	default:
		return DeviceAny
	}
}

func protoFromString(s string) Protocol {
	switch s {
	case "tcp":
		return ProtocolTCP
	case "udp":
		return ProtocolUDP
	case "udp-lite", "udplite":
		return ProtocolUDPLite
	default:
		return ProtocolAny
	}
}

func targetToString(t Target) string {
	switch t.Kind {
	case TargetAccept:
		return "accept"
	case TargetDrop:
		return "drop"
	case TargetRateLimit:
		return fmt.Sprintf("rate-limit:%d", t.BucketIndex)
	default:
		return "drop"
	}
}

func targetFromString(s string) (Target, error) {
	switch {
	case s == "accept":
		return Accept(), nil
	case s == "drop" || s == "":
		return Drop(), nil
	default:
		var idx int
		if _, err := fmt.Sscanf(s, "rate-limit:%d", &idx); err != nil {
			return Target{}, fmt.Errorf("unrecognized target %q", s)
		}
		return RateLimit(idx), nil
	}
}

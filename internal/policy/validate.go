// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"fmt"
	"strings"

	"github.com/perimeterd/perimeterd/internal/errors"
)

// ValidationError describes a single malformed field in a pushed policy.
type ValidationError struct {
	RuleIndex int // -1 for errors not tied to a specific rule
	Field     string
	Message   string
}

func (e ValidationError) Error() string {
	if e.RuleIndex < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("rule[%d].%s: %s", e.RuleIndex, e.Field, e.Message)
}

// ValidationErrors collects every problem found in a policy so the
// caller can reject it with a complete report rather than failing on
// the first rule.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every invariant spec.md §3 places on a Rules document:
// port ranges are non-inverted, subnet masks are in range for their
// address family, and every rate-limit target references an existing
// bucket. It never mutates r.
func (r Rules) Validate() ValidationErrors {
	var errs ValidationErrors

	for i, rule := range r.Rules {
		if rule.HasPort && rule.Port.Lo > rule.Port.Hi {
			errs = append(errs, ValidationError{
				RuleIndex: i, Field: "port",
				Message: fmt.Sprintf("inverted range [%d, %d]", rule.Port.Lo, rule.Port.Hi),
			})
		}
		if rule.HasSubnet {
			maxBits := 32
			if rule.Subnet.Prefix.Is6() && !rule.Subnet.Prefix.Is4In6() {
				maxBits = 128
			}
			if rule.Subnet.Bits < 0 || rule.Subnet.Bits > maxBits {
				errs = append(errs, ValidationError{
					RuleIndex: i, Field: "subnet",
					Message: fmt.Sprintf("mask length %d out of range for family (max %d)", rule.Subnet.Bits, maxBits),
				})
			}
		}
		if rule.Target.Kind == TargetRateLimit {
			if rule.Target.BucketIndex < 0 || rule.Target.BucketIndex >= len(r.RateLimits) {
				errs = append(errs, ValidationError{
					RuleIndex: i, Field: "target",
					Message: fmt.Sprintf("rate-limit bucket index %d out of range (have %d buckets)", rule.Target.BucketIndex, len(r.RateLimits)),
				})
			}
		}
	}

	if r.DefaultTarget.Kind == TargetRateLimit {
		if r.DefaultTarget.BucketIndex < 0 || r.DefaultTarget.BucketIndex >= len(r.RateLimits) {
			errs = append(errs, ValidationError{
				RuleIndex: -1, Field: "default_target",
				Message: fmt.Sprintf("rate-limit bucket index %d out of range (have %d buckets)", r.DefaultTarget.BucketIndex, len(r.RateLimits)),
			})
		}
	}

	return errs
}

// AsError wraps a non-empty ValidationErrors as a structured
// KindValidation error, or returns nil if there are no errors.
func (e ValidationErrors) AsError() error {
	if len(e) == 0 {
		return nil
	}
	return errors.Wrap(e, errors.KindValidation, "policy validation failed")
}

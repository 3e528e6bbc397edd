// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pderrors "github.com/perimeterd/perimeterd/internal/errors"
)

func TestValidateInvertedPort(t *testing.T) {
	r := Rules{Rules: []Rule{{HasPort: true, Port: PortRange{Lo: 100, Hi: 10}, Target: Accept()}}}
	errs := r.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "port", errs[0].Field)
}

func TestValidateSubnetMaskOutOfRange(t *testing.T) {
	r := Rules{Rules: []Rule{{
		HasSubnet: true,
		Subnet:    Subnet{Prefix: netip.MustParseAddr("10.0.0.0"), Bits: 33},
		Target:    Drop(),
	}}}
	errs := r.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "subnet", errs[0].Field)
}

func TestValidateSubnetV6MaskAllowed(t *testing.T) {
	r := Rules{Rules: []Rule{{
		HasSubnet: true,
		Subnet:    Subnet{Prefix: netip.MustParseAddr("fe80::"), Bits: 64},
		Target:    Drop(),
	}}}
	assert.Empty(t, r.Validate())
}

func TestValidateRateLimitBucketOutOfRange(t *testing.T) {
	r := Rules{
		Rules:      []Rule{{Target: RateLimit(2)}},
		RateLimits: []RateLimitRule{{Name: "a", LimitBytes: 100}},
	}
	errs := r.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "target", errs[0].Field)
}

func TestValidateDefaultTargetRateLimitOutOfRange(t *testing.T) {
	r := Rules{DefaultTarget: RateLimit(0)}
	errs := r.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, -1, errs[0].RuleIndex)
}

func TestValidateClean(t *testing.T) {
	r := Rules{
		Rules: []Rule{
			{HasPort: true, Port: PortRange{Lo: 10, Hi: 20}, Target: RateLimit(0)},
		},
		RateLimits:    []RateLimitRule{{Name: "a", LimitBytes: 100}},
		DefaultTarget: Drop(),
	}
	assert.Empty(t, r.Validate())
}

func TestAsErrorKind(t *testing.T) {
	r := Rules{Rules: []Rule{{Target: RateLimit(0)}}}
	err := r.Validate().AsError()
	require.Error(t, err)
	assert.Equal(t, pderrors.KindValidation, pderrors.GetKind(err))
}

func TestAsErrorNilWhenClean(t *testing.T) {
	assert.NoError(t, ValidationErrors(nil).AsError())
}

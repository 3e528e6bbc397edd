// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cache

import (
	"testing"
	"time"

	"github.com/perimeterd/perimeterd/internal/clock"
	"github.com/perimeterd/perimeterd/internal/policy"
)

func TestInsertThenGetHits(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(0, 0))
	c := NewWithClock(mc)

	idx := 3
	c.Insert(42, Entry{RuleIndex: &idx, Target: policy.Accept()})

	got, ok := c.Get(42)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.RuleIndex == nil || *got.RuleIndex != 3 {
		t.Errorf("expected rule index 3, got %v", got.RuleIndex)
	}
}

func TestGetMiss(t *testing.T) {
	c := New()
	if _, ok := c.Get(999); ok {
		t.Fatal("expected cache miss on unseen key")
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(0, 0))
	c := NewWithClock(mc)

	c.Insert(1, Entry{Target: policy.Drop()})
	mc.Advance(TTL + time.Second)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected entry to have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, Len()=%d", c.Len())
	}
}

func TestStoresNilRuleIndexForDefaultTarget(t *testing.T) {
	c := New()
	c.Insert(7, Entry{RuleIndex: nil, Target: policy.Drop()})
	got, ok := c.Get(7)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.RuleIndex != nil {
		t.Errorf("expected nil rule index for default-applied decision, got %v", got.RuleIndex)
	}
}

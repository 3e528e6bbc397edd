// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine implements the Matcher & Decision Pipeline: it turns a
// packet descriptor into an (optional rule index, accept boolean) pair
// by consulting the Decision Cache, falling back to the Indexed Rule
// Table on a miss, and charging a rate-limit bucket when the winning
// target calls for one.
package engine

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/perimeterd/perimeterd/internal/cache"
	"github.com/perimeterd/perimeterd/internal/clock"
	"github.com/perimeterd/perimeterd/internal/index"
	"github.com/perimeterd/perimeterd/internal/logging"
	"github.com/perimeterd/perimeterd/internal/metrics"
	"github.com/perimeterd/perimeterd/internal/policy"
	"github.com/perimeterd/perimeterd/internal/ratelimit"
)

// generation bundles an IndexedRules with the rate-limit buckets and
// decision cache built alongside it at the same policy swap. Swapping
// the policy means building a new generation and storing its pointer;
// in-flight classifications holding the old pointer finish against the
// old buckets and cache, which are garbage once their last reader
// drops the reference — no channel ownership or actor needed to
// satisfy spec.md §5's concurrency contract, just an atomic pointer
// plus per-structure mutexes already carried inside Cache and Bucket.
type generation struct {
	id          uuid.UUID
	rules       *index.IndexedRules
	buckets     []*ratelimit.Bucket
	bucketNames []string
	cache       *cache.Cache
}

// Engine is the classifier. The zero value is not usable; construct
// with New or NewWithClock. Engine is safe for concurrent use from
// multiple capture-path goroutines.
type Engine struct {
	current atomic.Pointer[generation]
	clock   clock.Clock
	log     *logging.Logger
	metrics *metrics.Metrics
}

// New returns an Engine with no policy loaded; every classification
// returns (nil, false) until SwapPolicy is called.
func New() *Engine {
	return NewWithClock(clock.Real)
}

// NewWithClock is New with an injectable clock, propagated to every
// rate-limit bucket and cache the engine creates on policy swap.
func NewWithClock(c clock.Clock) *Engine {
	return &Engine{clock: c, log: logging.WithComponent("engine")}
}

// SetMetrics attaches a Metrics instance classification, cache, and
// rate-limit outcomes are reported to. An Engine without metrics
// attached simply skips instrumentation; tests need not set one up.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SwapPolicy builds a new IndexedRules from rules and atomically
// replaces the engine's active generation. Rate-limit buckets and the
// decision cache are rebuilt from scratch — a policy change resets
// rate state and invalidates every cached decision, per spec.md §3's
// lifecycle note.
func (e *Engine) SwapPolicy(rules policy.Rules) error {
	if err := rules.Validate().AsError(); err != nil {
		return err
	}

	ir, err := index.Build(rules)
	if err != nil {
		return err
	}

	buckets := make([]*ratelimit.Bucket, len(ir.RateLimits()))
	bucketNames := make([]string, len(ir.RateLimits()))
	for i, rl := range ir.RateLimits() {
		buckets[i] = ratelimit.NewBucketWithClock(rl.LimitBytes, e.clock)
		bucketNames[i] = rl.Name
	}

	id := policy.NewGenerationID()
	e.current.Store(&generation{
		id:          id,
		rules:       ir,
		buckets:     buckets,
		bucketNames: bucketNames,
		cache:       cache.NewWithClock(e.clock),
	})

	e.log.Info("policy swapped", "generation", id, "rules", len(rules.Rules), "rate_limits", len(rules.RateLimits))
	return nil
}

// CurrentGeneration returns the identifier of the active policy
// generation, and false if no policy has been loaded yet.
func (e *Engine) CurrentGeneration() (uuid.UUID, bool) {
	gen := e.current.Load()
	if gen == nil {
		return uuid.UUID{}, false
	}
	return gen.id, true
}

// IsAcceptable is the classifier contract of spec.md §4.3: given a
// packet, it returns the matched rule index (nil if none) and whether
// the packet is accepted. It never returns an error — a packet
// arriving before any policy has been loaded is dropped by default.
func (e *Engine) IsAcceptable(pkt Packet) (*int, bool) {
	gen := e.current.Load()
	if gen == nil {
		return nil, false
	}

	fp := fingerprint(pkt.Device, pkt.Proto, pkt.Addr, pkt.Port, pkt.Exe)

	if entry, ok := gen.cache.Get(fp); ok {
		if e.metrics != nil {
			e.metrics.ObserveCacheResult(true)
		}
		ruleIdx, accept := e.applyTarget(gen, entry.RuleIndex, entry.Target, pkt.PayloadLen)
		if e.metrics != nil {
			e.metrics.ObserveClassification(accept)
		}
		return ruleIdx, accept
	}

	if e.metrics != nil {
		e.metrics.ObserveCacheResult(false)
	}

	ruleIdx, target := classify(gen.rules, pkt)
	gen.cache.Insert(fp, cache.Entry{RuleIndex: ruleIdx, Target: target})

	resultIdx, accept := e.applyTarget(gen, ruleIdx, target, pkt.PayloadLen)
	if e.metrics != nil {
		e.metrics.ObserveClassification(accept)
	}
	return resultIdx, accept
}

func (e *Engine) applyTarget(gen *generation, ruleIdx *int, target policy.Target, payloadLen int) (*int, bool) {
	switch target.Kind {
	case policy.TargetAccept:
		return ruleIdx, true
	case policy.TargetRateLimit:
		if target.BucketIndex < 0 || target.BucketIndex >= len(gen.buckets) {
			e.log.Warn("rate-limit target references unknown bucket", "bucket_index", target.BucketIndex)
			return ruleIdx, false
		}
		accepted := gen.buckets[target.BucketIndex].Charge(uint64(payloadLen))
		if !accepted && e.metrics != nil {
			e.metrics.ObserveRateLimitDrop(gen.bucketNames[target.BucketIndex])
		}
		return ruleIdx, accepted
	default: // policy.TargetDrop
		return ruleIdx, false
	}
}

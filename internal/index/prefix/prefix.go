// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package prefix wraps github.com/gaissmai/bart into the longest-prefix-match
// table internal/index needs: insertion of the ascending rule-index list
// for an exact (prefix, mask), and longest-prefix-match lookup by address.
// Two Tables exist side by side upstream, one per address family, so the
// "segregated by family" invariant of the indexed rule table holds by
// construction rather than by runtime branching inside this package.
package prefix

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// Table is a longest-prefix-match table from exact (prefix, mask) to the
// ascending rule-index list that specifies it.
type Table struct {
	t bart.Table[[]int]
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Insert appends idx to the index list stored at pfx (already masked by
// the caller), preserving ascending order since callers insert rules in
// ascending index order during index construction.
func (t *Table) Insert(pfx netip.Prefix, idx int) {
	existing, _ := t.t.Get(pfx)
	t.t.Insert(pfx, append(existing, idx))
}

// Lookup performs a longest-prefix-match for addr and returns the index
// list stored at the matching prefix, or nil if no prefix covers addr.
func (t *Table) Lookup(addr netip.Addr) []int {
	v, ok := t.t.Lookup(addr)
	if !ok {
		return nil
	}
	return v
}

// Size reports the number of distinct prefixes stored.
func (t *Table) Size() int {
	return t.t.Size()
}

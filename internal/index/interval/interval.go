// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package interval implements a half-open interval tree over the port
// domain [0, 65536), used by internal/index to answer "which rules have
// a port range covering this port" in O(log n + k).
package interval

import "sort"

// Interval is a half-open range [Lo, Hi) carrying the rule indices that
// share it. Port ranges are stored as [lo, hi+1) so an inclusive
// [lo, hi] policy range becomes a half-open interval here.
type Interval struct {
	Lo, Hi  int
	Indices []int
}

// Tree is a static, centered interval tree built once from a fixed set
// of intervals and queried many times. It has no update operations;
// internal/index rebuilds it wholesale on every policy swap.
type Tree struct {
	root *node
}

type node struct {
	center      int
	byLo        []Interval // intervals at this node, sorted by Lo ascending
	byHi        []Interval // same intervals, sorted by Hi descending
	left, right *node
}

// Build constructs a Tree from ivs. Overlapping and duplicate intervals
// are both permitted; a point covered by several intervals returns the
// union of their indices.
func Build(ivs []Interval) *Tree {
	return &Tree{root: build(append([]Interval(nil), ivs...))}
}

func build(ivs []Interval) *node {
	if len(ivs) == 0 {
		return nil
	}

	center := medianEndpoint(ivs)

	var atCenter, left, right []Interval
	for _, iv := range ivs {
		switch {
		case iv.Hi <= center:
			left = append(left, iv)
		case iv.Lo > center:
			right = append(right, iv)
		default:
			atCenter = append(atCenter, iv)
		}
	}

	n := &node{center: center, byLo: atCenter}
	n.byHi = append([]Interval(nil), atCenter...)

	sort.Slice(n.byLo, func(i, j int) bool { return n.byLo[i].Lo < n.byLo[j].Lo })
	sort.Slice(n.byHi, func(i, j int) bool { return n.byHi[i].Hi > n.byHi[j].Hi })

	n.left = build(left)
	n.right = build(right)
	return n
}

// medianEndpoint picks a split point from the intervals' Lo endpoints so
// the tree stays roughly balanced regardless of the domain's actual range.
// The split point is always some interval's Lo, so that interval is kept
// at the node and every level of build makes progress.
func medianEndpoint(ivs []Interval) int {
	points := make([]int, 0, len(ivs))
	for _, iv := range ivs {
		points = append(points, iv.Lo)
	}
	sort.Ints(points)
	return points[len(points)/2]
}

// QueryPoint returns every rule index whose half-open interval contains p.
func (t *Tree) QueryPoint(p int) []int {
	if t == nil || t.root == nil {
		return nil
	}
	var out []int
	t.root.queryPoint(p, &out)
	return out
}

func (n *node) queryPoint(p int, out *[]int) {
	if n == nil {
		return
	}
	if p < n.center {
		for _, iv := range n.byLo {
			if iv.Lo > p {
				break
			}
			out2 := out
			*out2 = append(*out2, iv.Indices...)
		}
		n.left.queryPoint(p, out)
		return
	}
	if p > n.center {
		for _, iv := range n.byHi {
			if iv.Hi <= p {
				break
			}
			*out = append(*out, iv.Indices...)
		}
		n.right.queryPoint(p, out)
		return
	}
	for _, iv := range n.byLo {
		*out = append(*out, iv.Indices...)
	}
}

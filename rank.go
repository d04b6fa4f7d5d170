// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
)

// A RankRange describes a contiguous block of ranks, [First, Last],
// viewed as a number of groups of RanksPerGroup ranks each.
//
// Bounds are either absolute rank numbers (>= 0) or end-relative
// (< 0), where -1 denotes the last rank of the pool, -2 the one
// before it, and so on. A range whose bounds are both absolute is
// resolved; a range whose bounds are both negative is end-relative.
// The only mixed form is the open-ended range: it starts at an
// absolute rank and extends to an end-relative bound, so that it
// covers whatever the pool has left once its size is known.
//
// Once resolved, an open-ended range may be empty, in which case
// Last is First-1.
//
// RankRanges are values. Registries hold them by index and replace
// them when they need to move.
type RankRange struct {
	First, Last   int
	RanksPerGroup int
}

// MakeFixed returns the resolved range holding groups groups of
// ranksPerGroup ranks each, starting at the absolute rank start.
func MakeFixed(start, ranksPerGroup, groups int) RankRange {
	must.True(start >= 0, "negative start")
	must.True(ranksPerGroup > 0 && groups > 0, "empty range")
	return RankRange{
		First:         start,
		Last:          start + ranksPerGroup*groups - 1,
		RanksPerGroup: ranksPerGroup,
	}
}

// MakeOpenEnded returns the open-ended range starting at the absolute
// rank start and ending at the last rank of the pool.
func MakeOpenEnded(start, ranksPerGroup int) RankRange {
	must.True(start >= 0, "negative start")
	must.True(ranksPerGroup > 0, "empty group")
	return RankRange{First: start, Last: -1, RanksPerGroup: ranksPerGroup}
}

// AppendFixedFromEnd returns the end-relative range holding groups
// groups of ranksPerGroup ranks each, occupying the very end of the
// pool.
func AppendFixedFromEnd(ranksPerGroup, groups int) RankRange {
	must.True(ranksPerGroup > 0 && groups > 0, "empty range")
	size := ranksPerGroup * groups
	return RankRange{First: -size, Last: -1, RanksPerGroup: ranksPerGroup}
}

// ShrinkEndBy returns the open-ended range r with its end moved n
// ranks towards the front of the pool, making room for n ranks
// reserved after it.
func (r RankRange) ShrinkEndBy(n int) RankRange {
	must.Truef(r.OpenEnded(), "ShrinkEndBy on %v", r)
	r.Last -= n
	return r
}

// ShiftBy returns the end-relative range r moved n ranks towards the
// front of the pool.
func (r RankRange) ShiftBy(n int) RankRange {
	must.Truef(r.EndRelative(), "ShiftBy on %v", r)
	r.First -= n
	r.Last -= n
	return r
}

// Resolved tells whether both bounds of r are absolute.
func (r RankRange) Resolved() bool {
	return r.First >= 0 && r.Last >= 0
}

// OpenEnded tells whether r is the open-ended range.
func (r RankRange) OpenEnded() bool {
	return r.First >= 0 && r.Last < 0
}

// EndRelative tells whether both bounds of r are end-relative.
func (r RankRange) EndRelative() bool {
	return r.First < 0 && r.Last < 0
}

// Size returns the number of ranks in r. The size of an open-ended
// range is not known before it is resolved; Size returns -1 for it.
func (r RankRange) Size() int {
	if r.OpenEnded() {
		return -1
	}
	return r.Last - r.First + 1
}

// NumGroups returns the number of groups in r, or -1 if r is open-ended.
func (r RankRange) NumGroups() int {
	if r.OpenEnded() {
		return -1
	}
	return r.Size() / r.RanksPerGroup
}

// IsSingleRank tells whether r holds exactly one group of one rank.
func (r RankRange) IsSingleRank() bool {
	return r.RanksPerGroup == 1 && r.Size() == 1
}

// Resolve returns r with its end-relative bounds converted to
// absolute ranks for a pool of total ranks. An open-ended range
// receives whatever the pool has left, possibly nothing. Resolve
// fails with ErrInsufficientRanks when the pool cannot hold r, and
// with ErrRaggedGroups when the ranks left to an open-ended range do
// not divide into whole groups.
func (r RankRange) Resolve(total int) (RankRange, error) {
	if r.First < 0 {
		r.First += total
	}
	if r.Last < 0 {
		r.Last += total
	}
	n := r.span()
	if r.First < 0 || r.Last >= total || n < 0 {
		return RankRange{}, errors.E(errors.Invalid,
			fmt.Sprintf("resolve range for %d ranks", total), ErrInsufficientRanks)
	}
	if n%r.RanksPerGroup != 0 {
		return RankRange{}, errors.E(errors.Invalid,
			fmt.Sprintf("resolve range for %d ranks: %d ranks do not divide into groups of %d",
				total, n, r.RanksPerGroup), ErrRaggedGroups)
	}
	return r, nil
}

// span returns the number of ranks between the bounds of r, which
// must be of the same kind. It is 0 for an empty resolved range.
func (r RankRange) span() int {
	return r.Last - r.First + 1
}

// Select returns the absolute rank of the element'th rank of the
// group'th group of the resolved range r.
func (r RankRange) Select(group, element int) (int, error) {
	must.Truef(r.First >= 0, "Select on unresolved range %v", r)
	if group < 0 || element < 0 || element >= r.RanksPerGroup {
		return -1, errors.E(errors.Invalid,
			fmt.Sprintf("select (%d, %d) in %v", group, element, r), ErrUnsliceable)
	}
	rank := r.First + group*r.RanksPerGroup + element
	if rank > r.Last {
		return -1, errors.E(errors.Invalid,
			fmt.Sprintf("select (%d, %d) in %v", group, element, r), ErrUnsliceable)
	}
	return rank, nil
}

// Ranks returns every rank of the resolved range r in order.
func (r RankRange) Ranks() []int {
	must.Truef(r.First >= 0, "Ranks on unresolved range %v", r)
	var ranks []int
	for rank := r.First; rank <= r.Last; rank++ {
		ranks = append(ranks, rank)
	}
	return ranks
}

// Contains tells whether the resolved range r contains rank.
func (r RankRange) Contains(rank int) bool {
	return r.First >= 0 && rank >= r.First && rank <= r.Last
}

// String returns a description of r, e.g., "[7,-3]/1".
func (r RankRange) String() string {
	return fmt.Sprintf("[%d,%d]/%d", r.First, r.Last, r.RanksPerGroup)
}

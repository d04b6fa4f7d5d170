// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import "fmt"

// A StepHandle is a deferred reference to the ranks of one step in a
// Registry. An unsliced handle refers to all of the step's ranks; a
// handle sliced with At refers to a single rank within the step,
// chosen by group and element. The selection is checked against the
// step's actual extent only when the registry is resolved.
//
// StepHandles are values and may be copied freely. The zero
// StepHandle is invalid.
type StepHandle struct {
	token          uint64
	step           int
	single, sliced bool
	group, element int
}

// At returns a handle to the element'th rank of the group'th group of
// the step referred to by h.
func (h StepHandle) At(group, element int) StepHandle {
	h.sliced = true
	h.single = true
	h.group = group
	h.element = element
	return h
}

// Index returns the index of the step in its registry.
func (h StepHandle) Index() int { return h.step }

// Sliced tells whether h selects a single (group, element).
func (h StepHandle) Sliced() bool { return h.sliced }

// Group returns the selected group of a sliced handle.
func (h StepHandle) Group() int { return h.group }

// Element returns the selected element of a sliced handle.
func (h StepHandle) Element() int { return h.element }

// IsSingleRank tells whether h refers to exactly one rank: either it
// is sliced, or its step holds a single group of a single rank.
func (h StepHandle) IsSingleRank() bool { return h.single }

// Valid tells whether h was minted by a registry.
func (h StepHandle) Valid() bool { return h.token != 0 }

// ResolveAgainst returns the ranks h refers to within r, the resolved
// range of h's step: one rank for a sliced handle, all of r
// otherwise.
func (h StepHandle) ResolveAgainst(r RankRange) ([]int, error) {
	if !h.sliced {
		return r.Ranks(), nil
	}
	rank, err := r.Select(h.group, h.element)
	if err != nil {
		return nil, err
	}
	return []int{rank}, nil
}

// String returns a description of h, e.g., "step2(1,0)".
func (h StepHandle) String() string {
	if h.sliced {
		return fmt.Sprintf("step%d(%d,%d)", h.step, h.group, h.element)
	}
	return fmt.Sprintf("step%d", h.step)
}

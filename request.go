// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// A commRequest is a deferred request for one or more communicators.
type commRequest struct {
	name string
	// interGroup requests join the same element across every group
	// of a single step.
	interGroup bool
	element    int
	handles    []StepHandle
}

// CreateInterGroupCommunicator requests, for the step referred to by
// the unsliced handle h, communicators that join the same element
// across every group of the step. If element is AllElements, one
// communicator is created per element, named name/element; otherwise
// a single communicator, named name, is created for the chosen
// element.
//
// A later request with the same name replaces an earlier one. A
// request fails with ErrDuplicateName if one of its communicators
// would take the name of a communicator of another request.
func (r *Registry) CreateInterGroupCommunicator(name string, h StepHandle, element int) error {
	op := fmt.Sprintf("intergroup communicator %s", name)
	if err := r.checkRequest(op, name); err != nil {
		return err
	}
	if err := r.checkHandle(op, h); err != nil {
		return err
	}
	if h.sliced {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: handle %v is sliced", op, h))
	}
	if element != AllElements && (element < 0 || element >= r.steps[h.step].rng.RanksPerGroup) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("%s: element %d in %v", op, element, r.steps[h.step].rng), ErrUnsliceable)
	}
	return r.putComm(op, commRequest{name: name, interGroup: true, element: element, handles: []StepHandle{h}})
}

// CreateCommunicator requests a communicator, named name, that joins
// every rank referred to by the provided handles, in order. Ranks
// referred to by more than one handle are included once.
//
// A later request with the same name replaces an earlier one. The
// request fails with ErrDuplicateName if another request produces a
// communicator of the same name.
func (r *Registry) CreateCommunicator(name string, handles ...StepHandle) error {
	op := fmt.Sprintf("communicator %s", name)
	if err := r.checkRequest(op, name); err != nil {
		return err
	}
	if len(handles) == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: no handles", op))
	}
	for _, h := range handles {
		if err := r.checkHandle(op, h); err != nil {
			return err
		}
	}
	return r.putComm(op, commRequest{name: name, handles: append([]StepHandle(nil), handles...)})
}

// TagRank records the single rank referred to by h under the provided
// name. TagRank fails with ErrMultiRankTag if h may refer to more than
// one rank; slice the handle with At to choose one.
//
// A later tag with the same name replaces an earlier one.
func (r *Registry) TagRank(name string, h StepHandle) error {
	op := fmt.Sprintf("tag %s", name)
	if err := r.checkRequest(op, name); err != nil {
		return err
	}
	if err := r.checkHandle(op, h); err != nil {
		return err
	}
	if !h.IsSingleRank() {
		return errors.E(errors.Invalid,
			fmt.Sprintf("%s: %v in %v", op, h, r.steps[h.step].rng), ErrMultiRankTag)
	}
	if prev, ok := r.tags[name]; ok {
		log.Debug.Printf("rankspace: tag %s: replacing %v with %v", name, prev, h)
	}
	r.tags[name] = h
	return nil
}

func (r *Registry) checkRequest(op, name string) error {
	if r.state != Building {
		return errors.E(errors.Invalid, op, ErrResolved)
	}
	if name == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: empty name", op))
	}
	return nil
}

// putComm records req, replacing any earlier request of the same
// name. It fails with ErrDuplicateName if a communicator produced by
// req would share its name with one produced by another request.
func (r *Registry) putComm(op string, req commRequest) error {
	names := r.commNames(req)
	for _, other := range sortedKeys(r.comms) {
		if other == req.name {
			continue
		}
		for name := range r.commNames(r.comms[other]) {
			if names[name] {
				return errors.E(errors.Exists,
					fmt.Sprintf("%s: communicator %s is also produced by request %s", op, name, other),
					ErrDuplicateName)
			}
		}
	}
	if _, ok := r.comms[req.name]; ok {
		log.Debug.Printf("rankspace: communicator %s: replacing earlier request", req.name)
	}
	r.comms[req.name] = req
	return nil
}

// commNames returns the names of the communicators that req produces
// once resolved.
func (r *Registry) commNames(req commRequest) map[string]bool {
	if !req.interGroup || req.element != AllElements {
		return map[string]bool{req.name: true}
	}
	names := make(map[string]bool)
	for e := 0; e < r.steps[req.handles[0].step].rng.RanksPerGroup; e++ {
		names[fmt.Sprintf("%s/%d", req.name, e)] = true
	}
	return names
}

// resolve expands the request into concrete communicators using the
// resolved ranges in l.
func (req commRequest) resolve(l *Layout) ([]Communicator, error) {
	if req.interGroup {
		rng := l.steps[req.handles[0].step].Range
		if req.element != AllElements {
			return []Communicator{{Name: req.name, Ranks: interGroupRanks(rng, req.element)}}, nil
		}
		comms := make([]Communicator, rng.RanksPerGroup)
		for e := range comms {
			comms[e] = Communicator{
				Name:  fmt.Sprintf("%s/%d", req.name, e),
				Ranks: interGroupRanks(rng, e),
			}
		}
		return comms, nil
	}
	var (
		ranks []int
		seen  = make(map[int]bool)
	)
	for _, h := range req.handles {
		hranks, err := h.ResolveAgainst(l.steps[h.step].Range)
		if err != nil {
			return nil, err
		}
		for _, rank := range hranks {
			if !seen[rank] {
				seen[rank] = true
				ranks = append(ranks, rank)
			}
		}
	}
	return []Communicator{{Name: req.name, Ranks: ranks}}, nil
}

// interGroupRanks returns the element'th rank of every group of rng.
func interGroupRanks(rng RankRange, element int) []int {
	ranks := make([]int, rng.span()/rng.RanksPerGroup)
	for g := range ranks {
		ranks[g] = rng.First + g*rng.RanksPerGroup + element
	}
	return ranks
}

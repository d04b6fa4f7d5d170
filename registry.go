// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/spaolacci/murmur3"
)

// State is the life cycle state of a Registry.
type State int

const (
	// Building registries accept steps and requests.
	Building State = iota
	// Resolved registries have been converted into a Layout and are
	// no longer modifiable. A registry whose resolution failed is also
	// in this state, and must be rebuilt.
	Resolved
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// maxRanks bounds the size of a pool. MPI ranks are 32-bit integers.
const maxRanks = math.MaxInt32

// nextToken mints registry tokens. Token 0 marks invalid handles.
var nextToken uint64

type entry struct {
	step  Step
	shape Shape
	rng   RankRange
}

// A Registry partitions a pool of ranks among an ordered list of
// steps before the size of the pool is known. Steps are reserved
// with Add, which returns a handle for each. Fixed reservations made
// before the (at most one) open-ended reservation are placed at the
// front of the pool with absolute rank numbers; fixed reservations
// made after it are placed at the end of the pool, in order, using
// end-relative rank numbers. The open-ended reservation receives the
// ranks between the two.
//
// The allocation is a function only of the sequence of calls made on
// the registry, so that every process of a job can build the same
// registry and agree on rank ownership without communicating.
//
// Registries also record named communicator and tag requests
// between steps. These are checked eagerly as far as possible, and
// resolved to concrete rank lists by Resolve, once the pool size is
// known.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	token uint64
	state State

	steps []entry
	// open is the index of the open-ended step, or -1.
	open int
	// next is the first absolute rank not yet reserved.
	next int
	// reservedFromEnd is the number of ranks reserved after the
	// open-ended step.
	reservedFromEnd int

	comms map[string]commRequest
	tags  map[string]StepHandle
}

// NewRegistry returns a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		token: atomic.AddUint64(&nextToken, 1),
		open:  -1,
		comms: make(map[string]commRequest),
		tags:  make(map[string]StepHandle),
	}
}

// State returns the registry's life cycle state.
func (r *Registry) State() State { return r.state }

// Add reserves rank space for the provided step and returns a handle
// to it. By default, a step is reserved one rank per group, and all
// available groups; see RanksPerGroup, Groups, and Iterate.
//
// Add fails with ErrOpenAllocation if an open-ended reservation is
// requested when one already exists, and with ErrResolved once the
// registry has been resolved.
func (r *Registry) Add(step Step, opts ...Option) (StepHandle, error) {
	o := stepOptions{ranksPerGroup: 1, groups: AllAvailable}
	for _, opt := range opts {
		opt(&o)
	}
	if r.state != Building {
		return StepHandle{}, errors.E(errors.Invalid, fmt.Sprintf("add %s", step.Name()), ErrResolved)
	}
	if o.ranksPerGroup < 1 {
		return StepHandle{}, errors.E(errors.Invalid,
			fmt.Sprintf("add %s: invalid ranks per group %d", step.Name(), o.ranksPerGroup))
	}
	if o.groups < 1 && o.groups != AllAvailable {
		return StepHandle{}, errors.E(errors.Invalid,
			fmt.Sprintf("add %s: invalid group count %d", step.Name(), o.groups))
	}
	if avail := maxRanks - r.MinRanks(); o.ranksPerGroup > avail ||
		(o.groups != AllAvailable && o.ranksPerGroup > avail/o.groups) {
		return StepHandle{}, errors.E(errors.Invalid,
			fmt.Sprintf("add %s: %d groups of %d ranks exceed %d ranks", step.Name(), o.groups, o.ranksPerGroup, maxRanks))
	}
	var rng RankRange
	switch size := o.ranksPerGroup * o.groups; {
	case o.groups == AllAvailable:
		if r.open >= 0 {
			return StepHandle{}, errors.E(errors.Exists,
				fmt.Sprintf("add %s: step %d (%s) is open-ended", step.Name(), r.open, r.steps[r.open].step.Name()),
				ErrOpenAllocation)
		}
		rng = MakeOpenEnded(r.next, o.ranksPerGroup)
		r.open = len(r.steps)
	case r.open < 0:
		rng = MakeFixed(r.next, o.ranksPerGroup, o.groups)
		r.next += size
	default:
		// Steps reserved after the open-ended one are kept at the end
		// of the pool in order: everything from the open-ended step
		// onwards moves size ranks towards the front.
		for i := r.open + 1; i < len(r.steps); i++ {
			r.steps[i].rng = r.steps[i].rng.ShiftBy(size)
		}
		r.steps[r.open].rng = r.steps[r.open].rng.ShrinkEndBy(size)
		rng = AppendFixedFromEnd(o.ranksPerGroup, o.groups)
		r.reservedFromEnd += size
	}
	r.steps = append(r.steps, entry{step, o.shape, rng})
	log.Debug.Printf("rankspace: step %d (%s): reserved %v", len(r.steps)-1, step.Name(), rng)
	return r.Handle(len(r.steps) - 1), nil
}

// NumSteps returns the number of steps in the registry.
func (r *Registry) NumSteps() int { return len(r.steps) }

// Step returns the i'th step and its shape.
func (r *Registry) Step(i int) (Step, Shape) {
	return r.steps[i].step, r.steps[i].shape
}

// Range returns the current, possibly end-relative, range of the
// i'th step. Ranges of the open-ended step and of steps reserved after
// it change as further steps are added.
func (r *Registry) Range(i int) RankRange {
	return r.steps[i].rng
}

// Handle returns a fresh unsliced handle to the i'th step.
func (r *Registry) Handle(i int) StepHandle {
	must.Truef(i >= 0 && i < len(r.steps), "step %d out of range", i)
	return StepHandle{
		token:  r.token,
		step:   i,
		single: r.steps[i].rng.IsSingleRank(),
	}
}

// OpenStep returns the index of the open-ended step, and whether one
// exists.
func (r *Registry) OpenStep() (int, bool) {
	return r.open, r.open >= 0
}

// MinRanks returns the size of the smallest pool that can hold every
// fixed reservation. The open-ended step, if any, is then empty.
func (r *Registry) MinRanks() int {
	return r.next + r.reservedFromEnd
}

// Tag returns the handle recorded under the provided tag name.
func (r *Registry) Tag(name string) (StepHandle, bool) {
	h, ok := r.tags[name]
	return h, ok
}

// Fingerprint returns a digest of the registry's allocation and
// requests. Registries built by the same sequence of calls have the
// same fingerprint; processes can compare fingerprints to check that
// they agree on rank ownership.
func (r *Registry) Fingerprint() uint64 {
	h := murmur3.New64()
	var buf [binary.MaxVarintLen64]byte
	put := func(v int) {
		n := binary.PutVarint(buf[:], int64(v))
		h.Write(buf[:n])
	}
	putString := func(s string) {
		put(len(s))
		h.Write([]byte(s))
	}
	putHandle := func(sh StepHandle) {
		put(sh.step)
		if sh.sliced {
			put(1)
			put(sh.group)
			put(sh.element)
		} else {
			put(0)
		}
	}
	put(len(r.steps))
	for _, e := range r.steps {
		put(e.rng.First)
		put(e.rng.Last)
		put(e.rng.RanksPerGroup)
		put(len(e.shape))
		for _, d := range e.shape {
			put(d)
		}
	}
	for _, name := range sortedKeys(r.comms) {
		req := r.comms[name]
		putString(name)
		if req.interGroup {
			put(1)
		} else {
			put(0)
		}
		put(req.element)
		put(len(req.handles))
		for _, sh := range req.handles {
			putHandle(sh)
		}
	}
	tags := make([]string, 0, len(r.tags))
	for name := range r.tags {
		tags = append(tags, name)
	}
	sort.Strings(tags)
	for _, name := range tags {
		putString(name)
		putHandle(r.tags[name])
	}
	return h.Sum64()
}

// Resolve converts the registry's reservations and requests into a
// Layout for a pool of total ranks. Resolve may be called only once:
// afterwards, whether it succeeded or not, the registry is in state
// Resolved and refuses further modification.
//
// Resolve fails with ErrInsufficientRanks if the pool cannot hold
// every fixed reservation, with ErrRaggedGroups if the ranks left to
// the open-ended step do not divide into whole groups, and with
// ErrUnsliceable if a sliced handle falls outside of its step.
func (r *Registry) Resolve(total int) (*Layout, error) {
	if r.state != Building {
		return nil, errors.E(errors.Invalid, "resolve", ErrResolved)
	}
	r.state = Resolved
	if need := r.MinRanks(); total < need {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("resolve: pool of %d ranks, need at least %d", total, need),
			ErrInsufficientRanks)
	}
	l := &Layout{
		token:       r.token,
		size:        total,
		steps:       make([]ResolvedStep, len(r.steps)),
		tags:        make(map[string]int),
		fingerprint: r.Fingerprint(),
	}
	for i, e := range r.steps {
		rng, err := e.rng.Resolve(total)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("resolve step %d (%s)", i, e.step.Name()), err)
		}
		l.steps[i] = ResolvedStep{Step: e.step, Shape: e.shape, Range: rng}
	}
	for _, name := range sortedKeys(r.comms) {
		comms, err := r.comms[name].resolve(l)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("resolve communicator %s", name), err)
		}
		l.comms = append(l.comms, comms...)
	}
	sort.SliceStable(l.comms, func(i, j int) bool { return l.comms[i].Name < l.comms[j].Name })
	for i := 1; i < len(l.comms); i++ {
		if l.comms[i].Name == l.comms[i-1].Name {
			return nil, errors.E(errors.Exists,
				fmt.Sprintf("resolve communicator %s", l.comms[i].Name), ErrDuplicateName)
		}
	}
	for name, h := range r.tags {
		ranks, err := h.ResolveAgainst(l.steps[h.step].Range)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("resolve tag %s", name), err)
		}
		// Checked at registration time.
		must.Truef(len(ranks) == 1, "tag %s resolved to %d ranks", name, len(ranks))
		l.tags[name] = ranks[0]
	}
	log.Debug.Printf("rankspace: resolved %d steps, %d communicators, %d tags for %d ranks",
		len(l.steps), len(l.comms), len(l.tags), total)
	return l, nil
}

// checkHandle validates h against the registry as far as is possible
// before resolution.
func (r *Registry) checkHandle(op string, h StepHandle) error {
	if h.token != r.token {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %v", op, h), ErrForeignHandle)
	}
	must.Truef(h.step >= 0 && h.step < len(r.steps), "handle %v out of range", h)
	if !h.sliced {
		return nil
	}
	rng := r.steps[h.step].rng
	if h.group < 0 || h.element < 0 || h.element >= rng.RanksPerGroup ||
		(!rng.OpenEnded() && h.group >= rng.NumGroups()) {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %v in %v", op, h, rng), ErrUnsliceable)
	}
	return nil
}

func sortedKeys(m map[string]commRequest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

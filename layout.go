// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/grailbio/base/errors"
)

// A ResolvedStep is a step together with its absolute rank range.
type ResolvedStep struct {
	Step  Step
	Shape Shape
	Range RankRange
}

// A Communicator is a named set of ranks that should be joined by a
// communication channel. Ranks are listed in the order in which they
// were requested.
type Communicator struct {
	Name  string
	Ranks []int
}

// Includes tells whether rank is a member of c.
func (c Communicator) Includes(rank int) bool {
	for _, r := range c.Ranks {
		if r == rank {
			return true
		}
	}
	return false
}

// A Role describes the position of a rank within the pool: the step
// it runs, and its group and element within that step.
type Role struct {
	Step, Group, Element int
}

// A Layout is the resolved form of a Registry for a pool of a known
// size. All of its ranks are absolute.
type Layout struct {
	token       uint64
	size        int
	steps       []ResolvedStep
	comms       []Communicator
	tags        map[string]int
	fingerprint uint64
}

// Size returns the number of ranks in the pool.
func (l *Layout) Size() int { return l.size }

// NumSteps returns the number of steps.
func (l *Layout) NumSteps() int { return len(l.steps) }

// Step returns the i'th step.
func (l *Layout) Step(i int) ResolvedStep { return l.steps[i] }

// Range returns the resolved range of the i'th step.
func (l *Layout) Range(i int) RankRange { return l.steps[i].Range }

// Ranks returns the ranks referred to by the handle h.
func (l *Layout) Ranks(h StepHandle) ([]int, error) {
	if h.token != l.token {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("ranks %v", h), ErrForeignHandle)
	}
	return h.ResolveAgainst(l.steps[h.step].Range)
}

// Communicators returns all requested communicators, ordered by name.
func (l *Layout) Communicators() []Communicator { return l.comms }

// Communicator returns the communicator with the provided name.
func (l *Layout) Communicator(name string) (Communicator, bool) {
	i := sort.Search(len(l.comms), func(i int) bool { return l.comms[i].Name >= name })
	if i < len(l.comms) && l.comms[i].Name == name {
		return l.comms[i], true
	}
	return Communicator{}, false
}

// TagRank returns the rank recorded under the provided tag name.
func (l *Layout) TagRank(name string) (int, error) {
	rank, ok := l.tags[name]
	if !ok {
		return -1, errors.E(errors.NotExist, fmt.Sprintf("tag %s", name), ErrNoTag)
	}
	return rank, nil
}

// Tags returns the names of all tags, sorted.
func (l *Layout) Tags() []string {
	names := make([]string, 0, len(l.tags))
	for name := range l.tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Role returns the role of the provided rank. Ranks that belong to
// no step, which can only be the case when the pool is larger than
// every reservation and there is no open-ended step, have no role.
func (l *Layout) Role(rank int) (Role, bool) {
	for i, s := range l.steps {
		if !s.Range.Contains(rank) {
			continue
		}
		off := rank - s.Range.First
		return Role{
			Step:    i,
			Group:   off / s.Range.RanksPerGroup,
			Element: off % s.Range.RanksPerGroup,
		}, true
	}
	return Role{}, false
}

// Fingerprint returns the fingerprint of the registry from which the
// layout was resolved. See Registry.Fingerprint.
func (l *Layout) Fingerprint() uint64 { return l.fingerprint }

// String returns a tabular description of the layout.
func (l *Layout) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "pool %d ranks, fingerprint %016x\n", l.size, l.fingerprint)
	tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "step\tname\tfirst\tlast\tranks/group\tgroups\tshape")
	for i, s := range l.steps {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n", i, s.Step.Name(),
			s.Range.First, s.Range.Last, s.Range.RanksPerGroup, s.Range.span()/s.Range.RanksPerGroup, s.Shape)
	}
	tw.Flush()
	if len(l.comms) > 0 {
		b.WriteString("communicators:\n")
		tw = tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		for _, c := range l.comms {
			ranks := make([]string, len(c.Ranks))
			for i, r := range c.Ranks {
				ranks[i] = fmt.Sprint(r)
			}
			fmt.Fprintf(tw, "\t%s\t%s\n", c.Name, strings.Join(ranks, ","))
		}
		tw.Flush()
	}
	if len(l.tags) > 0 {
		b.WriteString("tags:\n")
		tw = tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		for _, name := range l.Tags() {
			fmt.Fprintf(tw, "\t%s\t%d\n", name, l.tags[name])
		}
		tw.Flush()
	}
	return b.String()
}

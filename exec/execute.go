// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/rankspace"
)

// Channels is the result of executing a layout on one rank: the
// rank's role, the communicators it is a member of, and the ranks of
// all tags.
type Channels struct {
	// Rank is the local process's rank.
	Rank int
	// Role is the local process's role. It is valid only if HasRole is
	// true: spare ranks of a pool have no role.
	Role    rankspace.Role
	HasRole bool
	// Comms holds the communicators that include the local rank,
	// keyed by name.
	Comms map[string]Comm
	// Tags holds the rank of every tag, keyed by name.
	Tags map[string]int
}

// Step returns the resolved step that the local rank runs.
func (c *Channels) Step(layout *rankspace.Layout) (rankspace.ResolvedStep, bool) {
	if !c.HasRole {
		return rankspace.ResolvedStep{}, false
	}
	return layout.Step(c.Role.Step), true
}

// Tagged tells whether the local rank is the one recorded under the
// provided tag name.
func (c *Channels) Tagged(name string) bool {
	rank, ok := c.Tags[name]
	return ok && rank == c.Rank
}

// An Option configures Execute.
type Option func(*options)

type options struct {
	group *status.Group
}

// Status reports the progress of communicator creation to the
// provided status group.
func Status(group *status.Group) Option {
	return func(o *options) {
		o.group = group
	}
}

// Execute creates every communicator requested by layout through the
// transport t and returns the channels of the local rank. The layout
// must have been resolved for a pool the size of t's process group.
// Communicators are created in name order, so that all ranks of the
// group perform the same sequence of collective calls.
func Execute(ctx context.Context, layout *rankspace.Layout, t Transport, opts ...Option) (*Channels, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if got, want := t.Size(), layout.Size(); got != want {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("exec: layout resolved for %d ranks, transport has %d", want, got))
	}
	ch := &Channels{
		Rank:  t.Rank(),
		Comms: make(map[string]Comm),
		Tags:  make(map[string]int),
	}
	ch.Role, ch.HasRole = layout.Role(ch.Rank)
	for _, name := range layout.Tags() {
		rank, err := layout.TagRank(name)
		if err != nil {
			return nil, err
		}
		ch.Tags[name] = rank
	}
	comms := layout.Communicators()
	report := newReporter(o.group, len(comms))
	defer report.done()
	for _, c := range comms {
		task := report.start(c)
		comm, err := t.NewCommunicator(ctx, c.Name, c.Ranks)
		task.finish(comm, err)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("exec: rank %d: communicator %s", ch.Rank, c.Name), err)
		}
		if comm == nil {
			continue
		}
		ch.Comms[c.Name] = comm
	}
	if ch.HasRole {
		log.Debug.Printf("exec: rank %d: step %d group %d element %d: %d communicators",
			ch.Rank, ch.Role.Step, ch.Role.Group, ch.Role.Element, len(ch.Comms))
	} else {
		log.Printf("exec: rank %d is not assigned to any step", ch.Rank)
	}
	return ch, nil
}

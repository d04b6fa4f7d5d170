// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/status"
	"github.com/grailbio/rankspace"
)

// reporter maintains a status.Group that tracks communicator
// creation. A reporter with a nil group reports nothing.
type reporter struct {
	group      *status.Group
	total, ok  int
	failed     int
	lastFailed string
}

func newReporter(group *status.Group, total int) *reporter {
	r := &reporter{group: group, total: total}
	r.printCounts()
	return r
}

// printCounts prints the counts of r to its group.
func (r *reporter) printCounts() {
	if r.group == nil {
		return
	}
	if r.failed > 0 {
		r.group.Printf("communicators done/failed/total: %d/%d/%d (last failed: %s)",
			r.ok, r.failed, r.total, r.lastFailed)
		return
	}
	r.group.Printf("communicators done/total: %d/%d", r.ok, r.total)
}

type reportTask struct {
	r    *reporter
	name string
	task *status.Task
}

// start starts tracking the creation of communicator c.
func (r *reporter) start(c rankspace.Communicator) reportTask {
	t := reportTask{r: r, name: c.Name}
	if r.group != nil {
		t.task = r.group.Start(c.Name)
		t.task.Printf("joining %d ranks", len(c.Ranks))
	}
	return t
}

// finish records the outcome of the creation.
func (t reportTask) finish(comm Comm, err error) {
	switch {
	case err != nil:
		t.r.failed++
		t.r.lastFailed = t.name
	default:
		t.r.ok++
	}
	if t.task != nil {
		switch {
		case err != nil:
			t.task.Printf("error: %v", err)
		case comm == nil:
			t.task.Printf("not a member")
		default:
			t.task.Printf("member %d/%d", comm.Rank(), comm.Size())
		}
		t.task.Done()
	}
	t.r.printCounts()
}

func (r *reporter) done() {
	if r.group == nil {
		return
	}
	if r.failed == 0 && r.ok == r.total {
		r.group.Printf("communicators done/total: %d/%d; done", r.ok, r.total)
	}
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/sync/ctxsync"
	"golang.org/x/sync/errgroup"
)

// A World is an in-process process group. Each of its ranks is
// represented by a Transport; ranks are usually run in separate
// goroutines (see Run). A World moves no data: communicators record
// only their membership. Worlds are used to test and to dry-run
// pipelines without an MPI runtime.
//
// NewCommunicator on a world's transports is collective: it returns
// only once every rank has made the call, and it fails if ranks
// disagree on the communicator's membership.
type World struct {
	size int

	mu    sync.Mutex
	cond  *ctxsync.Cond
	comms map[string]*collective
}

type collective struct {
	ranks   []int
	arrived int
}

// NewWorld returns a new in-process world of size ranks.
func NewWorld(size int) *World {
	if size <= 0 {
		log.Panicf("exec.NewWorld: size %d <= 0", size)
	}
	w := &World{size: size, comms: make(map[string]*collective)}
	w.cond = ctxsync.NewCond(&w.mu)
	return w
}

// Size returns the number of ranks in the world.
func (w *World) Size() int { return w.size }

// Transport returns the transport of the provided rank.
func (w *World) Transport(rank int) Transport {
	if rank < 0 || rank >= w.size {
		log.Panicf("exec.World.Transport: rank %d out of range [0,%d)", rank, w.size)
	}
	return &localTransport{world: w, rank: rank}
}

// Run calls fn concurrently for every rank of the world, each with
// its own transport. Run returns the first error returned by fn; the
// context passed to the other ranks is then canceled.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, t Transport) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.size; rank++ {
		t := w.Transport(rank)
		g.Go(func() error {
			return fn(gctx, t)
		})
	}
	return g.Wait()
}

// join records rank's arrival at the named collective and waits for
// the remaining ranks.
func (w *World) join(ctx context.Context, rank int, name string, ranks []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.comms[name]
	if c == nil {
		c = &collective{ranks: append([]int(nil), ranks...)}
		w.comms[name] = c
	} else if !equalRanks(c.ranks, ranks) {
		return errors.E(errors.Integrity,
			fmt.Sprintf("communicator %s: rank %d requested ranks %v, others requested %v", name, rank, ranks, c.ranks))
	}
	c.arrived++
	if c.arrived > w.size {
		return errors.E(errors.Invalid, fmt.Sprintf("communicator %s created more than once", name))
	}
	w.cond.Broadcast()
	for c.arrived < w.size {
		if err := w.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

type localTransport struct {
	world *World
	rank  int
}

func (t *localTransport) Size() int { return t.world.size }
func (t *localTransport) Rank() int { return t.rank }

func (t *localTransport) NewCommunicator(ctx context.Context, name string, ranks []int) (Comm, error) {
	member, err := membership(name, t.world.size, t.rank, ranks)
	if err != nil {
		return nil, err
	}
	if err := t.world.join(ctx, t.rank, name, ranks); err != nil {
		return nil, err
	}
	if member < 0 {
		return nil, nil
	}
	return &localComm{name: name, ranks: ranks, rank: member}, nil
}

// Solo returns the transport of the provided rank in a process group
// of size ranks whose other members are absent. Collectives on a solo
// transport do not wait for peers: a communicator is built from the
// requested membership alone. Solo transports dry-run one rank's view
// of a layout.
func Solo(size, rank int) Transport {
	if size <= 0 {
		log.Panicf("exec.Solo: size %d <= 0", size)
	}
	if rank < 0 || rank >= size {
		log.Panicf("exec.Solo: rank %d out of range [0,%d)", rank, size)
	}
	return &soloTransport{size: size, rank: rank}
}

type soloTransport struct {
	size, rank int
}

func (t *soloTransport) Size() int { return t.size }
func (t *soloTransport) Rank() int { return t.rank }

func (t *soloTransport) NewCommunicator(ctx context.Context, name string, ranks []int) (Comm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	member, err := membership(name, t.size, t.rank, ranks)
	if err != nil || member < 0 {
		return nil, err
	}
	return &localComm{name: name, ranks: append([]int(nil), ranks...), rank: member}, nil
}

// membership returns the index of rank in ranks, or -1, after
// checking that every member lies in a group of size ranks.
func membership(name string, size, rank int, ranks []int) (int, error) {
	member := -1
	for i, r := range ranks {
		if r < 0 || r >= size {
			return -1, errors.E(errors.Invalid, fmt.Sprintf("communicator %s: rank %d out of range", name, r))
		}
		if r == rank {
			member = i
		}
	}
	return member, nil
}

type localComm struct {
	name  string
	ranks []int
	rank  int
}

func (c *localComm) Name() string { return c.name }
func (c *localComm) Size() int    { return len(c.ranks) }
func (c *localComm) Rank() int    { return c.rank }

// String returns a description of the communicator, e.g.,
// "grid/0[1/3]".
func (c *localComm) String() string {
	return fmt.Sprintf("%s[%d/%d]", c.name, c.rank, len(c.ranks))
}

func equalRanks(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

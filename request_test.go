// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestTagRankMultiRank(t *testing.T) {
	reg := NewRegistry()
	mustAdd(t, reg, "reader", Groups(1))
	h := mustAdd(t, reg, "ps", RanksPerGroup(10), Groups(3))
	err := reg.TagRank("master", h)
	if !Is(err, ErrMultiRankTag) {
		t.Fatalf("got %v, want %v", err, ErrMultiRankTag)
	}
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("unexpected error kind: %v", err)
	}
	if _, ok := reg.Tag("master"); ok {
		t.Error("rejected tag was recorded")
	}

	sliced := h.At(2, 1)
	if !sliced.IsSingleRank() || !sliced.Sliced() {
		t.Errorf("%v: expected sliced single rank handle", sliced)
	}
	assert.NoError(t, reg.TagRank("master", sliced))
	tag, ok := reg.Tag("master")
	if !ok {
		t.Fatal("tag not recorded")
	}
	expect.EQ(t, tag.Index(), h.Index())
	expect.EQ(t, tag.Group(), 2)
	expect.EQ(t, tag.Element(), 1)
	if !tag.IsSingleRank() {
		t.Error("expected single rank tag")
	}

	layout, err := reg.Resolve(40)
	assert.NoError(t, err)
	rank, err := layout.TagRank("master")
	assert.NoError(t, err)
	expect.EQ(t, rank, 1+2*10+1)
}

func TestTagRankSingleRankStep(t *testing.T) {
	reg := NewRegistry()
	h := mustAdd(t, reg, "reader", Groups(1))
	if !h.IsSingleRank() || h.Sliced() {
		t.Errorf("%v: expected unsliced single rank handle", h)
	}
	assert.NoError(t, reg.TagRank("reader", h))
	open := mustAdd(t, reg, "workers")
	if open.IsSingleRank() {
		t.Error("open-ended step is not single rank")
	}
	if err := reg.TagRank("worker", open); !Is(err, ErrMultiRankTag) {
		t.Errorf("got %v, want %v", err, ErrMultiRankTag)
	}
	last := mustAdd(t, reg, "writer", Groups(1))
	assert.NoError(t, reg.TagRank("writer", last))
	layout, err := reg.Resolve(9)
	assert.NoError(t, err)
	for _, c := range []struct {
		name string
		rank int
	}{{"reader", 0}, {"writer", 8}} {
		rank, err := layout.TagRank(c.name)
		assert.NoError(t, err)
		if got, want := rank, c.rank; got != want {
			t.Errorf("%s: got %v, want %v", c.name, got, want)
		}
	}
	expect.EQ(t, layout.Tags(), []string{"reader", "writer"})
	if _, err := layout.TagRank("missing"); !Is(err, ErrNoTag) || !errors.Is(errors.NotExist, err) {
		t.Errorf("unexpected error %v", err)
	}
}

// TestTagRankLastWriteWins pins down the behavior of reusing a tag
// name: the later tag replaces the earlier one.
func TestTagRankLastWriteWins(t *testing.T) {
	reg := NewRegistry()
	a := mustAdd(t, reg, "a", Groups(1))
	b := mustAdd(t, reg, "b", RanksPerGroup(2), Groups(2))
	assert.NoError(t, reg.TagRank("x", a))
	assert.NoError(t, reg.TagRank("x", b.At(1, 0)))
	tag, _ := reg.Tag("x")
	expect.EQ(t, tag.Index(), b.Index())
	layout, err := reg.Resolve(5)
	assert.NoError(t, err)
	rank, err := layout.TagRank("x")
	assert.NoError(t, err)
	expect.EQ(t, rank, 3)
	expect.EQ(t, len(layout.Tags()), 1)
}

func TestSliceOutOfRange(t *testing.T) {
	reg := NewRegistry()
	fixed := mustAdd(t, reg, "fixed", RanksPerGroup(2), Groups(3))
	open := mustAdd(t, reg, "open", RanksPerGroup(2))
	for _, h := range []StepHandle{
		fixed.At(0, 2),
		fixed.At(3, 0),
		fixed.At(-1, 0),
		open.At(0, 2),
		open.At(0, -1),
	} {
		if err := reg.TagRank("bad", h); !Is(err, ErrUnsliceable) {
			t.Errorf("%v: got %v, want %v", h, err, ErrUnsliceable)
		}
	}
	// Groups of the open-ended step are only checked on resolution.
	assert.NoError(t, reg.TagRank("far", open.At(4, 1)))
	_, err := reg.Resolve(12)
	if !Is(err, ErrUnsliceable) {
		t.Errorf("got %v, want %v", err, ErrUnsliceable)
	}
	if err != nil && !strings.Contains(err.Error(), "far") {
		t.Errorf("error %v does not name the tag", err)
	}

	reg = NewRegistry()
	mustAdd(t, reg, "fixed", RanksPerGroup(2), Groups(3))
	open = mustAdd(t, reg, "open", RanksPerGroup(2))
	assert.NoError(t, reg.TagRank("far", open.At(4, 1)))
	layout, err := reg.Resolve(16)
	assert.NoError(t, err)
	rank, err := layout.TagRank("far")
	assert.NoError(t, err)
	expect.EQ(t, rank, 6+4*2+1)
}

func TestForeignHandle(t *testing.T) {
	reg := NewRegistry()
	mustAdd(t, reg, "a", Groups(1))
	other := NewRegistry()
	h := mustAdd(t, other, "a", Groups(1))
	if err := reg.TagRank("x", h); !Is(err, ErrForeignHandle) {
		t.Errorf("tag: got %v, want %v", err, ErrForeignHandle)
	}
	if err := reg.CreateCommunicator("x", h); !Is(err, ErrForeignHandle) {
		t.Errorf("communicator: got %v, want %v", err, ErrForeignHandle)
	}
	if err := reg.CreateInterGroupCommunicator("x", StepHandle{}, AllElements); !Is(err, ErrForeignHandle) {
		t.Errorf("intergroup communicator: got %v, want %v", err, ErrForeignHandle)
	}
	layout, err := reg.Resolve(1)
	assert.NoError(t, err)
	if _, err := layout.Ranks(h); !Is(err, ErrForeignHandle) {
		t.Errorf("ranks: got %v, want %v", err, ErrForeignHandle)
	}
}

func TestInterGroupCommunicator(t *testing.T) {
	reg, handles := scenarioRegistry(t)
	gridder := handles[1]
	assert.NoError(t, reg.CreateInterGroupCommunicator("grid", gridder, AllElements))
	assert.NoError(t, reg.CreateInterGroupCommunicator("grid-odd", gridder, 1))
	assert.NoError(t, reg.CreateInterGroupCommunicator("imagers", handles[2], AllElements))

	if err := reg.CreateInterGroupCommunicator("bad", gridder, 2); !Is(err, ErrUnsliceable) {
		t.Errorf("got %v, want %v", err, ErrUnsliceable)
	}
	if err := reg.CreateInterGroupCommunicator("bad", gridder.At(0, 0), AllElements); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if err := reg.CreateInterGroupCommunicator("", gridder, AllElements); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}

	layout, err := reg.Resolve(14)
	assert.NoError(t, err)
	var names []string
	for _, c := range layout.Communicators() {
		names = append(names, c.Name)
	}
	expect.EQ(t, names, []string{"grid-odd", "grid/0", "grid/1", "imagers/0"})
	for _, c := range []struct {
		name  string
		ranks []int
	}{
		{"grid/0", []int{1, 3, 5}},
		{"grid/1", []int{2, 4, 6}},
		{"grid-odd", []int{2, 4, 6}},
		{"imagers/0", []int{7, 8, 9}},
	} {
		comm, ok := layout.Communicator(c.name)
		if !ok {
			t.Errorf("communicator %s missing", c.name)
			continue
		}
		expect.EQ(t, comm.Ranks, c.ranks)
	}
	if _, ok := layout.Communicator("grid"); ok {
		t.Error("unexpected communicator grid")
	}
}

func TestCustomCommunicator(t *testing.T) {
	reg, handles := scenarioRegistry(t)
	reader, gridder, solver := handles[0], handles[1], handles[3]
	assert.NoError(t, reg.CreateCommunicator("fanin", gridder.At(1, 1), solver, reader))
	assert.NoError(t, reg.CreateCommunicator("dup", reader, reader, gridder.At(0, 0), gridder))
	if err := reg.CreateCommunicator("empty"); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if err := reg.CreateCommunicator("bad", gridder.At(0, 5)); !Is(err, ErrUnsliceable) {
		t.Errorf("got %v, want %v", err, ErrUnsliceable)
	}
	layout, err := reg.Resolve(12)
	assert.NoError(t, err)
	comm, ok := layout.Communicator("fanin")
	if !ok {
		t.Fatal("fanin missing")
	}
	expect.EQ(t, comm.Ranks, []int{4, 8, 9, 0})
	if !comm.Includes(9) || comm.Includes(5) {
		t.Errorf("bad membership: %v", comm)
	}
	comm, _ = layout.Communicator("dup")
	expect.EQ(t, comm.Ranks, []int{0, 1, 2, 3, 4, 5, 6})
}

func TestCommunicatorLastWriteWins(t *testing.T) {
	reg, handles := scenarioRegistry(t)
	assert.NoError(t, reg.CreateCommunicator("c", handles[0]))
	assert.NoError(t, reg.CreateCommunicator("c", handles[4]))
	layout, err := reg.Resolve(12)
	assert.NoError(t, err)
	expect.EQ(t, len(layout.Communicators()), 1)
	comm, _ := layout.Communicator("c")
	expect.EQ(t, comm.Ranks, []int{10, 11})
}

func TestCommunicatorNameClash(t *testing.T) {
	check := func(err error) {
		t.Helper()
		if !Is(err, ErrDuplicateName) {
			t.Errorf("got %v, want %v", err, ErrDuplicateName)
		}
		if !errors.Is(errors.Exists, err) {
			t.Errorf("got %v, want exists", err)
		}
	}
	// Expanded names registered first.
	reg, handles := scenarioRegistry(t)
	gridder := handles[1]
	assert.NoError(t, reg.CreateInterGroupCommunicator("grid", gridder, AllElements))
	check(reg.CreateCommunicator("grid/0", gridder.At(0, 1)))
	check(reg.CreateInterGroupCommunicator("grid/1", gridder, 0))
	// Unrelated names are still accepted, and so is a replacement
	// under the same name.
	assert.NoError(t, reg.CreateCommunicator("grid/2", gridder.At(2, 0)))
	assert.NoError(t, reg.CreateCommunicator("grid", gridder.At(0, 0)))
	assert.NoError(t, reg.CreateCommunicator("grid/0", gridder.At(0, 1)))
	layout, err := reg.Resolve(12)
	assert.NoError(t, err)
	var names []string
	for _, c := range layout.Communicators() {
		names = append(names, c.Name)
	}
	expect.EQ(t, names, []string{"grid", "grid/0", "grid/2"})

	// Expanded names registered last.
	reg, handles = scenarioRegistry(t)
	gridder = handles[1]
	assert.NoError(t, reg.CreateCommunicator("grid/1", gridder.At(1, 0)))
	check(reg.CreateInterGroupCommunicator("grid", gridder, AllElements))
	assert.NoError(t, reg.CreateInterGroupCommunicator("grid", gridder, 0))
	layout, err = reg.Resolve(12)
	assert.NoError(t, err)
	comm, ok := layout.Communicator("grid/1")
	if !ok {
		t.Fatal("missing grid/1")
	}
	expect.EQ(t, comm.Ranks, []int{3})
	comm, _ = layout.Communicator("grid")
	expect.EQ(t, comm.Ranks, []int{1, 3, 5})
}

func TestLayoutString(t *testing.T) {
	reg, handles := scenarioRegistry(t)
	assert.NoError(t, reg.TagRank("master", handles[0]))
	assert.NoError(t, reg.CreateCommunicator("all", handles[0], handles[4]))
	layout, err := reg.Resolve(12)
	assert.NoError(t, err)
	str := layout.String()
	for _, want := range []string{"pool 12 ranks", "gridder", "imager", "communicators:", "all", "0,10,11", "tags:", "master"} {
		if !strings.Contains(str, want) {
			t.Errorf("layout %q does not contain %q", str, want)
		}
	}
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package rankspace partitions the ranks of an MPI-style process
	group among the steps of a processing pipeline, before the size of
	the group is known.

	A pipeline is assembled by adding its steps, in order, to a
	Registry. Each step reserves a number of groups of ranks; at most
	one step may instead reserve all ranks that remain:

		reg := rankspace.NewRegistry()
		reader, _ := reg.Add(rankspace.StepName("reader"), rankspace.Groups(1))
		gridders, _ := reg.Add(rankspace.StepName("gridder"), rankspace.RanksPerGroup(2))
		solver, _ := reg.Add(rankspace.StepName("solver"), rankspace.Groups(1))

	Here the reader is given rank 0, the solver the last rank of the
	group, and the gridders everything in between. Steps reserved after
	the open-ended one are expressed relative to the end of the group
	until its size is known.

	Steps may also request named communicators among their ranks, and
	name single ranks with tags:

		reg.CreateInterGroupCommunicator("gridders", gridders, rankspace.AllElements)
		reg.CreateCommunicator("results", gridders, solver)
		reg.TagRank("master", reader)

	Once the group is initialized, every process resolves the registry
	against its size to obtain a Layout, from which it can learn its
	own role and the rank lists of every requested communicator:

		layout, err := reg.Resolve(size)

	Because the allocation is a function only of the sequence of calls
	made on the registry, every process computes the same layout
	without communicating. Registry.Fingerprint may be used to verify
	this. Package github.com/grailbio/rankspace/exec executes a layout's
	requests against a transport.
*/
package rankspace

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec executes the deferred requests of a resolved
// rankspace layout against a transport: the communication layer that
// actually joins ranks together.
package exec

import "context"

// A Transport is the communication layer of a process group, as seen
// from one of its ranks.
type Transport interface {
	// Size returns the number of ranks in the process group.
	Size() int
	// Rank returns the rank of the local process.
	Rank() int
	// NewCommunicator creates a communicator named name among the
	// provided ranks. NewCommunicator is collective: every rank of the
	// group must call it, in the same order, with the same arguments.
	// It returns a nil Comm on ranks that are not members.
	NewCommunicator(ctx context.Context, name string, ranks []int) (Comm, error)
}

// A Comm is a communicator: a channel joining a set of ranks.
type Comm interface {
	// Name returns the communicator's name.
	Name() string
	// Size returns the number of ranks joined by the communicator.
	Size() int
	// Rank returns the local process's rank within the communicator.
	Rank() int
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import (
	goerrors "errors"

	"github.com/grailbio/base/errors"
)

var (
	// ErrOpenAllocation is returned when a registry that already has an
	// open-ended allocation is asked for another one.
	ErrOpenAllocation = goerrors.New("registry already has an open-ended allocation")
	// ErrMultiRankTag is returned when a tag is requested for a handle that
	// spans more than one rank.
	ErrMultiRankTag = goerrors.New("tagged handle spans more than one rank")
	// ErrUnsliceable is returned when a (group, element) selection falls
	// outside of the step it refers to.
	ErrUnsliceable = goerrors.New("selection outside of step")
	// ErrInsufficientRanks is returned when a pool is too small to hold
	// every reservation.
	ErrInsufficientRanks = goerrors.New("insufficient ranks")
	// ErrRaggedGroups is returned when the ranks left to an open-ended
	// allocation do not divide into whole groups.
	ErrRaggedGroups = goerrors.New("ranks do not divide into whole groups")
	// ErrDuplicateName is returned when two communicator requests would
	// produce communicators with the same name.
	ErrDuplicateName = goerrors.New("communicator name produced by another request")
	// ErrResolved is returned when a registry is modified after it was
	// resolved.
	ErrResolved = goerrors.New("registry already resolved")
	// ErrForeignHandle is returned when a handle minted by one registry is
	// passed to another.
	ErrForeignHandle = goerrors.New("handle belongs to another registry")
	// ErrNoTag is returned when a tag name was never registered.
	ErrNoTag = goerrors.New("no such tag")
)

// Is tells whether err is, or wraps, the provided sentinel error.
// Only *errors.Error wrapping is followed.
func Is(err, sentinel error) bool {
	for err != nil {
		if err == sentinel {
			return true
		}
		e, ok := err.(*errors.Error)
		if !ok {
			return false
		}
		err = e.Err
	}
	return false
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace

import "fmt"

// AllAvailable is the group count of an open-ended allocation: the
// step receives every rank not reserved by another step.
const AllAvailable = -1

// AllElements selects every element of a step's groups when creating
// inter-group communicators.
const AllElements = -1

// A Step is a processing step that is run on a block of ranks. The
// registry treats steps as opaque; Name is used only for diagnostics.
type Step interface {
	Name() string
}

// StepName is a Step that is known only by its name.
type StepName string

// Name implements Step.
func (s StepName) Name() string { return string(s) }

// A Shape describes the data domain a step iterates over. An empty
// Shape means that the step does not iterate. Shapes are not
// interpreted by the registry.
type Shape []int

// String returns the shape's dimensions, e.g., "4x128", or "-" for
// an empty shape.
func (s Shape) String() string {
	if len(s) == 0 {
		return "-"
	}
	str := fmt.Sprint(s[0])
	for _, d := range s[1:] {
		str += fmt.Sprintf("x%d", d)
	}
	return str
}

type stepOptions struct {
	ranksPerGroup int
	groups        int
	shape         Shape
}

// An Option configures a step's reservation in Registry.Add.
type Option func(*stepOptions)

// RanksPerGroup sets the number of ranks in each of the step's
// groups. The default is 1.
func RanksPerGroup(n int) Option {
	return func(o *stepOptions) {
		o.ranksPerGroup = n
	}
}

// Groups sets the number of groups reserved for the step. The
// default, AllAvailable, reserves every rank that is left over once
// the pool size is known.
func Groups(n int) Option {
	return func(o *stepOptions) {
		o.groups = n
	}
}

// Iterate attaches the data domain the step iterates over.
func Iterate(shape Shape) Option {
	return func(o *stepOptions) {
		o.shape = shape
	}
}

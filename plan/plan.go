// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package plan implements declarative descriptions of rankspace
// pipelines. A plan lists a pipeline's steps, in order, together with
// the communicators and tags requested between them. Plans are read
// from YAML or HCL documents (see Load) and applied to a registry.
//
// In YAML:
//
//	steps:
//	  - name: reader
//	    groups: 1
//	  - name: gridder
//	    ranks_per_group: 2
//	    shape: [4, 128]
//	communicators:
//	  - name: grid
//	    step: gridder
//	tags:
//	  - name: master
//	    step: reader
//
// and equivalently in HCL:
//
//	step "reader" {
//	  groups = 1
//	}
//	step "gridder" {
//	  ranks_per_group = 2
//	  shape           = [4, 128]
//	}
//	communicator "grid" {
//	  step = "gridder"
//	}
//	tag "master" {
//	  step = "reader"
//	}
//
// A step without groups receives all available ranks. A communicator
// names either a step, joining the same element across the step's
// groups (all elements unless element is given), or a list of member
// blocks, each a step optionally narrowed to one rank by group and
// element.
package plan

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/rankspace"
)

// A Plan is a declarative description of a pipeline.
type Plan struct {
	Steps         []Step         `yaml:"steps" hcl:"step,block"`
	Communicators []Communicator `yaml:"communicators" hcl:"communicator,block"`
	Tags          []Tag          `yaml:"tags" hcl:"tag,block"`
}

// A Step reserves rank space for one pipeline step.
type Step struct {
	Name string `yaml:"name" hcl:"name,label"`
	// RanksPerGroup is nil for the default of 1.
	RanksPerGroup *int `yaml:"ranks_per_group" hcl:"ranks_per_group,optional"`
	// Groups is nil for a step that receives all available ranks.
	Groups *int  `yaml:"groups" hcl:"groups,optional"`
	Shape  []int `yaml:"shape" hcl:"shape,optional"`
}

// A Ref refers to a step, or to a single rank of it when both Group
// and Element are set.
type Ref struct {
	Step    string `yaml:"step" hcl:"step"`
	Group   *int   `yaml:"group" hcl:"group,optional"`
	Element *int   `yaml:"element" hcl:"element,optional"`
}

// A Communicator requests a named communicator. Exactly one of Step
// (an inter-group communicator) and Members (a custom communicator)
// must be set.
type Communicator struct {
	Name    string `yaml:"name" hcl:"name,label"`
	Step    string `yaml:"step" hcl:"step,optional"`
	Element *int   `yaml:"element" hcl:"element,optional"`
	Members []Ref  `yaml:"members" hcl:"member,block"`
}

// A Tag names a single rank.
type Tag struct {
	Name    string `yaml:"name" hcl:"name,label"`
	Step    string `yaml:"step" hcl:"step"`
	Group   *int   `yaml:"group" hcl:"group,optional"`
	Element *int   `yaml:"element" hcl:"element,optional"`
}

// Handles maps step names to their handles.
type Handles map[string]rankspace.StepHandle

// Registry returns a new registry to which the plan has been applied.
func (p *Plan) Registry() (*rankspace.Registry, Handles, error) {
	reg := rankspace.NewRegistry()
	handles, err := p.Apply(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, handles, nil
}

// Apply adds the plan's steps to the registry, in order, and then
// records its communicators and tags. It returns the handles of the
// added steps.
func (p *Plan) Apply(reg *rankspace.Registry) (Handles, error) {
	handles := make(Handles)
	for _, s := range p.Steps {
		if s.Name == "" {
			return nil, errors.E(errors.Invalid, "plan: step without a name")
		}
		if _, ok := handles[s.Name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("plan: duplicate step %s", s.Name))
		}
		opts := []rankspace.Option{rankspace.Groups(rankspace.AllAvailable)}
		if s.RanksPerGroup != nil {
			opts = append(opts, rankspace.RanksPerGroup(*s.RanksPerGroup))
		}
		if s.Groups != nil {
			opts = append(opts, rankspace.Groups(*s.Groups))
		}
		if len(s.Shape) > 0 {
			opts = append(opts, rankspace.Iterate(rankspace.Shape(s.Shape)))
		}
		h, err := reg.Add(rankspace.StepName(s.Name), opts...)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("plan: step %s", s.Name), err)
		}
		handles[s.Name] = h
	}
	for _, c := range p.Communicators {
		if err := c.apply(reg, handles); err != nil {
			return nil, errors.E(fmt.Sprintf("plan: communicator %s", c.Name), err)
		}
	}
	for _, t := range p.Tags {
		h, err := handles.ref(Ref{t.Step, t.Group, t.Element})
		if err != nil {
			return nil, errors.E(fmt.Sprintf("plan: tag %s", t.Name), err)
		}
		if err := reg.TagRank(t.Name, h); err != nil {
			return nil, errors.E(fmt.Sprintf("plan: tag %s", t.Name), err)
		}
	}
	log.Debug.Printf("plan: applied %d steps, %d communicators, %d tags",
		len(p.Steps), len(p.Communicators), len(p.Tags))
	return handles, nil
}

func (c Communicator) apply(reg *rankspace.Registry, handles Handles) error {
	switch {
	case c.Step != "" && len(c.Members) == 0:
		h, err := handles.ref(Ref{Step: c.Step})
		if err != nil {
			return err
		}
		element := rankspace.AllElements
		if c.Element != nil {
			element = *c.Element
		}
		return reg.CreateInterGroupCommunicator(c.Name, h, element)
	case c.Step == "" && len(c.Members) > 0:
		if c.Element != nil {
			return errors.E(errors.Invalid, "element is only valid with step")
		}
		members := make([]rankspace.StepHandle, len(c.Members))
		for i, m := range c.Members {
			h, err := handles.ref(m)
			if err != nil {
				return err
			}
			members[i] = h
		}
		return reg.CreateCommunicator(c.Name, members...)
	default:
		return errors.E(errors.Invalid, "exactly one of step and members must be given")
	}
}

// ref returns the handle referred to by r.
func (h Handles) ref(r Ref) (rankspace.StepHandle, error) {
	handle, ok := h[r.Step]
	if !ok {
		return rankspace.StepHandle{}, errors.E(errors.NotExist, fmt.Sprintf("step %q", r.Step))
	}
	switch {
	case r.Group == nil && r.Element == nil:
		return handle, nil
	case r.Group != nil && r.Element != nil:
		return handle.At(*r.Group, *r.Element), nil
	default:
		return rankspace.StepHandle{}, errors.E(errors.Invalid,
			fmt.Sprintf("step %q: group and element must be given together", r.Step))
	}
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rankspace_test

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/rankspace"
)

func ExampleRegistry() {
	reg := rankspace.NewRegistry()
	reader, err := reg.Add(rankspace.StepName("reader"), rankspace.Groups(1))
	must.Nil(err)
	gridder, err := reg.Add(rankspace.StepName("gridder"), rankspace.RanksPerGroup(2))
	must.Nil(err)
	solver, err := reg.Add(rankspace.StepName("solver"), rankspace.Groups(1))
	must.Nil(err)
	for i := 0; i < reg.NumSteps(); i++ {
		fmt.Println(reg.Range(i))
	}

	must.Nil(reg.CreateInterGroupCommunicator("gridders", gridder, rankspace.AllElements))
	must.Nil(reg.TagRank("master", reader))
	must.Nil(reg.TagRank("solver", solver))
	layout, err := reg.Resolve(10)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < layout.NumSteps(); i++ {
		fmt.Println(layout.Step(i).Step.Name(), layout.Range(i))
	}
	for _, c := range layout.Communicators() {
		fmt.Println(c.Name, c.Ranks)
	}
	rank, err := layout.TagRank("solver")
	must.Nil(err)
	fmt.Println("solver", rank)
	// Output:
	// [0,0]/1
	// [1,-2]/2
	// [-1,-1]/1
	// reader [0,0]/1
	// gridder [1,8]/2
	// solver [9,9]/1
	// gridders/0 [1 3 5 7]
	// gridders/1 [2 4 6 8]
	// solver 9
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command rankplan resolves a pipeline plan for a process group of a
// given size and prints the resulting layout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/rankspace"
	"github.com/grailbio/rankspace/exec"
	"github.com/grailbio/rankspace/plan"
	"github.com/grailbio/rankspace/rankconfig"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: rankplan [-simulate] [-set rankspace.ranks=N] [-set rankspace.rank=R] plan

Command rankplan reads the plan (a .yaml, .yml, or .hcl file), resolves
it for a process group of N ranks, and prints the layout: the ranks of
every step, the members of every communicator, and the rank of every
tag. It then prints the role of rank R.

With -simulate, rankplan also executes the plan's requests on an
in-process group of N ranks and prints the channels of every rank.
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("rankplan: ")
	must.Func = log.Fatal
	flag.Usage = usage
	simulate := flag.Bool("simulate", false, "execute requests on an in-process group")
	transport := rankconfig.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	p, err := plan.Load(flag.Arg(0))
	must.Nil(err)
	reg, _, err := p.Registry()
	must.Nil(err)
	layout, err := reg.Resolve(transport.Size())
	must.Nil(err, "resolve ", flag.Arg(0))
	fmt.Print(layout)
	if role, ok := layout.Role(transport.Rank()); ok {
		fmt.Printf("rank %d: %s\n", transport.Rank(), describe(layout, role))
	} else {
		fmt.Printf("rank %d: spare\n", transport.Rank())
	}
	if !*simulate {
		return
	}

	var (
		mu       sync.Mutex
		channels = make([]*exec.Channels, layout.Size())
	)
	err = exec.NewWorld(layout.Size()).Run(context.Background(), func(ctx context.Context, t exec.Transport) error {
		ch, err := exec.Execute(ctx, layout, t)
		if err != nil {
			return err
		}
		mu.Lock()
		channels[t.Rank()] = ch
		mu.Unlock()
		return nil
	})
	must.Nil(err, "simulate")
	fmt.Println("simulation:")
	for _, ch := range channels {
		role := "spare"
		if ch.HasRole {
			role = describe(layout, ch.Role)
		}
		var comms []string
		for name, comm := range ch.Comms {
			comms = append(comms, fmt.Sprintf("%s[%d/%d]", name, comm.Rank(), comm.Size()))
		}
		sort.Strings(comms)
		for _, name := range layout.Tags() {
			if ch.Tagged(name) {
				role += " #" + name
			}
		}
		fmt.Printf("\t%d\t%s\t%s\n", ch.Rank, role, strings.Join(comms, " "))
	}
}

func describe(layout *rankspace.Layout, role rankspace.Role) string {
	return fmt.Sprintf("%s group %d element %d",
		layout.Step(role.Step).Step.Name(), role.Group, role.Element)
}

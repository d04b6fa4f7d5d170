// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rankconfig provides a mechanism to create a rankspace
// transport from a shared configuration. Rankconfig uses the
// configuration mechanism in package github.com/grailbio/base/config,
// and reads a default profile from $HOME/.rankspace/config.
package rankconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"
	"github.com/grailbio/rankspace/exec"
)

// Path determines the location of the rankspace profile read by
// Parse.
var Path = os.ExpandEnv("$HOME/.rankspace/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// the rankspace configuration from Path and returns the transport
// configured by it and by any flags provided. Parse panics if the
// transport cannot be created.
func Parse() exec.Transport {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	return Must()
}

// Must returns the transport configured by the current profile,
// without processing flags. It panics if the transport cannot be
// created.
func Must() exec.Transport {
	var t exec.Transport
	config.Must("rankspace", &t)
	return t
}

// Transport returns the transport configured by the provided
// profile.
func Transport(profile *config.Profile) (exec.Transport, error) {
	var t exec.Transport
	if err := profile.Instance("rankspace", &t); err != nil {
		return nil, err
	}
	return t, nil
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
)

func init() {
	config.Register("rankspace", func(constr *config.Constructor) {
		var (
			size, rank int
			transport  Transport
		)
		constr.InstanceVar(&transport, "transport", "", "the transport used to execute layouts; a solo transport by default")
		constr.IntVar(&size, "ranks", 1, "number of ranks in the process group")
		constr.IntVar(&rank, "rank", 0, "the local rank")
		constr.Doc = "rankspace configures the transport used to execute rankspace layouts"
		constr.New = func() (interface{}, error) {
			if transport != nil {
				return transport, nil
			}
			if size <= 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("rankspace: invalid number of ranks %d", size))
			}
			if rank < 0 || rank >= size {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("rankspace: rank %d out of range [0,%d)", rank, size))
			}
			return Solo(size, rank), nil
		}
	})
}

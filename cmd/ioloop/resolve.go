// Copyright (c) 2019 The Gnet Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"

	"github.com/panjf2000/ioloop"
)

// lookup prints the outcome of one resolution and stops its loop.
type lookup struct {
	loop *ioloop.Loop
	out  io.Writer
	err  error
	done bool
}

func (lk *lookup) OnSuccess(r *ioloop.Resolver, ip net.IP) {
	fmt.Fprintf(lk.out, "%s\t%s\t(%d queries)\n", r.Host(), ip, r.Attempts())
	lk.finish()
}

func (lk *lookup) OnFailure(_ *ioloop.Resolver, err error) {
	lk.err = err
	lk.finish()
}

func (lk *lookup) finish() {
	lk.done = true
	_ = lk.loop.Stop()
}

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve HOST",
		Short: "Resolve a host name to an IPv4 address, the hosts file first and DNS then",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			l, opts, err := a.newLoop()
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck

			if ip, ok := ioloop.LookupHosts(a.v.GetString("hosts-file"), host); ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(hosts file)\n", host, ip)
				return err
			}

			lk := &lookup{loop: l, out: cmd.OutOrStdout()}
			r, err := ioloop.NewResolver(host, lk, opts...)
			if err != nil {
				return err
			}
			defer r.Close() //nolint:errcheck
			if err = r.Attach(l); err != nil {
				return err
			}
			release, err := stopOnDone(cmd.Context(), l)
			if err != nil {
				return err
			}
			defer release()
			if !lk.done {
				if err = l.Run(0); err != nil {
					return err
				}
			}
			if !lk.done {
				return cmd.Context().Err()
			}
			return lk.err
		},
	}
}

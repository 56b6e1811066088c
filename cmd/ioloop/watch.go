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
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/panjf2000/ioloop"
)

func describeChange(path string, prev, cur os.FileInfo) string {
	switch {
	case prev == nil:
		return fmt.Sprintf("created %s (%s)", path, humanize.Bytes(uint64(cur.Size())))
	case cur == nil:
		return fmt.Sprintf("removed %s", path)
	case !os.SameFile(prev, cur):
		return fmt.Sprintf("replaced %s (%s)", path, humanize.Bytes(uint64(cur.Size())))
	case prev.Mode() != cur.Mode():
		return fmt.Sprintf("mode of %s changed from %s to %s", path, prev.Mode(), cur.Mode())
	}
	return fmt.Sprintf("modified %s (%s, %+d bytes)", path, humanize.Bytes(uint64(cur.Size())), cur.Size()-prev.Size())
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch PATH...",
		Short: "Report creation, modification and removal of files until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, _, err := a.newLoop()
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			report := ioloop.StatFunc(func(w *ioloop.StatWatcher, prev, cur os.FileInfo) {
				printChange(out, describeChange(w.Path(), prev, cur))
			})
			for _, path := range args {
				sw, err := ioloop.NewStatWatcher(path, report)
				if err != nil {
					return err
				}
				defer sw.Close() //nolint:errcheck
				if err = sw.Attach(l); err != nil {
					return err
				}
			}

			release, err := stopOnDone(cmd.Context(), l)
			if err != nil {
				return err
			}
			defer release()
			return l.Run(0)
		},
	}
}

func printChange(out io.Writer, msg string) {
	fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), msg)
}

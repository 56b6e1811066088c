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
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/panjf2000/ioloop"
	"github.com/panjf2000/ioloop/pkg/httpclient"
)

// fetch streams one response to out.
type fetch struct {
	httpclient.BuiltinHandler
	loop    *ioloop.Loop
	out     io.Writer
	errOut  io.Writer
	verbose bool

	status int
	body   uint64
	err    error
	done   bool
}

func (f *fetch) OnResponseHeader(_ *httpclient.Client, h *httpclient.ResponseHeader) {
	f.status = h.StatusCode
	if !f.verbose {
		return
	}
	fmt.Fprintf(f.errOut, "< %s %s\n", h.Proto, h.Status())
	for key, values := range h.Header {
		for _, v := range values {
			fmt.Fprintf(f.errOut, "< %s: %s\n", key, v)
		}
	}
}

func (f *fetch) OnBodyData(_ *httpclient.Client, data []byte) {
	f.body += uint64(len(data))
	if _, err := f.out.Write(data); err != nil && f.err == nil {
		f.err = err
	}
}

func (f *fetch) OnError(_ *httpclient.Client, err error) { f.err = err }

func (f *fetch) OnConnectFailed(_ *httpclient.Client, err error) {
	f.err = err
	f.finish()
}

func (f *fetch) OnClose(*httpclient.Client) { f.finish() }

func (f *fetch) finish() {
	f.done = true
	// Stop fails when the outcome arrived before Run.
	_ = f.loop.Stop()
}

func newGetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Fetch a URL with the streaming HTTP/1.1 client and write the body to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGet(cmd.Context(), cmd, args[0])
		},
	}
	flags := cmd.Flags()
	flags.StringP("method", "X", "GET", "request method")
	flags.StringArrayP("header", "H", nil, "extra request header as \"Key: Value\", repeatable")
	flags.StringP("data", "d", "", "request body")
	flags.BoolP("verbose", "v", false, "print the response header to stderr")
	return cmd
}

func parseTarget(raw string) (host string, port int, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, "", err
	}
	if u.Scheme != "http" {
		return "", 0, "", fmt.Errorf("unsupported scheme %q, only http is", u.Scheme)
	}
	host, port = u.Hostname(), 80
	if host == "" {
		return "", 0, "", fmt.Errorf("missing host in %q", raw)
	}
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, "", fmt.Errorf("invalid port %q", p)
		}
	}
	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return host, port, path, nil
}

func (a *app) runGet(ctx context.Context, cmd *cobra.Command, raw string) error {
	host, port, path, err := parseTarget(raw)
	if err != nil {
		return err
	}
	var reqOpts []httpclient.RequestOption
	for _, h := range a.v.GetStringSlice("header") {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		reqOpts = append(reqOpts, httpclient.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	if data := a.v.GetString("data"); data != "" {
		reqOpts = append(reqOpts, httpclient.WithBody([]byte(data)))
	}

	l, opts, err := a.newLoop()
	if err != nil {
		return err
	}
	defer l.Close() //nolint:errcheck

	f := &fetch{loop: l, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), verbose: a.v.GetBool("verbose")}
	c, err := httpclient.Connect(host, port, f, opts...)
	if err != nil {
		return err
	}
	if err = c.Request(a.v.GetString("method"), path, reqOpts...); err != nil {
		_ = c.Close()
		return err
	}

	start := time.Now()
	if err = c.Attach(l); err != nil {
		return err
	}
	release, err := stopOnDone(ctx, l)
	if err != nil {
		return err
	}
	defer release()
	if !f.done {
		if err = l.Run(0); err != nil {
			return err
		}
	}
	if !f.done {
		_ = c.Close()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d, %s in %s\n", f.status, humanize.Bytes(f.body), time.Since(start).Round(time.Millisecond))
	return nil
}

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
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/panjf2000/ioloop"
	"github.com/panjf2000/ioloop/pkg/pool/goroutine"
)

type benchStats struct {
	roundTrips uint64
	bytes      uint64
	connected  int
	failed     int
}

func (s *benchStats) add(o benchStats) {
	s.roundTrips += o.roundTrips
	s.bytes += o.bytes
	s.connected += o.connected
	s.failed += o.failed
}

// pingPong sends payload and sends it again each time it came back whole.
type pingPong struct {
	ioloop.BuiltinEventHandler
	payload []byte
	pending int
	stats   *benchStats
}

func (p *pingPong) OnConnect(c *ioloop.Conn) {
	p.stats.connected++
	p.send(c)
}

func (p *pingPong) OnConnectFailed(*ioloop.Conn, error) { p.stats.failed++ }

func (p *pingPong) OnRead(c *ioloop.Conn, data []byte) {
	p.stats.bytes += uint64(len(data))
	p.pending -= len(data)
	if p.pending <= 0 {
		p.stats.roundTrips++
		p.send(c)
	}
}

func (p *pingPong) send(c *ioloop.Conn) {
	p.pending = len(p.payload)
	_, _ = c.Write(p.payload)
}

func newBenchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load an echo server with ping-pong connections spread over several loops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBench(cmd.Context(), cmd)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "127.0.0.1:7000", "address of the echo server")
	flags.Int("loops", 4, "number of loops, each on its own pooled goroutine")
	flags.Int("conns", 16, "connections per loop")
	flags.String("size", "64B", "payload size")
	flags.Duration("duration", 5*time.Second, "how long to run")
	return cmd
}

func (a *app) runBench(ctx context.Context, cmd *cobra.Command) error {
	host, port, err := splitHostPort(a.v.GetString("addr"))
	if err != nil {
		return err
	}
	size, err := humanize.ParseBytes(a.v.GetString("size"))
	if err != nil || size == 0 {
		return fmt.Errorf("invalid payload size %q", a.v.GetString("size"))
	}
	loops, conns, duration := a.v.GetInt("loops"), a.v.GetInt("conns"), a.v.GetDuration("duration")
	if loops <= 0 || conns <= 0 || duration <= 0 {
		return fmt.Errorf("loops, conns and duration must be positive")
	}

	pool, err := goroutine.NewBlocking(loops)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		mu    sync.Mutex
		total benchStats
	)
	payload := bytes.Repeat([]byte{'x'}, int(size))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < loops; i++ {
		g.Go(func() error {
			errc := make(chan error, 1)
			if err := pool.Submit(func() {
				st, err := a.benchLoop(ctx, host, port, conns, payload, duration)
				mu.Lock()
				total.add(st)
				mu.Unlock()
				errc <- err
			}); err != nil {
				return err
			}
			return <-errc
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	secs := duration.Seconds()
	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"%d loops, %d/%d connections up, %s round trips (%s/s), %s echoed (%s/s)\n",
		loops, total.connected, loops*conns,
		humanize.Comma(int64(total.roundTrips)), humanize.Comma(int64(float64(total.roundTrips)/secs)),
		humanize.Bytes(total.bytes), humanize.Bytes(uint64(float64(total.bytes)/secs)))
	return err
}

// benchLoop runs conns connections on a loop of its own for duration.
func (a *app) benchLoop(ctx context.Context, host string, port, conns int, payload []byte, duration time.Duration) (benchStats, error) {
	var st benchStats
	l, opts, err := a.newLoop()
	if err != nil {
		return st, err
	}
	defer l.Close() //nolint:errcheck

	cs := make([]*ioloop.Conn, 0, conns)
	defer func() {
		for _, c := range cs {
			_ = c.Close()
		}
	}()
	for i := 0; i < conns; i++ {
		c, err := ioloop.ConnectTCP(host, port, &pingPong{payload: payload, stats: &st}, opts...)
		if err != nil {
			st.failed++
			continue
		}
		if err = c.Attach(l); err != nil {
			st.failed++
			continue
		}
		cs = append(cs, c)
	}

	deadline := ioloop.NewTimerWatcher(duration, false, ioloop.TimerFunc(func(t *ioloop.TimerWatcher) {
		_ = t.Loop().Stop()
	}))
	if err = deadline.Attach(l); err != nil {
		return st, err
	}
	release, err := stopOnDone(ctx, l)
	if err != nil {
		return st, err
	}
	defer release()
	err = l.Run(0)
	return st, err
}

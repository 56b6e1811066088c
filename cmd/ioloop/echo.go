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
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/panjf2000/ioloop"
	"github.com/panjf2000/ioloop/pkg/logging"
	"github.com/panjf2000/ioloop/pkg/metrics"
)

type echoHandler struct {
	ioloop.BuiltinEventHandler
	logger logging.Logger
}

func newEchoHandler(_ *ioloop.Conn, logger logging.Logger) ioloop.EventHandler {
	return &echoHandler{logger: logger}
}

func (h *echoHandler) OnConnect(c *ioloop.Conn) {
	h.logger.Debugf("connection %s from %s", c.ID(), c.RemoteAddr())
}

func (h *echoHandler) OnRead(c *ioloop.Conn, data []byte) {
	_, _ = c.Write(data)
}

func (h *echoHandler) OnClose(c *ioloop.Conn) {
	h.logger.Debugf("connection %s closed", c.ID())
}

func newEchoCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run an echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEcho(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("listen", "127.0.0.1:7000", "TCP address to listen on")
	flags.String("unix", "", "listen on this UNIX socket path instead of TCP")
	flags.Int("backlog", 0, "listen backlog, 0 uses the system maximum")
	flags.Bool("reuse-port", false, "set SO_REUSEPORT on the listener")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func (a *app) runEcho(ctx context.Context) error {
	l, opts, err := a.newLoop()
	if err != nil {
		return err
	}
	defer l.Close() //nolint:errcheck
	logger := l.Logger()

	opts = append(opts,
		ioloop.WithBacklog(a.v.GetInt("backlog")),
		ioloop.WithReuseAddr(true),
		ioloop.WithReusePort(a.v.GetBool("reuse-port")))
	var ln *ioloop.Listener
	if path := a.v.GetString("unix"); path != "" {
		ln, err = ioloop.ListenUNIX(path, opts...)
	} else {
		host, port, perr := splitHostPort(a.v.GetString("listen"))
		if perr != nil {
			return perr
		}
		ln, err = ioloop.ListenTCP(host, port, opts...)
	}
	if err != nil {
		return err
	}
	srv, err := ioloop.NewServer(ln, newEchoHandler, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer srv.Close() //nolint:errcheck
	if err = srv.Attach(l); err != nil {
		return err
	}
	logger.Infof("echo server listening on %s with %s backend", ln.Addr(), l.Backend())

	if addr := a.v.GetString("metrics-addr"); addr != "" {
		shutdown, err := serveMetrics(addr, l, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	release, err := stopOnDone(ctx, l)
	if err != nil {
		return err
	}
	defer release()
	return l.Run(0)
}

func serveMetrics(addr string, l *ioloop.Loop, logger logging.Logger) (func(), error) {
	collector := metrics.NewCollector("ioloop")
	collector.Add("main", l)
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

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
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/panjf2000/ioloop"
	"github.com/panjf2000/ioloop/pkg/logging"
	"github.com/panjf2000/ioloop/pkg/netpoll"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v      *viper.Viper
	logger logging.Logger // shared by every loop when --log-file is set
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	cmd := &cobra.Command{
		Use:           "ioloop",
		Short:         "ioloop drives a single-threaded event loop from the command line",
		Version:       ioloop.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Echo server with Prometheus metrics
  ioloop echo --listen 127.0.0.1:7000 --metrics-addr 127.0.0.1:9100

  # Fetch a page through the streaming HTTP client
  IOLOOP_NAMESERVER=1.1.1.1 ioloop get http://example.com/

  # Hammer the echo server from four loops
  ioloop bench --addr 127.0.0.1:7000 --loops 4 --conns 64 --duration 10s
`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a YAML or TOML config file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-file", "", "write logs to this file, rotated by size")
	flags.String("backend", "default", "polling backend: default, epoll, kqueue or poll")
	flags.String("read-buffer", "64KiB", "size of the read buffer shared by the connections of a loop")
	flags.StringSlice("nameserver", nil, "DNS server to query, repeatable, defaults to resolv.conf")
	flags.String("hosts-file", ioloop.DefaultHostsFile, "hosts file consulted before DNS")
	flags.String("resolv-conf", ioloop.DefaultResolvConf, "resolv.conf file nameservers are read from")
	flags.Duration("resolve-timeout", ioloop.DefaultResolveTimeout, "interval between two DNS queries")
	flags.Int("resolve-attempts", ioloop.DefaultResolveAttempts, "DNS queries sent before giving up")

	cmd.AddCommand(
		newEchoCommand(a),
		newGetCommand(a),
		newResolveCommand(a),
		newWatchCommand(a),
		newBenchCommand(a),
	)
	return cmd
}

// load binds the flags of the running command, IOLOOP_* environment
// variables and the config file. Flags win over the environment, which wins
// over the file.
func (a *app) load(flags *pflag.FlagSet) error {
	if err := a.v.BindPFlags(flags); err != nil {
		return err
	}
	a.v.SetEnvPrefix("IOLOOP")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	path := strings.TrimSpace(a.v.GetString("config"))
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	if info, err := os.Stat(abs); err != nil {
		return fmt.Errorf("config file %q: %w", abs, err)
	} else if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", abs)
	}
	a.v.SetConfigFile(abs)
	if err = a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", abs, err)
	}
	return nil
}

// options translates the configuration into loop, connection and resolver options.
func (a *app) options() ([]ioloop.Option, error) {
	backend, err := netpoll.ParseBackend(a.v.GetString("backend"))
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	readBuffer, err := humanize.ParseBytes(a.v.GetString("read-buffer"))
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}

	opts := []ioloop.Option{
		ioloop.WithBackend(backend),
		ioloop.WithLogLevel(level),
		ioloop.WithReadBufferCap(int(readBuffer)),
		ioloop.WithHostsFile(a.v.GetString("hosts-file")),
		ioloop.WithResolvConf(a.v.GetString("resolv-conf")),
		ioloop.WithResolveTimeout(a.v.GetDuration("resolve-timeout")),
		ioloop.WithResolveAttempts(a.v.GetInt("resolve-attempts")),
	}
	if file := a.v.GetString("log-file"); file != "" {
		logger, err := a.fileLogger(file, level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ioloop.WithLogger(logger))
	}
	if servers := a.v.GetStringSlice("nameserver"); len(servers) > 0 {
		opts = append(opts, ioloop.WithNameservers(servers...))
	}
	return opts, nil
}

// fileLogger opens the rotated log file once, the loops of a command all
// write through it and main flushes it on exit.
func (a *app) fileLogger(path string, lvl logging.Level) (logging.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	logger, flush, err := logging.CreateLoggerAsLocalFile(path, lvl)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	logging.SetDefaultLoggerAndFlusher(logger, flush)
	a.logger = logger
	return logger, nil
}

// newLoop creates a loop with the configured options plus extra.
func (a *app) newLoop(extra ...ioloop.Option) (*ioloop.Loop, []ioloop.Option, error) {
	opts, err := a.options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, extra...)
	l, err := ioloop.NewLoop(opts...)
	if err != nil {
		return nil, nil, err
	}
	return l, opts, nil
}

// stopOnDone stops l from its own goroutine once ctx is done. The returned
// function releases the watcher.
func stopOnDone(ctx context.Context, l *ioloop.Loop) (func(), error) {
	aw, err := ioloop.NewAsyncWatcher(ioloop.AsyncFunc(func(w *ioloop.AsyncWatcher) {
		_ = w.Loop().Stop()
	}))
	if err != nil {
		return nil, err
	}
	if err = aw.Attach(l); err != nil {
		_ = aw.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = aw.Signal()
		case <-done:
		}
	}()
	return func() {
		close(done)
		_ = aw.Close()
	}, nil
}

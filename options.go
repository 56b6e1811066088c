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

package ioloop

import (
	"time"

	"github.com/panjf2000/ioloop/pkg/logging"
	"github.com/panjf2000/ioloop/pkg/netpoll"
	"github.com/panjf2000/ioloop/pkg/socket"
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	return opts
}

// TCPSocketOpt is the type of TCP socket options.
type TCPSocketOpt int

// Available TCP socket options.
const (
	TCPNoDelay TCPSocketOpt = iota
	TCPDelay
)

// KeepAliveOpt toggles SO_KEEPALIVE on dialed and accepted TCP connections.
type KeepAliveOpt int

// Available keep-alive settings.
const (
	KeepAliveOn KeepAliveOpt = iota
	KeepAliveOff
)

const (
	// InputSize is the default number of bytes read from a connection per readiness event.
	InputSize = 16 * 1024

	// DefaultResolveTimeout is the interval between two queries of a resolver.
	DefaultResolveTimeout = 3 * time.Second

	// DefaultResolveAttempts is the number of queries a resolver sends before giving up.
	DefaultResolveAttempts = 4

	// DefaultHostsFile is where host name overrides are looked up before querying DNS.
	DefaultHostsFile = "/etc/hosts"

	// DefaultResolvConf is where nameservers are read from when none are configured.
	DefaultResolvConf = "/etc/resolv.conf"
)

// Options are configurations shared by loops, listeners and dialed connections.
type Options struct {
	// ================================== Options for the loop ==================================

	// Backend selects the readiness notification facility, epoll or kqueue by default.
	Backend netpoll.Backend

	// ReadBufferCap is the maximum number of bytes that can be read from a connection when it is readable,
	// and the size of the buffer shared by every connection of a loop. It defaults to InputSize.
	ReadBufferCap int

	// Logger is the customized logger for logging info, if it is not set,
	// then ioloop will use the default logger powered by go.uber.org/zap.
	Logger logging.Logger

	// LogPath the local path where logs will be written, this is the easiest way to set up logging,
	// ioloop instantiates a default uber-go/zap logger with this given log path, you are also allowed to employ
	// you own logger during the lifetime by implementing the following logging.Logger interface.
	//
	// Note that this option can be overridden by the option Logger.
	LogPath string

	// LogLevel specifies the logging level, it should be used along with LogPath.
	LogLevel logging.Level

	// ================================= Options for sockets =================================

	// Backlog is the maximum length of the queue of pending connections of a listener.
	Backlog int

	// ReuseAddr indicates whether to set up the SO_REUSEADDR socket option.
	ReuseAddr bool

	// ReusePort indicates whether to set up the SO_REUSEPORT socket option.
	ReusePort bool

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	//
	// The default is true (no delay), meaning that data is sent
	// as soon as possible after a write operation.
	TCPNoDelay TCPSocketOpt

	// TCPKeepAlive toggles SO_KEEPALIVE, it is on by default.
	TCPKeepAlive KeepAliveOpt

	// SocketRecvBuffer sets the maximum socket receive buffer in bytes.
	SocketRecvBuffer int

	// SocketSendBuffer sets the maximum socket send buffer in bytes.
	SocketSendBuffer int

	// OnConnection is invoked by a Server after a new connection has been
	// attached and its OnConnect handler has run.
	OnConnection func(c *Conn)

	// ================================= Options for name resolution =================================

	// Nameservers are queried in rotation, as "host" or "host:port".
	// When empty they are read from ResolvConf.
	Nameservers []string

	// HostsFile is consulted before any DNS query, it defaults to DefaultHostsFile.
	HostsFile string

	// ResolvConf is read for nameservers when Nameservers is empty, it defaults to DefaultResolvConf.
	ResolvConf string

	// ResolveTimeout is the interval between two queries of a resolver.
	ResolveTimeout time.Duration

	// ResolveAttempts is the number of queries sent before a resolution times out.
	ResolveAttempts int
}

func (opts *Options) normalize() {
	if opts.ReadBufferCap <= 0 {
		opts.ReadBufferCap = InputSize
	}
	if opts.HostsFile == "" {
		opts.HostsFile = DefaultHostsFile
	}
	if opts.ResolvConf == "" {
		opts.ResolvConf = DefaultResolvConf
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	if opts.ResolveAttempts <= 0 {
		opts.ResolveAttempts = DefaultResolveAttempts
	}
}

// socketOptions translates the options into the ones set on a new socket
// before it binds or connects.
func (opts *Options) socketOptions(listening bool) (sockOpts []socket.Option) {
	if listening && opts.ReuseAddr {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseAddr, Opt: 1})
	}
	if listening && opts.ReusePort {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseport, Opt: 1})
	}
	if opts.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetRecvBuffer, Opt: opts.SocketRecvBuffer})
	}
	if opts.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetSendBuffer, Opt: opts.SocketSendBuffer})
	}
	return
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithBackend picks the polling backend of a loop.
func WithBackend(b netpoll.Backend) Option {
	return func(opts *Options) {
		opts.Backend = b
	}
}

// WithReadBufferCap sets ReadBufferCap for reading bytes.
func WithReadBufferCap(readBufferCap int) Option {
	return func(opts *Options) {
		opts.ReadBufferCap = readBufferCap
	}
}

// WithLogPath is an option to set up the local path of log file.
func WithLogPath(fileName string) Option {
	return func(opts *Options) {
		opts.LogPath = fileName
	}
}

// WithLogLevel is an option to set up the logging level.
func WithLogLevel(lvl logging.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = lvl
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithBacklog sets up the listen backlog.
func WithBacklog(backlog int) Option {
	return func(opts *Options) {
		opts.Backlog = backlog
	}
}

// WithReuseAddr sets up SO_REUSEADDR socket option.
func WithReuseAddr(reuseAddr bool) Option {
	return func(opts *Options) {
		opts.ReuseAddr = reuseAddr
	}
}

// WithReusePort sets up SO_REUSEPORT socket option.
func WithReusePort(reusePort bool) Option {
	return func(opts *Options) {
		opts.ReusePort = reusePort
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(tcpNoDelay TCPSocketOpt) Option {
	return func(opts *Options) {
		opts.TCPNoDelay = tcpNoDelay
	}
}

// WithTCPKeepAlive enable/disable the SO_KEEPALIVE socket option.
func WithTCPKeepAlive(keepAlive KeepAliveOpt) Option {
	return func(opts *Options) {
		opts.TCPKeepAlive = keepAlive
	}
}

// WithSocketRecvBuffer sets the maximum socket receive buffer in bytes.
func WithSocketRecvBuffer(recvBuf int) Option {
	return func(opts *Options) {
		opts.SocketRecvBuffer = recvBuf
	}
}

// WithSocketSendBuffer sets the maximum socket send buffer in bytes.
func WithSocketSendBuffer(sendBuf int) Option {
	return func(opts *Options) {
		opts.SocketSendBuffer = sendBuf
	}
}

// WithConnectionCallback installs the function a Server calls for every new connection.
func WithConnectionCallback(fn func(c *Conn)) Option {
	return func(opts *Options) {
		opts.OnConnection = fn
	}
}

// WithNameservers sets the DNS servers queried when dialing host names.
func WithNameservers(servers ...string) Option {
	return func(opts *Options) {
		opts.Nameservers = servers
	}
}

// WithHostsFile overrides the hosts file consulted before DNS.
func WithHostsFile(path string) Option {
	return func(opts *Options) {
		opts.HostsFile = path
	}
}

// WithResolvConf overrides the resolv.conf file nameservers are read from.
func WithResolvConf(path string) Option {
	return func(opts *Options) {
		opts.ResolvConf = path
	}
}

// WithResolveTimeout sets the interval between two DNS queries.
func WithResolveTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.ResolveTimeout = d
	}
}

// WithResolveAttempts sets how many DNS queries are sent before giving up.
func WithResolveAttempts(n int) Option {
	return func(opts *Options) {
		opts.ResolveAttempts = n
	}
}

// Copyright (c) 2020 The Gnet Authors. All rights reserved.
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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

// Package socket creates the non-blocking descriptors driven by an ioloop.Loop:
// listening and connecting stream sockets over TCP and UNIX domain, and UDP
// datagram sockets, plus the socket options applied to them.
package socket

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBacklog is the listen backlog used unless the caller asks for another one.
const DefaultBacklog = 1024

// Option is used for setting an option on socket.
type Option struct {
	SetSockOpt func(int, int) error
	Opt        int
}

func execSockOpts(fd int, opts []Option) error {
	for _, opt := range opts {
		if err := opt.SetSockOpt(fd, opt.Opt); err != nil {
			return err
		}
	}
	return nil
}

// TCPSocket creates a TCP socket and returns a file descriptor that refers to it.
// A passive socket is bound to addr and listening with the given backlog, an
// active one has a non-blocking connect to addr in progress.
// The given socket options will be set on the returned file descriptor before bind or connect.
func TCPSocket(proto, addr string, passive bool, backlog int, sockOpts ...Option) (int, net.Addr, error) {
	return tcpSocket(proto, addr, passive, backlog, sockOpts)
}

// UDPSocket creates a UDP socket and returns a file descriptor that refers to it.
// When connect is true the socket is connected to addr, otherwise it is bound to it.
func UDPSocket(proto, addr string, connect bool, sockOpts ...Option) (int, net.Addr, error) {
	return udpSocket(proto, addr, connect, sockOpts)
}

// UnixSocket creates a Unix socket and returns a file descriptor that refers to it.
// A passive socket is bound to the path and listening, an active one is connecting to it.
func UnixSocket(proto, addr string, passive bool, backlog int, sockOpts ...Option) (int, net.Addr, error) {
	return udsSocket(proto, addr, passive, backlog, sockOpts)
}

// Accept accepts the next incoming socket along with setting
// O_NONBLOCK and O_CLOEXEC flags on it.
func Accept(fd int) (int, unix.Sockaddr, error) {
	return sysAccept(fd)
}

// IsTemporary reports whether err only means "try again later" for a non-blocking descriptor.
func IsTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// connect starts a non-blocking connect, EINPROGRESS is the expected outcome.
func connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil || err == unix.EINPROGRESS || err == unix.EINTR {
		return nil
	}
	return os.NewSyscallError("connect", err)
}

func listen(fd, backlog int) error {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if backlog > listenerBacklogMaxSize {
		backlog = listenerBacklogMaxSize
	}
	return os.NewSyscallError("listen", unix.Listen(fd, backlog))
}

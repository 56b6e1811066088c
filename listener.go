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
	"errors"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/socket"
)

// ListenerHandler receives the connections accepted by a Listener. The
// descriptor is non-blocking and belongs to the handler from then on.
type ListenerHandler interface {
	OnConnection(ln *Listener, fd int, sa unix.Sockaddr)
}

// ListenerFunc adapts a function to ListenerHandler.
type ListenerFunc func(ln *Listener, fd int, sa unix.Sockaddr)

// OnConnection calls f(ln, fd, sa).
func (f ListenerFunc) OnConnection(ln *Listener, fd int, sa unix.Sockaddr) {
	f(ln, fd, sa)
}

// Listener watches a bound, listening, non-blocking socket and accepts one
// pending connection each time it becomes readable.
type Listener struct {
	watcher
	fd      int
	network string
	addr    net.Addr
	io      *IOWatcher
	handler ListenerHandler
	opts    *Options
	closed  bool
}

// ListenTCP binds a TCP listener on host:port, port 0 picks an ephemeral one.
func ListenTCP(host string, port int, opts ...Option) (*Listener, error) {
	options := loadOptions(opts...)
	options.normalize()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	fd, netAddr, err := socket.TCPSocket("tcp", addr, true, options.Backlog, options.socketOptions(true)...)
	if err != nil {
		return nil, err
	}
	return newListener(fd, "tcp", netAddr, options), nil
}

// ListenUNIX binds a UNIX domain listener on path, a stale socket file left
// at path is removed first.
func ListenUNIX(path string, opts ...Option) (*Listener, error) {
	options := loadOptions(opts...)
	options.normalize()
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		_ = os.Remove(path)
	}
	fd, netAddr, err := socket.UnixSocket("unix", path, true, options.Backlog, options.socketOptions(true)...)
	if err != nil {
		return nil, err
	}
	return newListener(fd, "unix", netAddr, options), nil
}

// NewListener wraps a descriptor that is already bound, listening and
// non-blocking. The listener owns it from then on.
func NewListener(fd int, h ListenerHandler, opts ...Option) (*Listener, error) {
	options := loadOptions(opts...)
	options.normalize()
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	network := "tcp"
	if _, ok := sa.(*unix.SockaddrUnix); ok {
		network = "unix"
	}
	ln := newListener(fd, network, socket.SockaddrToTCPOrUnixAddr(sa), options)
	ln.handler = h
	return ln, nil
}

func newListener(fd int, network string, addr net.Addr, opts *Options) *Listener {
	ln := &Listener{fd: fd, network: network, addr: addr, opts: opts}
	ln.self = ln
	ln.io = newEmbeddedIOWatcher(fd, ln)
	return ln
}

// SetHandler sets the handler receiving accepted connections.
func (ln *Listener) SetHandler(h ListenerHandler) {
	ln.handler = h
}

// FD returns the listening descriptor.
func (ln *Listener) FD() int { return ln.fd }

// Network returns "tcp" or "unix".
func (ln *Listener) Network() string { return ln.network }

// Addr returns the bound address, with the actual port for ephemeral ones.
func (ln *Listener) Addr() net.Addr { return ln.addr }

// Close detaches the listener and closes its socket, the socket file of a
// UNIX listener is removed.
func (ln *Listener) Close() error {
	if ln.closed {
		return nil
	}
	err := ln.Detach()
	ln.closed = true
	if e := unix.Close(ln.fd); err == nil && e != nil {
		err = os.NewSyscallError("close", e)
	}
	if ua, ok := ln.addr.(*net.UnixAddr); ok && ua.Name != "" {
		_ = os.Remove(ua.Name)
	}
	return err
}

func (ln *Listener) start() error {
	if ln.closed {
		return errorx.ErrWatcherClosed
	}
	return ln.io.startEmbedded(ln.loop)
}

func (ln *Listener) stop() error {
	return ln.io.stopEmbedded()
}

func (ln *Listener) fire(pendingEvent) {
	fd, sa, err := socket.Accept(ln.fd)
	if err != nil {
		if socket.IsTemporary(err) || errors.Is(err, unix.ECONNABORTED) {
			return
		}
		ln.loop.logger.Errorf("accept on %s: %v", ln.addr, err)
		return
	}
	if ln.handler == nil {
		_ = unix.Close(fd)
		return
	}
	ln.handler.OnConnection(ln, fd, sa)
}

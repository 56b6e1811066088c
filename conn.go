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
	"net"
	"os"
	"strconv"

	"github.com/rs/xid"
	"golang.org/x/sys/unix"

	"github.com/panjf2000/ioloop/pkg/buffer/linkedlist"
	errorx "github.com/panjf2000/ioloop/pkg/errors"
	bsio "github.com/panjf2000/ioloop/pkg/io"
	"github.com/panjf2000/ioloop/pkg/netpoll"
	"github.com/panjf2000/ioloop/pkg/socket"
)

// ConnState is the stage a connection has reached.
type ConnState int32

const (
	// StateResolving means the host name is being resolved.
	StateResolving ConnState = iota
	// StateConnecting means a non-blocking connect is in progress.
	StateConnecting
	// StateOpen means the connection is established.
	StateOpen
	// StateFailed means resolving or connecting failed, it is terminal.
	StateFailed
	// StateClosed means the connection was closed, it is terminal.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// iovMax bounds the number of buffers handed to a single writev call.
const iovMax = 1024

// Conn is a buffered, non-blocking stream connection over TCP or a UNIX
// domain socket. Outbound connections go through StateResolving and
// StateConnecting before reaching StateOpen, accepted ones start open.
//
// Conn implements Watcher: the lifecycle calls are delegated to whichever
// watcher drives the current state, the resolver, the connector or the
// read and write watchers of the descriptor.
type Conn struct {
	id      xid.ID
	fd      int
	network string
	state   ConnState
	handler EventHandler
	opts    *Options
	loop    *Loop
	ctx     any

	announce bool // OnConnect is still due, it fires on the first Attach of an open connection

	outbound  linkedlist.Buffer
	reader    *IOWatcher
	writer    *IOWatcher
	connector *IOWatcher
	resolver  *Resolver

	host       string
	port       int
	localAddr  net.Addr
	remoteAddr net.Addr
}

func newConn(network string, h EventHandler, opts *Options) *Conn {
	return &Conn{
		id:      xid.New(),
		fd:      -1,
		network: network,
		handler: h,
		opts:    opts,
	}
}

// newAcceptedConn wraps a descriptor returned by accept, the connection starts open.
func newAcceptedConn(fd int, sa unix.Sockaddr, network string, opts *Options) *Conn {
	c := newConn(network, nil, opts)
	c.open(fd)
	c.remoteAddr = socket.SockaddrToTCPOrUnixAddr(sa)
	c.host, c.port = socket.SockaddrHostPort(sa)
	if lsa, err := unix.Getsockname(fd); err == nil {
		c.localAddr = socket.SockaddrToTCPOrUnixAddr(lsa)
	}
	return c
}

// NewConn wraps fd, a connected stream socket or another stream descriptor
// such as a pipe, into an open connection. fd is switched to non-blocking
// mode and belongs to the connection from then on. OnConnect fires when the
// connection is attached to a loop for the first time.
func NewConn(fd int, h EventHandler, opts ...Option) (*Conn, error) {
	if h == nil {
		return nil, errorx.ErrNilHandler
	}
	options := loadOptions(opts...)
	options.normalize()

	network := "pipe"
	lsa, err := unix.Getsockname(fd)
	switch {
	case err == unix.ENOTSOCK:
	case err != nil:
		return nil, os.NewSyscallError("getsockname", err)
	default:
		typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
		if err != nil {
			return nil, os.NewSyscallError("getsockopt", err)
		}
		if typ != unix.SOCK_STREAM {
			return nil, errorx.ErrUnsupportedProtocol
		}
		switch lsa.(type) {
		case *unix.SockaddrInet4, *unix.SockaddrInet6:
			network = "tcp"
		case *unix.SockaddrUnix:
			network = "unix"
		default:
			return nil, errorx.ErrUnsupportedProtocol
		}
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		return nil, os.NewSyscallError("setnonblock", err)
	}

	c := newConn(network, h, options)
	c.open(fd)
	if network != "pipe" {
		c.localAddr = socket.SockaddrToTCPOrUnixAddr(lsa)
		if rsa, err := unix.Getpeername(fd); err == nil {
			c.remoteAddr = socket.SockaddrToTCPOrUnixAddr(rsa)
			c.host, c.port = socket.SockaddrHostPort(rsa)
		}
	}
	return c, nil
}

func (c *Conn) open(fd int) {
	c.fd = fd
	c.state = StateOpen
	c.announce = true
	c.reader = NewIOWatcher(fd, netpoll.Readable, ioFuncs{readable: c.read})
}

// opened completes the move to StateOpen on l and fires OnConnect.
func (c *Conn) opened(l *Loop) {
	if err := c.applyStreamOptions(); err != nil {
		l.logger.Warnf("connection %s: %v", c.id, err)
	}
	l.stats.connsOpened.Add(1)
	c.handler.OnConnect(c)
}

// ConnectTCP starts connecting to host:port. A literal IP address is
// connected right away and a name found in the hosts file is treated like
// one, any other name is resolved first with a DNS query.
// Nothing happens on the wire before the connection is attached to a loop,
// except for the non-blocking connect of a known address.
func ConnectTCP(host string, port int, h EventHandler, opts ...Option) (*Conn, error) {
	options := loadOptions(opts...)
	options.normalize()

	c := newConn("tcp", h, options)
	c.host, c.port = host, port

	ip := net.ParseIP(host)
	if ip == nil {
		if hostIP, ok := LookupHosts(options.HostsFile, host); ok {
			ip = hostIP
		}
	}
	if ip != nil {
		if err := c.dial(ip); err != nil {
			return nil, err
		}
		return c, nil
	}

	r, err := newResolver(host, connResolution{c}, options)
	if err != nil {
		return nil, err
	}
	c.resolver = r
	c.state = StateResolving
	return c, nil
}

// ConnectUNIX starts connecting to the UNIX domain socket at path.
func ConnectUNIX(path string, h EventHandler, opts ...Option) (*Conn, error) {
	options := loadOptions(opts...)
	options.normalize()

	c := newConn("unix", h, options)
	c.host = path
	fd, addr, err := socket.UnixSocket("unix", path, false, 0, options.socketOptions(false)...)
	if err != nil {
		return nil, err
	}
	c.connecting(fd, addr)
	return c, nil
}

func (c *Conn) dial(ip net.IP) error {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(c.port))
	fd, netAddr, err := socket.TCPSocket("tcp", addr, false, 0, c.opts.socketOptions(false)...)
	if err != nil {
		return err
	}
	c.connecting(fd, netAddr)
	return nil
}

func (c *Conn) connecting(fd int, remote net.Addr) {
	c.fd = fd
	c.remoteAddr = remote
	c.state = StateConnecting
	c.connector = NewIOWatcher(fd, netpoll.Writable, ioFuncs{writable: c.connected})
}

// connected runs when the connecting socket turns writable.
func (c *Conn) connected() {
	if err := socket.SocketError(c.fd); err != nil {
		c.fail(err, false)
		return
	}

	l := c.loop
	_ = c.connector.Detach()
	c.connector = nil
	c.state = StateOpen
	if lsa, err := unix.Getsockname(c.fd); err == nil {
		c.localAddr = socket.SockaddrToTCPOrUnixAddr(lsa)
	}

	c.reader = NewIOWatcher(c.fd, netpoll.Readable, ioFuncs{readable: c.read})
	if err := c.reader.Attach(l); err != nil {
		c.closeWithError(err)
		return
	}
	c.opened(l)
	if c.state == StateOpen && !c.outbound.IsEmpty() {
		c.armWriter()
	}
}

// resolved continues a connection whose host name resolved to ip.
func (c *Conn) resolved(ip net.IP) {
	l := c.loop
	c.resolver = nil
	if err := c.dial(ip); err != nil {
		c.fail(err, false)
		return
	}
	if l == nil {
		return
	}
	if err := c.connector.Attach(l); err != nil {
		c.fail(err, false)
	}
}

// fail moves the connection to StateFailed and releases everything it holds.
func (c *Conn) fail(err error, resolving bool) {
	if c.connector != nil {
		_ = c.connector.Detach()
		c.connector = nil
	}
	if c.resolver != nil {
		_ = c.resolver.Close()
		c.resolver = nil
	}
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	c.outbound.Reset()
	c.loop = nil
	c.state = StateFailed

	if resolving {
		if h, ok := c.handler.(ResolveFailedHandler); ok {
			h.OnResolveFailed(c, err)
			return
		}
	}
	c.handler.OnConnectFailed(c, err)
}

func (c *Conn) applyStreamOptions() error {
	if c.network != "tcp" {
		return nil
	}
	noDelay := 0
	if c.opts.TCPNoDelay == TCPNoDelay {
		noDelay = 1
	}
	if err := socket.SetNoDelay(c.fd, noDelay); err != nil {
		return err
	}
	keepAlive := 0
	if c.opts.TCPKeepAlive == KeepAliveOn {
		keepAlive = 1
	}
	return socket.SetKeepAlive(c.fd, keepAlive)
}

// read performs one bounded read into the loop's shared buffer.
func (c *Conn) read() {
	l := c.loop
	n, err := unix.Read(c.fd, l.buffer)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		c.closeWithError(os.NewSyscallError("read", err))
		return
	}
	if n == 0 {
		_ = c.Close()
		return
	}
	l.stats.bytesRead.Add(uint64(n))
	c.handler.OnRead(c, l.buffer[:n])
}

// flush performs one vectored write of the buffered data.
func (c *Conn) flush() {
	n, err := bsio.Writev(c.fd, c.outbound.Peek(0, iovMax))
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		c.closeWithError(os.NewSyscallError("writev", err))
		return
	}
	c.outbound.Discard(n)
	c.loop.stats.bytesWritten.Add(uint64(n))
	if !c.outbound.IsEmpty() {
		return
	}
	_ = c.writer.Disable()
	c.handler.OnWriteComplete(c)
}

// armWriter makes sure the write watcher runs while data is buffered.
func (c *Conn) armWriter() {
	if c.writer == nil {
		c.writer = NewIOWatcher(c.fd, netpoll.Writable, ioFuncs{writable: c.flush})
	}
	var err error
	switch {
	case !c.writer.IsAttached():
		err = c.writer.Attach(c.loop)
	case !c.writer.IsEnabled():
		err = c.writer.Enable()
	}
	if err != nil {
		c.closeWithError(err)
	}
}

func (c *Conn) closeWithError(err error) {
	if c.loop != nil {
		c.loop.logger.Debugf("closing connection %s to %s: %v", c.id, c.RemoteAddr(), err)
	}
	_ = c.Close()
}

// Write queues a copy of p and returns immediately, the data goes out as the
// socket becomes writable. Data written before the connection is open is
// sent once it is.
func (c *Conn) Write(p []byte) (int, error) {
	switch c.state {
	case StateFailed:
		return 0, errorx.ErrConnectionFailed
	case StateClosed:
		return 0, errorx.ErrConnClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	_, _ = c.outbound.Write(p)
	if c.state == StateOpen && c.loop != nil && c.reader.IsEnabled() {
		c.armWriter()
	}
	return len(p), nil
}

// Close detaches every watcher of the connection, releases the descriptor and
// fires OnClose. Closing a closed connection is a no-op, closing a failed one
// only marks it closed.
func (c *Conn) Close() error {
	prev := c.state
	switch prev {
	case StateClosed:
		return nil
	case StateFailed:
		c.state = StateClosed
		return nil
	}
	c.state = StateClosed

	var err error
	switch prev {
	case StateResolving:
		err = c.resolver.Close()
		c.resolver = nil
	case StateConnecting:
		err = c.connector.Detach()
		c.connector = nil
	case StateOpen:
		err = c.reader.Detach()
		if c.writer != nil {
			if e := c.writer.Detach(); err == nil {
				err = e
			}
		}
	}
	if c.fd >= 0 {
		if e := unix.Close(c.fd); err == nil && e != nil {
			err = os.NewSyscallError("close", e)
		}
		c.fd = -1
	}
	c.outbound.Reset()
	if prev == StateOpen && c.loop != nil {
		c.loop.stats.connsClosed.Add(1)
	}
	c.loop = nil
	c.handler.OnClose(c)
	return err
}

// Attach attaches the connection to l through the watcher of its current state.
func (c *Conn) Attach(l *Loop) error {
	if l == nil {
		return errorx.ErrNilLoop
	}
	var err error
	switch c.state {
	case StateResolving, StateConnecting:
		// A failed first query reports synchronously and clears the loop again.
		c.loop = l
		if c.state == StateResolving {
			err = c.resolver.Attach(l)
		} else {
			err = c.connector.Attach(l)
		}
		if err != nil {
			c.loop = nil
		}
		return err
	case StateOpen:
		if err = c.reader.Attach(l); err != nil {
			return err
		}
		c.loop = l
		if !c.outbound.IsEmpty() {
			if c.writer != nil && c.writer.IsAttached() {
				_ = c.writer.Detach()
			}
			c.armWriter()
		} else if c.writer != nil {
			err = c.writer.Detach()
		}
		if c.announce {
			c.announce = false
			c.opened(l)
		}
		return err
	case StateFailed:
		return errorx.ErrConnectionFailed
	}
	return errorx.ErrConnClosed
}

// Detach removes the connection from its loop, buffered data stays queued.
func (c *Conn) Detach() error {
	var err error
	switch c.state {
	case StateResolving:
		err = c.resolver.Detach()
	case StateConnecting:
		err = c.connector.Detach()
	case StateOpen:
		err = c.reader.Detach()
		if c.writer != nil {
			if e := c.writer.Detach(); err == nil {
				err = e
			}
		}
	}
	c.loop = nil
	return err
}

// Enable resumes the delivery of events.
func (c *Conn) Enable() error {
	switch c.state {
	case StateResolving:
		return c.resolver.Enable()
	case StateConnecting:
		return c.connector.Enable()
	case StateOpen:
		if err := c.reader.Enable(); err != nil {
			return err
		}
		if !c.outbound.IsEmpty() {
			c.armWriter()
		}
		return nil
	case StateFailed:
		return errorx.ErrConnectionFailed
	}
	return errorx.ErrConnClosed
}

// Disable suspends the delivery of events, buffered writes included.
func (c *Conn) Disable() error {
	switch c.state {
	case StateResolving:
		return c.resolver.Disable()
	case StateConnecting:
		return c.connector.Disable()
	case StateOpen:
		if err := c.reader.Disable(); err != nil {
			return err
		}
		if c.writer != nil && c.writer.IsEnabled() {
			return c.writer.Disable()
		}
		return nil
	case StateFailed:
		return errorx.ErrConnectionFailed
	}
	return errorx.ErrConnClosed
}

func (c *Conn) primary() Watcher {
	switch c.state {
	case StateResolving:
		return c.resolver
	case StateConnecting:
		return c.connector
	case StateOpen:
		return c.reader
	}
	return nil
}

// IsAttached reports whether the connection belongs to a loop.
func (c *Conn) IsAttached() bool {
	w := c.primary()
	return w != nil && w.IsAttached()
}

// IsEnabled reports whether events of the connection are being delivered.
func (c *Conn) IsEnabled() bool {
	w := c.primary()
	return w != nil && w.IsEnabled()
}

// Loop returns the loop the connection is attached to, or nil.
func (c *Conn) Loop() *Loop {
	if !c.IsAttached() {
		return nil
	}
	return c.loop
}

// ID returns the globally unique id of the connection.
func (c *Conn) ID() string { return c.id.String() }

// State returns the current stage of the connection.
func (c *Conn) State() ConnState { return c.state }

// FD returns the descriptor of the connection, -1 when there is none.
func (c *Conn) FD() int { return c.fd }

// Network returns "tcp", "unix" or "pipe", the latter for a descriptor
// wrapped by NewConn that isn't a socket.
func (c *Conn) Network() string { return c.network }

// Handler returns the event handler of the connection.
func (c *Conn) Handler() EventHandler { return c.handler }

// Buffered returns the number of bytes waiting to be written.
func (c *Conn) Buffered() int { return c.outbound.Buffered() }

// Context returns a user-defined context.
func (c *Conn) Context() any { return c.ctx }

// SetContext sets a user-defined context.
func (c *Conn) SetContext(ctx any) { c.ctx = ctx }

// RemoteAddr returns the address of the peer, nil until it is known.
func (c *Conn) RemoteAddr() net.Addr { return c.remoteAddr }

// LocalAddr returns the local address, nil until the connection is open.
func (c *Conn) LocalAddr() net.Addr { return c.localAddr }

// RemoteHost returns the host the connection was made to, or the address of
// the peer of an accepted connection. For UNIX sockets it is the path.
func (c *Conn) RemoteHost() string { return c.host }

// RemotePort returns the port of the peer, 0 for UNIX sockets.
func (c *Conn) RemotePort() int { return c.port }

// connResolution feeds the outcome of a resolver back into its connection.
type connResolution struct {
	c *Conn
}

func (r connResolution) OnSuccess(_ *Resolver, ip net.IP) {
	r.c.resolved(ip)
}

func (r connResolution) OnFailure(_ *Resolver, err error) {
	r.c.resolver = nil
	r.c.fail(err, true)
}

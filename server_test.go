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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

type notAHandler struct{}

func TestNewServerFactoryChecks(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	var nilFactory func(*Conn) EventHandler
	cases := []struct {
		name    string
		factory any
		args    []any
		want    error
	}{
		{"not a function", "factory", nil, errorx.ErrFactorySignature},
		{"nil function", nilFactory, nil, errorx.ErrFactorySignature},
		{"no conn parameter", func() EventHandler { return nil }, nil, errorx.ErrFactorySignature},
		{"conn not first", func(int, *Conn) EventHandler { return nil }, []any{1}, errorx.ErrFactorySignature},
		{"no result", func(*Conn) {}, nil, errorx.ErrFactorySignature},
		{"result not a handler", func(*Conn) *notAHandler { return nil }, nil, errorx.ErrFactorySignature},
		{"second result not error", func(*Conn) (EventHandler, int) { return nil, 0 }, nil, errorx.ErrFactorySignature},
		{"missing argument", func(*Conn, string) EventHandler { return nil }, nil, errorx.ErrFactoryArity},
		{"extra argument", func(*Conn) EventHandler { return nil }, []any{"x"}, errorx.ErrFactoryArity},
		{"variadic too few", func(*Conn, int, ...string) EventHandler { return nil }, nil, errorx.ErrFactoryArity},
		{"wrong argument type", func(*Conn, string) EventHandler { return nil }, []any{42}, errorx.ErrFactorySignature},
		{"nil for value parameter", func(*Conn, string) EventHandler { return nil }, []any{nil}, errorx.ErrFactorySignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewServer(ln, tc.factory, tc.args...)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	valid := []struct {
		name    string
		factory any
		args    []any
	}{
		{"plain", func(*Conn) EventHandler { return nil }, nil},
		{"with error", func(*Conn) (EventHandler, error) { return nil, nil }, nil},
		{"concrete handler", func(*Conn) *clientHandler { return nil }, nil},
		{"arguments", func(*Conn, string, int) EventHandler { return nil }, []any{"a", 1}},
		{"nil pointer argument", func(*Conn, *echoStats) EventHandler { return nil }, []any{nil}},
		{"variadic", func(*Conn, ...string) EventHandler { return nil }, []any{"a", "b", "c"}},
		{"variadic empty", func(*Conn, ...string) EventHandler { return nil }, nil},
		{"interface argument", func(*Conn, error) EventHandler { return nil }, []any{errors.New("x")}},
	}
	for _, tc := range valid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewServer(ln, tc.factory, tc.args...)
			assert.NoError(t, err)
		})
	}
}

func TestServerPassesArguments(t *testing.T) {
	l := newTestLoop(t)
	ln, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)

	type seen struct {
		prefix string
		tags   []string
	}
	var got []seen
	srv, err := NewServer(ln, func(c *Conn, prefix string, tags ...string) EventHandler {
		got = append(got, seen{prefix, tags})
		assert.Equal(t, StateOpen, c.State())
		return new(BuiltinEventHandler)
	}, "edge", "a", "b")
	require.NoError(t, err)
	require.NoError(t, srv.Attach(l))
	defer srv.Close() //nolint:errcheck
	assert.Same(t, ln, srv.Listener())
	assert.True(t, srv.IsAttached())
	assert.Same(t, l, srv.Loop())

	for i := 0; i < 2; i++ {
		h := new(clientHandler)
		c, err := ConnectTCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, h)
		require.NoError(t, err)
		require.NoError(t, c.Attach(l))
		runUntil(t, l, func() bool { return h.connected == 1 && len(got) == i+1 })
		require.NoError(t, c.Close())
	}
	assert.Equal(t, []seen{{"edge", []string{"a", "b"}}, {"edge", []string{"a", "b"}}}, got)
}

func TestServerRejectedByFactory(t *testing.T) {
	l := newTestLoop(t)
	ln, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	srv, err := NewServer(ln, func(*Conn) (EventHandler, error) {
		return nil, errors.New("not today")
	})
	require.NoError(t, err)
	require.NoError(t, srv.Attach(l))
	defer srv.Close() //nolint:errcheck

	h := new(clientHandler)
	c, err := ConnectTCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, h)
	require.NoError(t, err)
	require.NoError(t, c.Attach(l))

	// The server drops the descriptor, the client reads EOF.
	runUntil(t, l, func() bool { return h.closes == 1 })
	assert.Len(t, l.Watchers(), 1)
	assert.EqualValues(t, 1, l.Stats().ConnsOpened)
}

func TestServerConnectionCallback(t *testing.T) {
	l := newTestLoop(t)
	var order []string
	ln, err := ListenTCP("127.0.0.1", 0, WithConnectionCallback(func(c *Conn) {
		order = append(order, "callback:"+c.State().String())
	}))
	require.NoError(t, err)

	srv, err := NewServer(ln, func(*Conn) EventHandler {
		order = append(order, "factory")
		return &onConnectFunc{fn: func() { order = append(order, "connect") }}
	})
	require.NoError(t, err)
	require.NoError(t, srv.Attach(l))
	defer srv.Close() //nolint:errcheck

	h := new(clientHandler)
	c, err := ConnectTCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, h)
	require.NoError(t, err)
	require.NoError(t, c.Attach(l))
	runUntil(t, l, func() bool { return len(order) == 3 })
	assert.Equal(t, []string{"factory", "connect", "callback:open"}, order)
	require.NoError(t, c.Close())
}

type onConnectFunc struct {
	BuiltinEventHandler
	fn func()
}

func (h *onConnectFunc) OnConnect(*Conn) { h.fn() }

func TestListenerPauseAndClose(t *testing.T) {
	l := newTestLoop(t)
	var accepted int
	ln, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	ln.SetHandler(ListenerFunc(func(_ *Listener, fd int, sa unix.Sockaddr) {
		accepted++
		assert.NotNil(t, sa)
		_ = unix.Close(fd)
	}))
	require.NoError(t, ln.Attach(l))
	require.NoError(t, ln.Disable())
	assert.Equal(t, "tcp", ln.Network())
	assert.GreaterOrEqual(t, ln.FD(), 0)

	h := new(clientHandler)
	c, err := ConnectTCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, h)
	require.NoError(t, err)
	require.NoError(t, c.Attach(l))
	// The kernel completes the handshake even while accepting is paused.
	runUntil(t, l, func() bool { return h.connected == 1 })
	assert.Zero(t, accepted)

	require.NoError(t, ln.Enable())
	runUntil(t, l, func() bool { return accepted == 1 })
	runUntil(t, l, func() bool { return h.closes == 1 })

	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	assert.False(t, ln.IsAttached())
	assert.ErrorIs(t, ln.Attach(l), errorx.ErrWatcherClosed)
}

func TestNewListenerWrapsDescriptor(t *testing.T) {
	l := newTestLoop(t)
	base, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	fd, err := unix.Dup(base.FD())
	require.NoError(t, err)
	require.NoError(t, base.Close())

	var accepted int
	ln, err := NewListener(fd, ListenerFunc(func(_ *Listener, cfd int, _ unix.Sockaddr) {
		accepted++
		_ = unix.Close(cfd)
	}))
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck
	assert.Equal(t, "tcp", ln.Network())
	require.NoError(t, ln.Attach(l))

	h := new(clientHandler)
	c, err := ConnectTCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, h)
	require.NoError(t, err)
	require.NoError(t, c.Attach(l))
	runUntil(t, l, func() bool { return accepted == 1 && h.closes == 1 })
}

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

package socket

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

func waitWritable(t *testing.T, fd int) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, int(time.Second/time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTCPSocketListenAcceptConnect(t *testing.T) {
	lfd, addr, err := TCPSocket("tcp", "127.0.0.1:0", true, 0, Option{SetSockOpt: SetReuseAddr, Opt: 1})
	require.NoError(t, err)
	defer unix.Close(lfd) //nolint:errcheck

	tcpAddr, ok := addr.(*net.TCPAddr)
	require.True(t, ok)
	require.NotZero(t, tcpAddr.Port)

	_, _, err = Accept(lfd)
	assert.True(t, IsTemporary(err), "accept on an idle non-blocking listener must be EAGAIN, got %v", err)

	cfd, _, err := TCPSocket("tcp", tcpAddr.String(), false, 0, Option{SetSockOpt: SetNoDelay, Opt: 1})
	require.NoError(t, err)
	defer unix.Close(cfd) //nolint:errcheck

	waitWritable(t, cfd)
	require.NoError(t, SocketError(cfd))

	var nfd int
	var sa unix.Sockaddr
	require.Eventually(t, func() bool {
		nfd, sa, err = Accept(lfd)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer unix.Close(nfd) //nolint:errcheck

	host, port := SockaddrHostPort(sa)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotZero(t, port)

	flags, err := unix.FcntlInt(uintptr(nfd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK, "accepted socket must be non-blocking")

	require.NoError(t, SetKeepAlive(nfd, 1))
	v, err := unix.GetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	require.NoError(t, err)
	assert.NotZero(t, v)
}

func TestTCPSocketConnectRefused(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	lfd, addr, err := TCPSocket("tcp", "127.0.0.1:0", true, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Close(lfd))

	cfd, _, err := TCPSocket("tcp", addr.String(), false, 0)
	if err != nil {
		// Some kernels report the refusal synchronously on loopback.
		assert.ErrorIs(t, err, unix.ECONNREFUSED)
		return
	}
	defer unix.Close(cfd) //nolint:errcheck
	waitWritable(t, cfd)
	assert.ErrorIs(t, SocketError(cfd), unix.ECONNREFUSED)
}

func TestUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ioloop.sock")
	lfd, addr, err := UnixSocket("unix", path, true, 16)
	require.NoError(t, err)
	defer unix.Close(lfd) //nolint:errcheck
	assert.Equal(t, path, addr.String())

	cfd, _, err := UnixSocket("unix", path, false, 0)
	require.NoError(t, err)
	defer unix.Close(cfd) //nolint:errcheck

	waitWritable(t, cfd)
	require.NoError(t, SocketError(cfd))
}

func TestUDPSocket(t *testing.T) {
	sfd, addr, err := UDPSocket("udp4", "127.0.0.1:0", false)
	require.NoError(t, err)
	defer unix.Close(sfd) //nolint:errcheck

	cfd, err := OpenUDP4()
	require.NoError(t, err)
	defer unix.Close(cfd) //nolint:errcheck

	udpAddr := addr.(*net.UDPAddr)
	require.NotZero(t, udpAddr.Port)
	require.NoError(t, unix.Sendto(cfd, []byte("ping"), 0, UDPAddrToSockaddr(udpAddr)))

	buf := make([]byte, 16)
	var n int
	var from unix.Sockaddr
	require.Eventually(t, func() bool {
		n, from, err = unix.Recvfrom(sfd, buf, 0)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.NotNil(t, SockaddrToUDPAddr(from))
}

func TestUnsupportedProtocols(t *testing.T) {
	_, _, err := TCPSocket("tcp7", "127.0.0.1:0", true, 0)
	assert.Error(t, err)
	_, _, err = UnixSocket("unixgram", filepath.Join(t.TempDir(), "x.sock"), true, 0)
	assert.ErrorIs(t, err, errorx.ErrUnsupportedUDSProtocol)
}

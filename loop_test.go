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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/logging"
	"github.com/panjf2000/ioloop/pkg/netpoll"
)

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l, err := NewLoop(append([]Option{WithLogger(logging.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// runUntil pumps l until done reports true.
func runUntil(t *testing.T, l *Loop, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		require.True(t, time.Now().Before(deadline), "timed out")
		require.NoError(t, l.RunOnce(10*time.Millisecond))
	}
}

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	r, w, err := openPipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(r)
		_ = unix.Close(w)
	})
	return
}

type countingIO struct {
	readable, writable int
	onReadable         func(w *IOWatcher)
}

func (h *countingIO) OnReadable(w *IOWatcher) {
	h.readable++
	if h.onReadable != nil {
		h.onReadable(w)
	}
}

func (h *countingIO) OnWritable(*IOWatcher) { h.writable++ }

func TestLoopCallerErrors(t *testing.T) {
	l := newTestLoop(t)
	assert.ErrorIs(t, l.Run(0), errorx.ErrNoWatchers)
	assert.ErrorIs(t, l.Stop(), errorx.ErrLoopNotRunning)
	assert.ErrorIs(t, l.RunOnce(-time.Second), errorx.ErrInvalidTimeout)
	assert.NoError(t, l.RunNonblock())

	r, _ := newPipe(t)
	w := NewIOWatcher(r, netpoll.Readable, new(countingIO))
	assert.ErrorIs(t, w.Attach(nil), errorx.ErrNilLoop)
	assert.ErrorIs(t, w.Enable(), errorx.ErrWatcherNotAttached)
	assert.ErrorIs(t, w.Disable(), errorx.ErrWatcherNotAttached)
	assert.NoError(t, w.Detach())

	require.NoError(t, w.Attach(l))
	assert.ErrorIs(t, w.Enable(), errorx.ErrWatcherEnabled)
	require.NoError(t, w.Disable())
	assert.ErrorIs(t, w.Disable(), errorx.ErrWatcherDisabled)
	assert.True(t, w.IsAttached())
	assert.False(t, w.IsEnabled())
	assert.False(t, l.HasActiveWatchers())
	require.NoError(t, w.Enable())
	assert.True(t, l.HasActiveWatchers())
	require.NoError(t, w.Detach())
	require.NoError(t, w.Detach())
	assert.Empty(t, l.Watchers())

	require.NoError(t, l.Close())
	assert.ErrorIs(t, w.Attach(l), errorx.ErrLoopClosed)
	assert.ErrorIs(t, l.RunNonblock(), errorx.ErrLoopClosed)
}

func TestLoopBackends(t *testing.T) {
	for _, b := range []netpoll.Backend{netpoll.BackendDefault, netpoll.BackendPoll} {
		t.Run(b.String(), func(t *testing.T) {
			l := newTestLoop(t, WithBackend(b))
			r, wfd := newPipe(t)
			h := new(countingIO)
			w := NewIOWatcher(r, netpoll.Readable, h)
			require.NoError(t, w.Attach(l))

			require.NoError(t, l.RunNonblock())
			assert.Zero(t, h.readable)

			_, err := unix.Write(wfd, []byte("x"))
			require.NoError(t, err)
			require.NoError(t, l.RunOnce(time.Second))
			assert.Equal(t, 1, h.readable)

			// Level-triggered: unread data keeps the watcher ready.
			require.NoError(t, l.RunOnce(time.Second))
			assert.Equal(t, 2, h.readable)

			require.NoError(t, w.Disable())
			require.NoError(t, l.RunOnce(10*time.Millisecond))
			assert.Equal(t, 2, h.readable)
		})
	}
}

func TestDetachInsideReadableCallback(t *testing.T) {
	l := newTestLoop(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0]) //nolint:errcheck
	defer unix.Close(fds[1]) //nolint:errcheck

	// The socket is both readable and writable, the writable half of the
	// event must not reach a watcher that detached while reading.
	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)
	h := &countingIO{onReadable: func(w *IOWatcher) { _ = w.Detach() }}
	w := NewIOWatcher(fds[0], netpoll.Readable|netpoll.Writable, h)
	require.NoError(t, w.Attach(l))

	require.NoError(t, l.RunOnce(time.Second))
	assert.Equal(t, 1, h.readable)
	assert.Zero(t, h.writable)
	assert.False(t, w.IsAttached())
}

func TestDetachOtherWatcherInSameBatch(t *testing.T) {
	l := newTestLoop(t)
	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)
	_, err := unix.Write(w1, []byte("a"))
	require.NoError(t, err)
	_, err = unix.Write(w2, []byte("b"))
	require.NoError(t, err)

	var calls int
	var a, b *IOWatcher
	a = NewIOWatcher(r1, netpoll.Readable, &countingIO{onReadable: func(*IOWatcher) { calls++; _ = b.Detach() }})
	b = NewIOWatcher(r2, netpoll.Readable, &countingIO{onReadable: func(*IOWatcher) { calls++; _ = a.Detach() }})
	require.NoError(t, a.Attach(l))
	require.NoError(t, b.Attach(l))

	require.NoError(t, l.RunOnce(time.Second))
	assert.Equal(t, 1, calls)
	assert.Len(t, l.Watchers(), 1)
}

func TestSharedDescriptor(t *testing.T) {
	l := newTestLoop(t)
	r, wfd := newPipe(t)
	h1, h2 := new(countingIO), new(countingIO)
	w1 := NewIOWatcher(r, netpoll.Readable, h1)
	w2 := NewIOWatcher(r, netpoll.Readable, h2)
	require.NoError(t, w1.Attach(l))
	require.NoError(t, w2.Attach(l))

	_, err := unix.Write(wfd, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, l.RunOnce(time.Second))
	assert.Equal(t, 1, h1.readable)
	assert.Equal(t, 1, h2.readable)

	require.NoError(t, w1.Detach())
	require.NoError(t, l.RunOnce(time.Second))
	assert.Equal(t, 1, h1.readable)
	assert.Equal(t, 2, h2.readable)
}

func TestRunStopsWithoutActiveWatchers(t *testing.T) {
	l := newTestLoop(t)
	r, wfd := newPipe(t)
	h := &countingIO{onReadable: func(w *IOWatcher) { _ = w.Disable() }}
	w := NewIOWatcher(r, netpoll.Readable, h)
	require.NoError(t, w.Attach(l))
	_, err := unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.Run(0))
	assert.Equal(t, 1, h.readable)
	assert.Len(t, l.Watchers(), 1)

	stats := l.Stats()
	assert.EqualValues(t, 1, stats.Watchers)
	assert.EqualValues(t, 0, stats.ActiveWatchers)
	assert.NotZero(t, stats.Iterations)
}

func TestStopFromCallback(t *testing.T) {
	l := newTestLoop(t)
	r, wfd := newPipe(t)
	h := &countingIO{onReadable: func(w *IOWatcher) {
		assert.ErrorIs(t, w.Loop().Run(0), errorx.ErrLoopRunning)
		assert.NoError(t, w.Loop().Stop())
	}}
	require.NoError(t, NewIOWatcher(r, netpoll.Readable, h).Attach(l))
	_, err := unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.Run(0))
	assert.Equal(t, 1, h.readable)
	assert.True(t, l.HasActiveWatchers())
}

func TestReattachMovesWatcher(t *testing.T) {
	l1, l2 := newTestLoop(t), newTestLoop(t)
	r, _ := newPipe(t)
	w := NewIOWatcher(r, netpoll.Readable, new(countingIO))
	require.NoError(t, w.Attach(l1))
	require.NoError(t, w.Attach(l2))
	assert.Same(t, l2, w.Loop())
	assert.Empty(t, l1.Watchers())
	assert.False(t, l1.HasActiveWatchers())
	assert.Len(t, l2.Watchers(), 1)
}

func TestLoopLogsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.log")
	l, err := NewLoop(WithLogPath(path), WithLogLevel(logging.DebugLevel))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "loop created with")
}

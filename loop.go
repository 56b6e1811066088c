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
	"container/heap"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/logging"
	"github.com/panjf2000/ioloop/pkg/netpoll"
)

// pendingEvent is one entry of the batch collected by a pass.
type pendingEvent struct {
	w        registrant
	readable bool
	writable bool
}

// fdEntry aggregates the IO watchers sharing a descriptor, the backend only
// knows the union of their interests.
type fdEntry struct {
	watchers []*IOWatcher
	interest netpoll.Interest
}

// Stats is a point-in-time snapshot of a loop's counters.
type Stats struct {
	Watchers       int64
	ActiveWatchers int64
	Iterations     uint64
	Events         uint64
	TimersFired    uint64
	ConnsOpened    uint64
	ConnsClosed    uint64
	BytesRead      uint64
	BytesWritten   uint64
}

type loopStats struct {
	watchers     atomic.Int64
	active       atomic.Int64
	iterations   atomic.Uint64
	events       atomic.Uint64
	timersFired  atomic.Uint64
	connsOpened  atomic.Uint64
	connsClosed  atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// Loop is a reactor driven by one goroutine at a time.
type Loop struct {
	opts    *Options
	logger  logging.Logger
	flusher logging.Flusher
	poller  netpoll.Poller
	buffer  []byte // shared read buffer, its content is only valid inside OnRead

	fds      map[int]*fdEntry
	timers   timerHeap
	watchers map[registrant]struct{}
	active   int
	pending  []pendingEvent

	running     bool
	stopped     bool
	dispatching bool
	closed      bool

	stats loopStats
}

// NewLoop creates a loop with its own backend instance.
func NewLoop(opts ...Option) (*Loop, error) {
	options := loadOptions(opts...)
	options.normalize()

	l := &Loop{
		opts:     options,
		fds:      make(map[int]*fdEntry),
		watchers: make(map[registrant]struct{}),
		buffer:   make([]byte, options.ReadBufferCap),
		pending:  make([]pendingEvent, 0, netpoll.InitPollEventsCap),
	}

	switch {
	case options.Logger != nil:
		l.logger = options.Logger
	case options.LogPath != "":
		logger, flusher, err := logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel)
		if err != nil {
			return nil, err
		}
		l.logger, l.flusher = logger, flusher
	case options.LogLevel != logging.InfoLevel:
		l.logger, l.flusher = logging.CreateLoggerWithLevel(options.LogLevel)
	default:
		l.logger = logging.GetDefaultLogger()
	}

	p, err := netpoll.OpenPoller(options.Backend)
	if err != nil {
		return nil, err
	}
	l.poller = p
	l.logger.Debugf("loop created with %s backend", p.Backend())
	return l, nil
}

// Backend reports which readiness facility the loop uses.
func (l *Loop) Backend() netpoll.Backend {
	return l.poller.Backend()
}

// Logger returns the logger shared by everything attached to the loop.
func (l *Loop) Logger() logging.Logger {
	return l.logger
}

// Options returns the options the loop was created with.
func (l *Loop) Options() Options {
	return *l.opts
}

// Run keeps running passes until Stop is called or no enabled watcher remains.
// A zero timeout lets each pass block until something happens.
func (l *Loop) Run(timeout time.Duration) error {
	if len(l.watchers) == 0 {
		return errorx.ErrNoWatchers
	}
	if l.running || l.dispatching {
		return errorx.ErrLoopRunning
	}
	l.running, l.stopped = true, false
	defer func() { l.running = false }()

	for !l.stopped && l.active > 0 {
		if err := l.RunOnce(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Stop makes Run return once the current pass is over.
func (l *Loop) Stop() error {
	if !l.running {
		return errorx.ErrLoopNotRunning
	}
	l.stopped = true
	return nil
}

// RunOnce performs a single poll-and-dispatch pass. A zero timeout blocks until
// at least one event or timer fires, a positive one bounds the wait.
func (l *Loop) RunOnce(timeout time.Duration) error {
	if timeout < 0 {
		return errorx.ErrInvalidTimeout
	}
	if timeout == 0 {
		return l.runOnce(-1)
	}
	return l.runOnce(timeout)
}

// RunNonblock performs a single pass without waiting for events.
func (l *Loop) RunNonblock() error {
	return l.runOnce(0)
}

func (l *Loop) runOnce(wait time.Duration) error {
	if l.closed {
		return errorx.ErrLoopClosed
	}
	if l.dispatching {
		return errorx.ErrLoopRunning
	}
	if l.active == 0 && wait < 0 {
		// Nothing could ever wake a blocking wait.
		return nil
	}

	if next, ok := l.timers.next(); ok {
		until := time.Until(next)
		if until < 0 {
			until = 0
		}
		if wait < 0 || until < wait {
			wait = until
		}
	}

	events, err := l.poller.Wait(wait)
	if err != nil {
		return err
	}
	l.stats.iterations.Add(1)

	for _, ev := range events {
		entry := l.fds[ev.FD]
		if entry == nil {
			continue
		}
		for _, w := range entry.watchers {
			pe := pendingEvent{
				w:        w.owner,
				readable: ev.Readable && w.interest&netpoll.Readable != 0,
				writable: ev.Writable && w.interest&netpoll.Writable != 0,
			}
			if pe.readable || pe.writable {
				l.pending = append(l.pending, pe)
			}
		}
	}
	l.collectTimers(time.Now())

	l.dispatching = true
	defer func() {
		l.dispatching = false
		for i := range l.pending {
			l.pending[i] = pendingEvent{}
		}
		l.pending = l.pending[:0]
	}()
	l.stats.events.Add(uint64(len(l.pending)))
	for i := 0; i < len(l.pending); i++ {
		if pe := l.pending[i]; pe.w != nil {
			pe.w.fire(pe)
		}
	}
	return nil
}

// collectTimers queues every due timer, repeating ones are rescheduled first
// and one-shot ones are disabled before their callback runs.
func (l *Loop) collectTimers(now time.Time) {
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := l.timers[0]
		if t.repeating {
			t.deadline = t.deadline.Add(t.interval)
			if !t.deadline.After(now) {
				t.deadline = now.Add(t.interval)
			}
			heap.Fix(&l.timers, 0)
		} else {
			heap.Pop(&l.timers)
			t.expire()
		}
		l.stats.timersFired.Add(1)
		l.pending = append(l.pending, pendingEvent{w: t})
	}
}

// Watchers returns the watchers currently attached to the loop.
func (l *Loop) Watchers() []Watcher {
	ws := make([]Watcher, 0, len(l.watchers))
	for w := range l.watchers {
		ws = append(ws, w)
	}
	return ws
}

// HasActiveWatchers reports whether any attached watcher is enabled.
func (l *Loop) HasActiveWatchers() bool {
	return l.active > 0
}

// Stats returns the loop's counters, it is safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	return Stats{
		Watchers:       l.stats.watchers.Load(),
		ActiveWatchers: l.stats.active.Load(),
		Iterations:     l.stats.iterations.Load(),
		Events:         l.stats.events.Load(),
		TimersFired:    l.stats.timersFired.Load(),
		ConnsOpened:    l.stats.connsOpened.Load(),
		ConnsClosed:    l.stats.connsClosed.Load(),
		BytesRead:      l.stats.bytesRead.Load(),
		BytesWritten:   l.stats.bytesWritten.Load(),
	}
}

// Close detaches every watcher and releases the backend. The loop can't be used afterwards.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	if l.dispatching {
		return errorx.ErrLoopRunning
	}
	for w := range l.watchers {
		if err := w.Detach(); err != nil {
			l.logger.Warnf("detaching watcher on close: %v", err)
		}
	}
	l.closed = true
	err := l.poller.Close()
	if l.flusher != nil {
		_ = l.flusher()
	}
	return err
}

func (l *Loop) track(r registrant) {
	l.watchers[r] = struct{}{}
	l.stats.watchers.Store(int64(len(l.watchers)))
	l.activate()
}

func (l *Loop) untrack(r registrant, wasEnabled bool) {
	delete(l.watchers, r)
	l.stats.watchers.Store(int64(len(l.watchers)))
	if wasEnabled {
		l.deactivate(r)
	} else {
		l.dropPending(r)
	}
}

func (l *Loop) activate() {
	l.active++
	l.stats.active.Store(int64(l.active))
}

func (l *Loop) deactivate(r registrant) {
	l.active--
	l.stats.active.Store(int64(l.active))
	if r != nil {
		l.dropPending(r)
	}
}

// dropPending clears the entries of r from the batch being dispatched so a
// watcher that was detached or disabled by an earlier callback stays silent.
func (l *Loop) dropPending(r registrant) {
	if !l.dispatching {
		return
	}
	for i := range l.pending {
		if l.pending[i].w == r {
			l.pending[i] = pendingEvent{}
		}
	}
}

func (l *Loop) addIO(w *IOWatcher) error {
	entry := l.fds[w.fd]
	if entry == nil {
		entry = new(fdEntry)
		l.fds[w.fd] = entry
	}
	entry.watchers = append(entry.watchers, w)
	if err := l.syncInterest(w.fd, entry); err != nil {
		entry.watchers = entry.watchers[:len(entry.watchers)-1]
		if len(entry.watchers) == 0 {
			delete(l.fds, w.fd)
		}
		return err
	}
	return nil
}

func (l *Loop) removeIO(w *IOWatcher) error {
	entry := l.fds[w.fd]
	if entry == nil {
		return nil
	}
	for i, iw := range entry.watchers {
		if iw == w {
			entry.watchers = append(entry.watchers[:i], entry.watchers[i+1:]...)
			break
		}
	}
	return l.syncInterest(w.fd, entry)
}

// syncInterest pushes the union of the watchers' interests to the backend.
func (l *Loop) syncInterest(fd int, entry *fdEntry) (err error) {
	var in netpoll.Interest
	for _, w := range entry.watchers {
		in |= w.interest
	}
	switch {
	case in == entry.interest:
	case entry.interest == netpoll.None:
		err = l.poller.Add(fd, in)
	case in == netpoll.None:
		err = l.poller.Delete(fd)
		// The descriptor may already be gone, the kernel dropped it from the set then.
		if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
			err = nil
		}
	default:
		err = l.poller.Modify(fd, in)
	}
	if err != nil {
		return err
	}
	entry.interest = in
	if len(entry.watchers) == 0 {
		delete(l.fds, fd)
	}
	return nil
}

func (l *Loop) addTimer(t *TimerWatcher) {
	t.deadline = time.Now().Add(t.interval)
	heap.Push(&l.timers, t)
}

func (l *Loop) removeTimer(t *TimerWatcher) {
	if t.index >= 0 && t.index < len(l.timers) && l.timers[t.index] == t {
		heap.Remove(&l.timers, t.index)
	}
}

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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

/*
Package netpoll provides a level-triggered readiness interface over the
event notification facility of the operating system:
  - epoll on Linux - https://man7.org/linux/man-pages/man7/epoll.7.html
  - kqueue on *BSD/Darwin - https://man.freebsd.org/cgi/man.cgi?kqueue
  - poll(2) everywhere, selectable for portability or debugging.

A Poller is owned by a single goroutine. Descriptors are registered with an
Interest and Wait reports the descriptors that are ready:

	poller, err := netpoll.OpenPoller(netpoll.BackendDefault)
	if err != nil {
		// handle error
	}
	defer poller.Close()

	if err = poller.Add(fd, netpoll.Readable); err != nil {
		// handle error
	}

	events, err := poller.Wait(time.Second)
	for _, ev := range events {
		if ev.Readable {
			// read from ev.FD
		}
	}
*/
package netpoll

import (
	"fmt"
	"strings"
	"time"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

const (
	// InitPollEventsCap represents the initial capacity of poller event-list.
	InitPollEventsCap = 128
	// MaxPollEventsCap is the maximum limitation of events that the poller can process.
	MaxPollEventsCap = 1024
	// MinPollEventsCap is the minimum limitation of events that the poller can process.
	MinPollEventsCap = 32
)

// Interest is the set of readiness directions a descriptor is registered for.
type Interest uint8

const (
	// Readable asks to be notified when the descriptor can be read without blocking.
	Readable Interest = 1 << iota
	// Writable asks to be notified when the descriptor can be written without blocking.
	Writable
)

// None is the empty interest set.
const None Interest = 0

// Has reports whether in contains every direction of other.
func (in Interest) Has(other Interest) bool {
	return in&other == other && other != None
}

func (in Interest) String() string {
	switch in {
	case None:
		return "none"
	case Readable:
		return "r"
	case Writable:
		return "w"
	case Readable | Writable:
		return "rw"
	}
	return fmt.Sprintf("Interest(%d)", uint8(in))
}

// Event is one readiness notification. Error and hang-up conditions are
// reported as both readable and writable so that whichever side is waiting
// observes the failure on its next syscall.
type Event struct {
	FD       int
	Readable bool
	Writable bool
}

// Backend names the notification facility behind a Poller.
type Backend int

const (
	// BackendDefault picks epoll on Linux and kqueue on BSD/Darwin.
	BackendDefault Backend = iota
	// BackendEpoll is Linux epoll(7).
	BackendEpoll
	// BackendKqueue is BSD kqueue(2).
	BackendKqueue
	// BackendPoll is POSIX poll(2).
	BackendPoll
)

func (b Backend) String() string {
	switch b {
	case BackendDefault:
		return "default"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	case BackendPoll:
		return "poll"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend converts a backend name as printed by Backend.String.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return BackendDefault, nil
	case "epoll":
		return BackendEpoll, nil
	case "kqueue":
		return BackendKqueue, nil
	case "poll":
		return BackendPoll, nil
	}
	return BackendDefault, fmt.Errorf("%w: %q", errorx.ErrUnsupportedBackend, name)
}

// Poller monitors file descriptors for readiness.
type Poller interface {
	// Add registers fd with the given interest.
	Add(fd int, in Interest) error
	// Modify replaces the interest of a registered fd.
	Modify(fd int, in Interest) error
	// Delete unregisters fd.
	Delete(fd int) error
	// Wait blocks until at least one registered descriptor is ready or the
	// timeout elapses. A negative timeout blocks indefinitely and zero polls
	// without blocking. The returned slice is only valid until the next call.
	Wait(timeout time.Duration) ([]Event, error)
	// Close releases the OS resources held by the poller.
	Close() error
	// Backend reports which facility the poller uses.
	Backend() Backend
}

// OpenPoller instantiates a poller of the given backend.
func OpenPoller(b Backend) (Poller, error) {
	switch b {
	case BackendDefault:
		return openDefault()
	case BackendEpoll:
		return openEpoll()
	case BackendKqueue:
		return openKqueue()
	case BackendPoll:
		return openPoll()
	}
	return nil, errorx.ErrUnsupportedBackend
}

// durationToMsec rounds positive sub-millisecond timeouts up so they never degrade into a busy poll.
func durationToMsec(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout == 0 {
		return 0
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

type eventList[T any] struct {
	size   int
	events []T
}

func newEventList[T any](size int) *eventList[T] {
	return &eventList[T]{size, make([]T, size)}
}

func (el *eventList[T]) expand() {
	if newSize := el.size << 1; newSize <= MaxPollEventsCap {
		el.size = newSize
		el.events = make([]T, newSize)
	}
}

func (el *eventList[T]) shrink() {
	if newSize := el.size >> 1; newSize >= MinPollEventsCap {
		el.size = newSize
		el.events = make([]T, newSize)
	}
}

// adjust resizes the list after a wait that returned n events.
func (el *eventList[T]) adjust(n int) {
	if n == el.size {
		el.expand()
	} else if n < el.size>>1 {
		el.shrink()
	}
}

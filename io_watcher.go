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
	"github.com/panjf2000/ioloop/pkg/netpoll"
)

// IOHandler receives the readiness of the descriptor of an IOWatcher.
type IOHandler interface {
	// OnReadable fires when the descriptor can be read without blocking.
	OnReadable(w *IOWatcher)
	// OnWritable fires when the descriptor can be written without blocking.
	OnWritable(w *IOWatcher)
}

// BuiltinIOHandler is a no-op IOHandler meant to be embedded.
type BuiltinIOHandler struct{}

// OnReadable fires when the descriptor can be read without blocking.
func (BuiltinIOHandler) OnReadable(*IOWatcher) {}

// OnWritable fires when the descriptor can be written without blocking.
func (BuiltinIOHandler) OnWritable(*IOWatcher) {}

// IOWatcher watches a non-blocking descriptor for level-triggered readiness.
// The watcher never owns the descriptor, closing it is up to the caller and
// must only happen after Detach.
type IOWatcher struct {
	watcher
	fd       int
	interest netpoll.Interest
	handler  IOHandler
	owner    registrant // receives the events, the watcher itself unless embedded in another watcher
}

// NewIOWatcher creates a watcher for fd that reports the directions in interest to h.
func NewIOWatcher(fd int, interest netpoll.Interest, h IOHandler) *IOWatcher {
	w := &IOWatcher{fd: fd, interest: interest, handler: h}
	w.self, w.owner = w, w
	return w
}

// newEmbeddedIOWatcher creates the readable registration of a watcher that
// is driven by a descriptor but isn't an IOWatcher itself.
func newEmbeddedIOWatcher(fd int, owner registrant) *IOWatcher {
	w := &IOWatcher{fd: fd, interest: netpoll.Readable, owner: owner}
	w.self = w
	return w
}

// startEmbedded registers an embedded watcher on l without tracking it as a watcher of its own.
func (w *IOWatcher) startEmbedded(l *Loop) error {
	w.loop = l
	if err := l.addIO(w); err != nil {
		w.loop = nil
		return err
	}
	return nil
}

func (w *IOWatcher) stopEmbedded() error {
	if w.loop == nil {
		return nil
	}
	err := w.loop.removeIO(w)
	w.loop = nil
	return err
}

// FD returns the watched descriptor.
func (w *IOWatcher) FD() int {
	return w.fd
}

// Interest returns the watched directions.
func (w *IOWatcher) Interest() netpoll.Interest {
	return w.interest
}

func (w *IOWatcher) start() error {
	return w.loop.addIO(w)
}

func (w *IOWatcher) stop() error {
	return w.loop.removeIO(w)
}

func (w *IOWatcher) fire(ev pendingEvent) {
	if ev.readable {
		w.handler.OnReadable(w)
	}
	// The read callback may have detached or disabled the watcher.
	if ev.writable && w.enabled {
		w.handler.OnWritable(w)
	}
}

// ioFuncs adapts plain functions to IOHandler for the watchers owned by connections.
type ioFuncs struct {
	readable func()
	writable func()
}

func (f ioFuncs) OnReadable(*IOWatcher) {
	if f.readable != nil {
		f.readable()
	}
}

func (f ioFuncs) OnWritable(*IOWatcher) {
	if f.writable != nil {
		f.writable()
	}
}

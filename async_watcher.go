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
	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

// AsyncHandler receives the signals of an AsyncWatcher on the loop goroutine.
type AsyncHandler interface {
	OnSignal(w *AsyncWatcher)
}

// AsyncFunc adapts a function to AsyncHandler.
type AsyncFunc func(w *AsyncWatcher)

// OnSignal calls f(w).
func (f AsyncFunc) OnSignal(w *AsyncWatcher) {
	f(w)
}

// AsyncWatcher lets other goroutines wake a loop. Every successful Signal
// writes one byte to a pipe watched by the loop and every byte read fires
// OnSignal once, wake-ups finding the pipe empty are ignored.
type AsyncWatcher struct {
	watcher
	pipe    *wakePipe
	io      *IOWatcher
	handler AsyncHandler
}

// NewAsyncWatcher creates an async watcher with its own wake pipe.
func NewAsyncWatcher(h AsyncHandler) (*AsyncWatcher, error) {
	p, err := newWakePipe()
	if err != nil {
		return nil, err
	}
	w := &AsyncWatcher{pipe: p, handler: h}
	w.self = w
	w.io = newEmbeddedIOWatcher(p.rfd, w)
	return w, nil
}

// Signal wakes the loop the watcher is attached to. It is the only method of
// this package that is safe to call from any goroutine.
// When the loop lags so far behind that the pipe is full, the signal is lost
// and ErrSignalDropped is returned.
func (w *AsyncWatcher) Signal() error {
	return w.pipe.signal()
}

// Close detaches the watcher and releases its pipe.
func (w *AsyncWatcher) Close() error {
	if err := w.Detach(); err != nil {
		return err
	}
	return w.pipe.close()
}

func (w *AsyncWatcher) start() error {
	if w.pipe.closed {
		return errorx.ErrWatcherClosed
	}
	return w.io.startEmbedded(w.loop)
}

func (w *AsyncWatcher) stop() error {
	return w.io.stopEmbedded()
}

func (w *AsyncWatcher) fire(pendingEvent) {
	if w.pipe.drainOne() {
		w.handler.OnSignal(w)
	}
}

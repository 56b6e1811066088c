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

// Watcher is anything that can be attached to a Loop to receive events.
//
// A watcher belongs to at most one loop. Attaching marks it enabled, Disable
// suspends delivery without leaving the loop and Enable resumes it. Detach is
// idempotent. None of these methods may be called from any goroutine other
// than the one running the loop.
type Watcher interface {
	// Attach registers the watcher with l, detaching it from its previous loop first.
	Attach(l *Loop) error
	// Detach unregisters the watcher, it is a no-op when not attached.
	Detach() error
	// Enable resumes event delivery.
	Enable() error
	// Disable suspends event delivery.
	Disable() error
	// IsAttached reports whether the watcher belongs to a loop.
	IsAttached() bool
	// IsEnabled reports whether events are being delivered.
	IsEnabled() bool
	// Loop returns the loop the watcher is attached to, or nil.
	Loop() *Loop
}

// registrant is implemented by the watchers that own a backend registration.
type registrant interface {
	Watcher

	// start registers with the backend of the current loop.
	start() error
	// stop removes the backend registration.
	stop() error
	// fire delivers a pending event.
	fire(ev pendingEvent)
}

// watcher carries the lifecycle bookkeeping shared by every registrant.
type watcher struct {
	self    registrant
	loop    *Loop
	enabled bool
}

func (w *watcher) Attach(l *Loop) error {
	if l == nil {
		return errorx.ErrNilLoop
	}
	if l.closed {
		return errorx.ErrLoopClosed
	}
	if w.loop != nil {
		if err := w.Detach(); err != nil {
			l.logger.Warnf("detaching watcher before re-attach: %v", err)
		}
	}
	w.loop = l
	if err := w.self.start(); err != nil {
		w.loop = nil
		return err
	}
	w.enabled = true
	l.track(w.self)
	return nil
}

func (w *watcher) Detach() error {
	l := w.loop
	if l == nil {
		return nil
	}
	var err error
	wasEnabled := w.enabled
	if wasEnabled {
		err = w.self.stop()
		w.enabled = false
	}
	l.untrack(w.self, wasEnabled)
	w.loop = nil
	return err
}

func (w *watcher) Enable() error {
	if w.loop == nil {
		return errorx.ErrWatcherNotAttached
	}
	if w.enabled {
		return errorx.ErrWatcherEnabled
	}
	if err := w.self.start(); err != nil {
		return err
	}
	w.enabled = true
	w.loop.activate()
	return nil
}

func (w *watcher) Disable() error {
	if w.loop == nil {
		return errorx.ErrWatcherNotAttached
	}
	if !w.enabled {
		return errorx.ErrWatcherDisabled
	}
	w.enabled = false
	w.loop.deactivate(w.self)
	return w.self.stop()
}

func (w *watcher) IsAttached() bool {
	return w.loop != nil
}

func (w *watcher) IsEnabled() bool {
	return w.enabled
}

func (w *watcher) Loop() *Loop {
	return w.loop
}

// expire marks a fired one-shot watcher disabled while leaving it attached.
func (w *watcher) expire() {
	if w.enabled {
		w.enabled = false
		w.loop.deactivate(nil)
	}
}

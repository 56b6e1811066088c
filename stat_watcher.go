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
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

// StatHandler is notified when the attributes of a watched path change.
// prev or cur is nil when the path didn't or doesn't exist.
type StatHandler interface {
	OnChange(w *StatWatcher, prev, cur os.FileInfo)
}

// StatFunc adapts a function to StatHandler.
type StatFunc func(w *StatWatcher, prev, cur os.FileInfo)

// OnChange calls f(w, prev, cur).
func (f StatFunc) OnChange(w *StatWatcher, prev, cur os.FileInfo) {
	f(w, prev, cur)
}

// StatWatcher watches a file system path. Notifications come from fsnotify
// on the parent directory, so creation, removal and replacement of the path
// are observed too. They are relayed to the loop through a wake pipe and
// coalesced, OnChange runs on the loop goroutine only when a fresh stat
// differs from the previous one.
type StatWatcher struct {
	watcher
	path    string
	handler StatHandler
	notify  *fsnotify.Watcher
	pipe    *wakePipe
	io      *IOWatcher
	prev    os.FileInfo
	done    chan struct{}
	errs    chan error
}

// NewStatWatcher starts watching path, which doesn't have to exist yet.
func NewStatWatcher(path string, h StatHandler) (*StatWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = notify.Add(filepath.Dir(abs)); err != nil {
		_ = notify.Close()
		return nil, err
	}
	p, err := newWakePipe()
	if err != nil {
		_ = notify.Close()
		return nil, err
	}

	w := &StatWatcher{
		path:    abs,
		handler: h,
		notify:  notify,
		pipe:    p,
		done:    make(chan struct{}),
		errs:    make(chan error, 1),
	}
	w.self = w
	w.io = newEmbeddedIOWatcher(p.rfd, w)
	w.prev = w.stat()
	go w.relay()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *StatWatcher) Path() string {
	return w.path
}

func (w *StatWatcher) relay() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == w.path {
				// A dropped signal means a wake-up is already pending.
				_ = w.pipe.signal()
			}
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
			_ = w.pipe.signal()
		}
	}
}

func (w *StatWatcher) stat() os.FileInfo {
	fi, err := os.Stat(w.path)
	if err != nil {
		return nil
	}
	return fi
}

func changed(prev, cur os.FileInfo) bool {
	if prev == nil || cur == nil {
		return prev != cur
	}
	return !os.SameFile(prev, cur) ||
		prev.Size() != cur.Size() ||
		prev.Mode() != cur.Mode() ||
		!prev.ModTime().Equal(cur.ModTime())
}

// Close stops watching and releases the notification resources.
func (w *StatWatcher) Close() error {
	derr := w.Detach()
	err := w.notify.Close()
	<-w.done
	if perr := w.pipe.close(); err == nil {
		err = perr
	}
	if derr != nil {
		return derr
	}
	return err
}

func (w *StatWatcher) start() error {
	if w.pipe.closed {
		return errorx.ErrWatcherClosed
	}
	// Changes that happened while disabled are reported against the last seen state.
	return w.io.startEmbedded(w.loop)
}

func (w *StatWatcher) stop() error {
	return w.io.stopEmbedded()
}

func (w *StatWatcher) fire(pendingEvent) {
	w.pipe.drainAll()
	select {
	case err := <-w.errs:
		if !errors.Is(err, fsnotify.ErrEventOverflow) {
			w.loop.logger.Warnf("stat watcher on %s: %v", w.path, err)
		}
	default:
	}
	cur := w.stat()
	if !changed(w.prev, cur) {
		return
	}
	prev := w.prev
	w.prev = cur
	w.handler.OnChange(w, prev, cur)
}

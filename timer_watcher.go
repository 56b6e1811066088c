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
	"time"
)

// TimerHandler receives the expirations of a TimerWatcher.
type TimerHandler interface {
	OnTimer(t *TimerWatcher)
}

// TimerFunc adapts a function to TimerHandler.
type TimerFunc func(t *TimerWatcher)

// OnTimer calls f(t).
func (f TimerFunc) OnTimer(t *TimerWatcher) {
	f(t)
}

// TimerWatcher fires after interval has elapsed since it was attached or
// enabled, and then every interval when repeating. A one-shot timer is
// disabled, but stays attached, by the time its callback runs.
type TimerWatcher struct {
	watcher
	interval  time.Duration
	repeating bool
	handler   TimerHandler

	deadline time.Time
	index    int
}

// NewTimerWatcher creates a timer reporting to h.
func NewTimerWatcher(interval time.Duration, repeating bool, h TimerHandler) *TimerWatcher {
	t := &TimerWatcher{interval: interval, repeating: repeating, handler: h, index: -1}
	t.self = t
	return t
}

// Interval returns the period of the timer.
func (t *TimerWatcher) Interval() time.Duration {
	return t.interval
}

// Repeating reports whether the timer re-arms itself after firing.
func (t *TimerWatcher) Repeating() bool {
	return t.repeating
}

// Reset restarts the countdown of an enabled timer from now.
func (t *TimerWatcher) Reset() {
	if t.loop == nil || !t.enabled {
		return
	}
	t.loop.removeTimer(t)
	t.loop.addTimer(t)
}

func (t *TimerWatcher) start() error {
	t.loop.addTimer(t)
	return nil
}

func (t *TimerWatcher) stop() error {
	t.loop.removeTimer(t)
	return nil
}

func (t *TimerWatcher) fire(pendingEvent) {
	t.handler.OnTimer(t)
}

// timerHeap is a min-heap of timers ordered by deadline.
type timerHeap []*TimerWatcher

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*TimerWatcher)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h timerHeap) next() (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].deadline, true
}

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

// Package metrics exports the counters of ioloop loops to Prometheus.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/panjf2000/ioloop"
)

// StatsSource is implemented by *ioloop.Loop.
type StatsSource interface {
	Stats() ioloop.Stats
}

type metric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(ioloop.Stats) float64
}

// Collector is a prometheus.Collector reporting the stats of a set of named
// loops. Loops can be added and removed while it is registered.
type Collector struct {
	mu      sync.RWMutex
	loops   map[string]StatsSource
	metrics []metric
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	labels := []string{"loop"}
	gauge := func(name, help string, fn func(ioloop.Stats) float64) metric {
		return metric{prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil), prometheus.GaugeValue, fn}
	}
	counter := func(name, help string, fn func(ioloop.Stats) float64) metric {
		return metric{prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil), prometheus.CounterValue, fn}
	}
	return &Collector{
		loops: make(map[string]StatsSource),
		metrics: []metric{
			gauge("watchers", "Watchers attached to the loop.",
				func(s ioloop.Stats) float64 { return float64(s.Watchers) }),
			gauge("active_watchers", "Attached watchers that are enabled.",
				func(s ioloop.Stats) float64 { return float64(s.ActiveWatchers) }),
			counter("iterations_total", "Poll passes run by the loop.",
				func(s ioloop.Stats) float64 { return float64(s.Iterations) }),
			counter("events_total", "Events dispatched to watchers.",
				func(s ioloop.Stats) float64 { return float64(s.Events) }),
			counter("timers_fired_total", "Timer expirations.",
				func(s ioloop.Stats) float64 { return float64(s.TimersFired) }),
			counter("connections_opened_total", "Connections that reached the open state.",
				func(s ioloop.Stats) float64 { return float64(s.ConnsOpened) }),
			counter("connections_closed_total", "Open connections that were closed.",
				func(s ioloop.Stats) float64 { return float64(s.ConnsClosed) }),
			counter("read_bytes_total", "Bytes read from connections.",
				func(s ioloop.Stats) float64 { return float64(s.BytesRead) }),
			counter("written_bytes_total", "Bytes written to connections.",
				func(s ioloop.Stats) float64 { return float64(s.BytesWritten) }),
		},
	}
}

// Add starts reporting l under name, replacing any loop of the same name.
func (c *Collector) Add(name string, l StatsSource) {
	c.mu.Lock()
	c.loops[name] = l
	c.mu.Unlock()
}

// Remove stops reporting the loop called name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.loops, name)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.loops))
	for name := range c.loops {
		names = append(names, name)
	}
	sort.Strings(names)
	stats := make([]ioloop.Stats, len(names))
	for i, name := range names {
		stats[i] = c.loops[name].Stats()
	}
	c.mu.RUnlock()

	for i, name := range names {
		for _, m := range c.metrics {
			ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(stats[i]), name)
		}
	}
}

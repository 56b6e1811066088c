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

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panjf2000/ioloop"
	"github.com/panjf2000/ioloop/pkg/logging"
)

type fixedStats ioloop.Stats

func (s fixedStats) Stats() ioloop.Stats { return ioloop.Stats(s) }

func TestCollector(t *testing.T) {
	c := NewCollector("ioloop")
	c.Add("a", fixedStats{Watchers: 3, ActiveWatchers: 2, ConnsOpened: 5, ConnsClosed: 4, BytesRead: 1024})
	c.Add("b", fixedStats{ConnsOpened: 1})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP ioloop_connections_opened_total Connections that reached the open state.
# TYPE ioloop_connections_opened_total counter
ioloop_connections_opened_total{loop="a"} 5
ioloop_connections_opened_total{loop="b"} 1
# HELP ioloop_watchers Watchers attached to the loop.
# TYPE ioloop_watchers gauge
ioloop_watchers{loop="a"} 3
ioloop_watchers{loop="b"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ioloop_connections_opened_total", "ioloop_watchers"))
	assert.Equal(t, 18, testutil.CollectAndCount(c))

	c.Remove("b")
	assert.Equal(t, 9, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "ioloop_read_bytes_total"))
}

func TestCollectorWithLoop(t *testing.T) {
	l, err := ioloop.NewLoop(ioloop.WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck

	timer := ioloop.NewTimerWatcher(0, false, ioloop.TimerFunc(func(*ioloop.TimerWatcher) {}))
	require.NoError(t, timer.Attach(l))
	require.NoError(t, l.Run(0))

	c := NewCollector("test")
	c.Add("main", l)
	expected := `
# HELP test_timers_fired_total Timer expirations.
# TYPE test_timers_fired_total counter
test_timers_fired_total{loop="main"} 1
# HELP test_watchers Watchers attached to the loop.
# TYPE test_watchers gauge
test_watchers{loop="main"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"test_timers_fired_total", "test_watchers"))
}

// Copyright (c) 2019 Andy Pan
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

package goroutine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPools(t *testing.T) {
	def := Default()
	defer def.Release()
	require.Equal(t, DefaultAntsPoolSize, def.Cap())

	p, err := NewBlocking(2)
	require.NoError(t, err)
	defer p.Release()

	var (
		wg  sync.WaitGroup
		sum int32
	)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		n := int32(i)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&sum, n)
		}))
	}
	wg.Wait()
	require.EqualValues(t, 55, sum)
}

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

package bytebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	b := Get()
	require.NotNil(t, b)
	assert.Zero(t, b.Len())
	_, _ = b.WriteString("GET / HTTP/1.1\r\n")
	assert.Equal(t, 16, b.Len())
	Put(b)

	assert.NotPanics(t, func() { Put(nil) })

	b = Get()
	assert.Zero(t, b.Len())
	Put(b)
}

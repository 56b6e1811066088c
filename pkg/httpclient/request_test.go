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

package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/pool/bytebuffer"
)

func encodeString(t *testing.T, r *request, host string, port int) string {
	t.Helper()
	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)
	require.NoError(t, r.encode(buf, host, port))
	return buf.String()
}

func TestEncodeDefaults(t *testing.T) {
	r := &request{method: "get", path: "/"}
	assert.Equal(t, "GET / HTTP/1.1\r\n"+
		"Host: example.com\r\n"+
		"Content-Length: 0\r\n"+
		"User-Agent: "+UserAgent+"\r\n"+
		"Connection: close\r\n"+
		"\r\n", encodeString(t, r, "example.com", 80))
}

func TestEncodeOptions(t *testing.T) {
	r := &request{method: "POST", path: "/search"}
	for _, opt := range []RequestOption{
		WithHead(map[string]string{"content-type": "text/plain", "connection": "keep-alive"}),
		WithHeader("x-request-id", "42"),
		WithQuery(map[string]string{"q": "foo bar", "lang": "en&fr"}),
		WithCookies(map[string]string{"session": "a b"}),
		WithBody([]byte("hello")),
	} {
		opt(r)
	}
	assert.Equal(t, "POST /search?lang=en%26fr&q=foo+bar HTTP/1.1\r\n"+
		"Connection: keep-alive\r\n"+
		"Content-Type: text/plain\r\n"+
		"X-Request-Id: 42\r\n"+
		"Host: example.com:8080\r\n"+
		"Content-Length: 5\r\n"+
		"User-Agent: "+UserAgent+"\r\n"+
		"Cookie: session=a+b\r\n"+
		"\r\n"+
		"hello", encodeString(t, r, "example.com", 8080))
}

func TestEncodeRejects(t *testing.T) {
	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)

	assert.ErrorIs(t, (&request{method: "GET", path: "index.html"}).encode(buf, "h", 80), errorx.ErrInvalidPath)
	assert.ErrorIs(t, (&request{method: "GET", path: "/a b"}).encode(buf, "h", 80), errorx.ErrInvalidPath)
	assert.ErrorIs(t, (&request{method: "GE T", path: "/"}).encode(buf, "h", 80), errorx.ErrInvalidMethod)
	assert.ErrorIs(t, (&request{method: "", path: "/"}).encode(buf, "h", 80), errorx.ErrInvalidMethod)

	r := &request{method: "GET", path: "/"}
	WithHeader("X-Bad", "line\r\nbreak")(r)
	assert.ErrorIs(t, r.encode(buf, "h", 80), errorx.ErrInvalidHeader)
}

func TestHostHeader(t *testing.T) {
	assert.Equal(t, "example.com", hostHeader("example.com", 80))
	assert.Equal(t, "example.com:8080", hostHeader("example.com", 8080))
	assert.Equal(t, "[::1]", hostHeader("::1", 80))
	assert.Equal(t, "[::1]:81", hostHeader("::1", 81))
}

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

type recorder struct {
	header   *ResponseHeader
	body     strings.Builder
	complete int
	errs     []error
}

func (r *recorder) responseHeader(h *ResponseHeader) { r.header = h }
func (r *recorder) bodyData(p []byte)               { r.body.Write(p) }
func (r *recorder) requestComplete()                { r.complete++ }
func (r *recorder) decodeError(err error)           { r.errs = append(r.errs, err) }

func always() bool { return true }

func feed(d *decoder, pieces ...string) {
	for _, p := range pieces {
		d.write([]byte(p))
		d.decode(always)
	}
}

func TestDecoderChunked(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d,
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n",
		"3\r\nfoo\r\n",
		"3\r\nbar\r\n",
		"0\r\n\r\n",
	)
	require.NotNil(t, rec.header)
	assert.Equal(t, 200, rec.header.StatusCode)
	assert.True(t, rec.header.Chunked())
	assert.Equal(t, "foobar", rec.body.String())
	assert.Equal(t, 1, rec.complete)
	assert.Empty(t, rec.errs)
	assert.True(t, d.finished())
}

func TestDecoderByteByByte(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nX-Test: 1\r\n\r\n" +
		"3;ext=1\r\nfoo\r\na\r\n0123456789\r\n0\r\n\r\n"
	rec := new(recorder)
	d := newDecoder(rec)
	for i := 0; i < len(resp); i++ {
		feed(d, resp[i:i+1])
	}
	assert.Equal(t, "1", rec.header.Get("x-test"))
	assert.Equal(t, "foo0123456789", rec.body.String())
	assert.Equal(t, 1, rec.complete)
	assert.Empty(t, rec.errs)
}

func TestDecoderContentLength(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d, "HTTP/1.0 404 Not Found\r\nContent-Length: 11\r\n\r\nhello", " world")
	assert.Equal(t, "HTTP/1.0", rec.header.Proto)
	assert.Equal(t, "404 Not Found", rec.header.Status())
	assert.EqualValues(t, 11, rec.header.ContentLength())
	assert.Equal(t, "hello world", rec.body.String())
	assert.Equal(t, 1, rec.complete)
	assert.Empty(t, rec.errs)
}

func TestDecoderEmptyBody(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d, "HTTP/1.1 204 No Content\r\n\r\n")
	assert.Equal(t, 1, rec.complete)
	assert.Zero(t, rec.body.Len())

	rec = new(recorder)
	d = newDecoder(rec)
	d.noBody = true
	feed(d, "HTTP/1.1 200 OK\r\nContent-Length: 42\r\n\r\n")
	assert.Equal(t, 1, rec.complete)
	assert.Empty(t, rec.errs)
}

func TestDecoderBodyUntilClose(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d, "HTTP/1.1 200 OK\r\n\r\nstreamed ", "until close")
	assert.Zero(t, rec.complete)
	d.closed()
	assert.Equal(t, "streamed until close", rec.body.String())
	assert.Equal(t, 1, rec.complete)
	assert.Empty(t, rec.errs)

	d.closed()
	assert.Equal(t, 1, rec.complete)
}

func TestDecoderInvalid(t *testing.T) {
	cases := []struct {
		name   string
		pieces []string
		body   string
	}{
		{"status line", []string{"SMTP 220 hello\r\n\r\n"}, ""},
		{"status code", []string{"HTTP/1.1 2x0 OK\r\n\r\n"}, ""},
		{"header line", []string{"HTTP/1.1 200 OK\r\nno colon here\r\n\r\n"}, ""},
		{"content length", []string{"HTTP/1.1 200 OK\r\nContent-Length: -3\r\n\r\n"}, ""},
		{"conflicting lengths", []string{"HTTP/1.1 200 OK\r\nContent-Length: 3\r\nContent-Length: 4\r\n\r\n"}, ""},
		{"garbage after body", []string{"HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nfoobar"}, "foo"},
		{"chunk size", []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"}, ""},
		{"chunk footer", []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfooXX"}, "foo"},
		{"response footer", []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\nXX"}, ""},
		{"garbage after chunks", []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\nmore"}, ""},
		{"bytes after finished", []string{"HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", "late"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := new(recorder)
			d := newDecoder(rec)
			feed(d, tc.pieces...)
			require.Len(t, rec.errs, 1)
			assert.ErrorIs(t, rec.errs[0], errorx.ErrInvalidResponse)
			assert.Equal(t, tc.body, rec.body.String())
			assert.Equal(t, stateInvalid, d.state)

			// Invalid is absorbing.
			feed(d, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
			d.closed()
			assert.Len(t, rec.errs, 1)
		})
	}
}

func TestDecoderHeaderTooLarge(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d, "HTTP/1.1 200 OK\r\nX-Big: "+strings.Repeat("a", MaxHeaderBytes))
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], errorx.ErrHeaderTooLarge)
}

func TestDecoderIncomplete(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	feed(d, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc")
	d.closed()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], errorx.ErrIncompleteResponse)
	assert.Equal(t, "abc", rec.body.String())
	assert.Zero(t, rec.complete)
}

func TestDecoderPaused(t *testing.T) {
	rec := new(recorder)
	d := newDecoder(rec)
	active := false
	d.write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nfoo"))
	d.decode(func() bool { return active })
	assert.Nil(t, rec.header)

	active = true
	d.decode(func() bool { return active })
	assert.Equal(t, "foo", rec.body.String())
	assert.Equal(t, 1, rec.complete)
}

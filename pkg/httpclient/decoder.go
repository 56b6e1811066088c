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
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/pool/bytebuffer"
)

const (
	// MaxHeaderBytes bounds the status line and header block of a response.
	MaxHeaderBytes = 64 * 1024
	// maxChunkLine bounds a chunk-size line, extensions included.
	maxChunkLine = 4096
)

var crlf = []byte("\r\n")

type decodeState int

const (
	stateResponseHeader decodeState = iota
	stateChunkHeader
	stateChunkBody
	stateChunkFooter
	stateResponseFooter
	stateBody
	stateFinished
	stateInvalid
)

func (s decodeState) String() string {
	switch s {
	case stateResponseHeader:
		return "response header"
	case stateChunkHeader:
		return "chunk header"
	case stateChunkBody:
		return "chunk body"
	case stateChunkFooter:
		return "chunk footer"
	case stateResponseFooter:
		return "response footer"
	case stateBody:
		return "body"
	case stateFinished:
		return "finished"
	case stateInvalid:
		return "invalid"
	}
	return "unknown"
}

// decodeEvents receives what a decoder makes of the bytes it is fed.
type decodeEvents interface {
	responseHeader(h *ResponseHeader)
	bodyData(p []byte)
	requestComplete()
	decodeError(err error)
}

// decoder is an incremental HTTP/1.x response parser. Bytes are appended
// with write and consumed by decode as far as they go, a header split
// across reads simply waits for the rest. The state is updated before each
// event so events may close the connection and re-enter through closed.
type decoder struct {
	ev        decodeEvents
	state     decodeState
	buf       *bytebuffer.ByteBuffer
	off       int
	remaining int64 // bytes left in the body or chunk, -1 reads until close
	header    *ResponseHeader
	noBody    bool // the response to a HEAD request never has a body
}

func newDecoder(ev decodeEvents) *decoder {
	return &decoder{ev: ev}
}

func (d *decoder) buffered() []byte {
	if d.buf == nil {
		return nil
	}
	return d.buf.B[d.off:]
}

// consume returns the next n buffered bytes, they stay valid until the next write.
func (d *decoder) consume(n int) []byte {
	p := d.buf.B[d.off : d.off+n]
	d.off += n
	return p
}

// write buffers p, bytes arriving after the end of the response are an error.
func (d *decoder) write(p []byte) {
	switch d.state {
	case stateInvalid:
		return
	case stateFinished:
		if len(p) > 0 {
			d.invalid(fmt.Errorf("%w: %d bytes after the end of the response", errorx.ErrInvalidResponse, len(p)))
		}
		return
	}
	if d.buf == nil {
		d.buf = bytebuffer.Get()
	}
	if d.off > 0 {
		n := copy(d.buf.B, d.buf.B[d.off:])
		d.buf.B = d.buf.B[:n]
		d.off = 0
	}
	_, _ = d.buf.Write(p)
}

// decode advances the state machine while active reports true and there is
// something to do.
func (d *decoder) decode(active func() bool) {
	for active() && d.step() {
	}
}

func (d *decoder) step() bool {
	switch d.state {
	case stateResponseHeader:
		return d.parseResponseHeader()
	case stateChunkHeader:
		return d.parseChunkHeader()
	case stateChunkBody:
		return d.chunkBody()
	case stateChunkFooter:
		return d.chunkFooter()
	case stateResponseFooter:
		return d.responseFooter()
	case stateBody:
		return d.body()
	}
	return false
}

func (d *decoder) parseResponseHeader() bool {
	data := d.buffered()
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		if len(data) > MaxHeaderBytes {
			d.invalid(errorx.ErrHeaderTooLarge)
		}
		return false
	}
	if end+4 > MaxHeaderBytes {
		d.invalid(errorx.ErrHeaderTooLarge)
		return false
	}
	block := d.consume(end + 4)

	lineEnd := bytes.Index(block, crlf)
	h, err := parseStatusLine(string(block[:lineEnd]))
	if err != nil {
		d.invalid(err)
		return false
	}
	mh, err := textproto.NewReader(bufio.NewReader(bytes.NewReader(block[lineEnd+2:]))).ReadMIMEHeader()
	if err != nil {
		d.invalid(fmt.Errorf("%w: %v", errorx.ErrInvalidResponse, err))
		return false
	}
	for k, vs := range mh {
		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				d.invalid(fmt.Errorf("%w: bad value for %s", errorx.ErrInvalidResponse, k))
				return false
			}
		}
	}
	h.Header = http.Header(mh)

	switch {
	case d.noBody || h.StatusCode/100 == 1 || h.StatusCode == http.StatusNoContent || h.StatusCode == http.StatusNotModified:
		d.state, d.remaining = stateBody, 0
	case h.Chunked():
		d.state = stateChunkHeader
	default:
		n, err := contentLength(h.Header["Content-Length"])
		if err != nil {
			d.invalid(err)
			return false
		}
		d.state, d.remaining = stateBody, n
	}
	d.header = h
	d.ev.responseHeader(h)
	return true
}

func parseStatusLine(line string) (*ResponseHeader, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/1.") || len(proto) != len("HTTP/1.1") {
		return nil, fmt.Errorf("%w: malformed status line %q", errorx.ErrInvalidResponse, line)
	}
	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, fmt.Errorf("%w: malformed status code %q", errorx.ErrInvalidResponse, code)
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return nil, fmt.Errorf("%w: malformed status code %q", errorx.ErrInvalidResponse, code)
	}
	return &ResponseHeader{Proto: proto, StatusCode: status, Reason: reason}, nil
}

// contentLength returns the declared length, -1 when absent. Repeated
// values must agree.
func contentLength(values []string) (int64, error) {
	if len(values) == 0 {
		return -1, nil
	}
	first := strings.TrimSpace(values[0])
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != first {
			return 0, fmt.Errorf("%w: conflicting Content-Length", errorx.ErrInvalidResponse)
		}
	}
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad Content-Length %q", errorx.ErrInvalidResponse, first)
	}
	return n, nil
}

func (d *decoder) parseChunkHeader() bool {
	data := d.buffered()
	end := bytes.Index(data, crlf)
	if end < 0 {
		if len(data) > maxChunkLine {
			d.invalid(fmt.Errorf("%w: chunk size line too long", errorx.ErrInvalidResponse))
		}
		return false
	}
	line := d.consume(end + 2)[:end]
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
	if err != nil || size < 0 {
		d.invalid(fmt.Errorf("%w: bad chunk size %q", errorx.ErrInvalidResponse, line))
		return false
	}
	d.remaining = size
	if size == 0 {
		d.state = stateResponseFooter
	} else {
		d.state = stateChunkBody
	}
	return true
}

func (d *decoder) chunkBody() bool {
	n := int64(len(d.buffered()))
	if n == 0 {
		return false
	}
	if n > d.remaining {
		n = d.remaining
	}
	p := d.consume(int(n))
	d.remaining -= n
	if d.remaining == 0 {
		d.state = stateChunkFooter
	}
	d.ev.bodyData(p)
	return d.remaining == 0
}

func (d *decoder) chunkFooter() bool {
	if len(d.buffered()) < 2 {
		return false
	}
	if !bytes.Equal(d.consume(2), crlf) {
		d.invalid(fmt.Errorf("%w: non-CRLF chunk footer", errorx.ErrInvalidResponse))
		return false
	}
	d.state = stateChunkHeader
	return true
}

func (d *decoder) responseFooter() bool {
	if len(d.buffered()) < 2 {
		return false
	}
	if !bytes.Equal(d.consume(2), crlf) {
		d.invalid(fmt.Errorf("%w: non-CRLF response footer", errorx.ErrInvalidResponse))
		return false
	}
	d.end()
	return false
}

func (d *decoder) body() bool {
	data := d.buffered()
	if d.remaining < 0 {
		if len(data) > 0 {
			d.ev.bodyData(d.consume(len(data)))
		}
		return false
	}
	if d.remaining == 0 {
		d.end()
		return false
	}
	if len(data) == 0 {
		return false
	}
	n := int64(len(data))
	if n > d.remaining {
		n = d.remaining
	}
	d.remaining -= n
	d.ev.bodyData(d.consume(int(n)))
	return d.remaining == 0
}

// end finishes the response, unless bytes follow its logical end.
func (d *decoder) end() {
	if n := len(d.buffered()); n > 0 {
		d.invalid(fmt.Errorf("%w: %d bytes of garbage after the %s", errorx.ErrInvalidResponse, n, d.state))
		return
	}
	d.state = stateFinished
	d.release()
	d.ev.requestComplete()
}

// closed tells the decoder the connection is gone. A body delimited by the
// end of the connection completes, any other unfinished response fails.
func (d *decoder) closed() {
	switch d.state {
	case stateFinished, stateInvalid:
		return
	case stateBody:
		if d.remaining < 0 {
			if data := d.buffered(); len(data) > 0 {
				d.ev.bodyData(d.consume(len(data)))
			}
			if d.state == stateBody {
				d.end()
			}
			return
		}
	}
	d.invalid(fmt.Errorf("%w in %s", errorx.ErrIncompleteResponse, d.state))
}

func (d *decoder) invalid(err error) {
	d.state = stateInvalid
	d.release()
	d.ev.decodeError(err)
}

func (d *decoder) release() {
	if d.buf != nil {
		bytebuffer.Put(d.buf)
		d.buf, d.off = nil, 0
	}
}

// finished reports whether the decoder reached a terminal state.
func (d *decoder) finished() bool {
	return d.state == stateFinished || d.state == stateInvalid
}

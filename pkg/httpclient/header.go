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
	"net/http"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// ResponseHeader is the status line and header block of a response.
type ResponseHeader struct {
	// Proto is the protocol version, e.g. "HTTP/1.1".
	Proto string
	// StatusCode is the numeric status, e.g. 200.
	StatusCode int
	// Reason is the reason phrase, e.g. "OK". It may be empty.
	Reason string
	// Header maps canonical header keys to their values.
	Header http.Header
}

// Status returns the status code followed by the reason phrase.
func (h *ResponseHeader) Status() string {
	if h.Reason == "" {
		return strconv.Itoa(h.StatusCode)
	}
	return strconv.Itoa(h.StatusCode) + " " + h.Reason
}

// Get returns the first value of the header key.
func (h *ResponseHeader) Get(key string) string {
	return h.Header.Get(key)
}

// Chunked reports whether the body uses the chunked transfer coding.
func (h *ResponseHeader) Chunked() bool {
	return httpguts.HeaderValuesContainsToken(h.Header["Transfer-Encoding"], "chunked")
}

// ContentLength returns the declared body length, -1 when there is none.
func (h *ResponseHeader) ContentLength() int64 {
	v := h.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

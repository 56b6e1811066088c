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
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/panjf2000/ioloop"
	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/pool/bytebuffer"
)

// UserAgent is sent unless the request sets its own User-Agent.
var UserAgent = "ioloop/" + ioloop.Version

// RequestOption customizes a request.
type RequestOption func(r *request)

type field struct {
	key, value string
}

type request struct {
	method  string
	path    string
	head    []field
	query   []field
	cookies []field
	body    []byte
}

// WithHeader adds a header field, keys are sent title-cased.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.head = append(r.head, field{key, value})
	}
}

// WithHead adds the header fields of h in key order.
func WithHead(h map[string]string) RequestOption {
	return func(r *request) {
		r.head = append(r.head, sortedFields(h)...)
	}
}

// WithQuery adds query string parameters, they are percent-encoded.
func WithQuery(q map[string]string) RequestOption {
	return func(r *request) {
		r.query = append(r.query, sortedFields(q)...)
	}
}

// WithCookies adds cookies, they are percent-encoded.
func WithCookies(c map[string]string) RequestOption {
	return func(r *request) {
		r.cookies = append(r.cookies, sortedFields(c)...)
	}
}

// WithBody sets the request body, it is sent as is.
func WithBody(b []byte) RequestOption {
	return func(r *request) {
		r.body = b
	}
}

func sortedFields(m map[string]string) []field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fs := make([]field, len(keys))
	for i, k := range keys {
		fs[i] = field{k, m[k]}
	}
	return fs
}

func validMethod(method string) bool {
	if method == "" {
		return false
	}
	for _, r := range method {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

func validPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	for i := 0; i < len(path); i++ {
		if c := path[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

// hostHeader leaves the default port out of the Host header.
func hostHeader(host string, port int) string {
	if port == 80 {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// encode writes the request line, the header block and the body to buf.
// Host, Content-Length, User-Agent and Connection are filled in unless the
// caller set them.
func (r *request) encode(buf *bytebuffer.ByteBuffer, host string, port int) error {
	if !validMethod(r.method) {
		return fmt.Errorf("%w: %q", errorx.ErrInvalidMethod, r.method)
	}
	if !validPath(r.path) {
		return fmt.Errorf("%w: %q", errorx.ErrInvalidPath, r.path)
	}

	_, _ = buf.WriteString(strings.ToUpper(r.method))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(r.path)
	if len(r.query) > 0 {
		sep := byte('?')
		if strings.IndexByte(r.path, '?') >= 0 {
			sep = '&'
		}
		for _, f := range r.query {
			_ = buf.WriteByte(sep)
			_, _ = buf.WriteString(url.QueryEscape(f.key))
			_ = buf.WriteByte('=')
			_, _ = buf.WriteString(url.QueryEscape(f.value))
			sep = '&'
		}
	}
	_, _ = buf.WriteString(" HTTP/1.1\r\n")

	seen := make(map[string]bool, len(r.head)+4)
	for _, f := range r.head {
		key := textproto.CanonicalMIMEHeaderKey(f.key)
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(f.value) {
			return fmt.Errorf("%w: %q", errorx.ErrInvalidHeader, f.key)
		}
		seen[key] = true
		writeField(buf, key, f.value)
	}
	if !seen["Host"] {
		writeField(buf, "Host", hostHeader(host, port))
	}
	if !seen["Content-Length"] {
		writeField(buf, "Content-Length", strconv.Itoa(len(r.body)))
	}
	if !seen["User-Agent"] {
		writeField(buf, "User-Agent", UserAgent)
	}
	if !seen["Connection"] {
		writeField(buf, "Connection", "close")
	}
	for _, f := range r.cookies {
		writeField(buf, "Cookie", url.QueryEscape(f.key)+"="+url.QueryEscape(f.value))
	}
	_, _ = buf.WriteString("\r\n")
	_, _ = buf.Write(r.body)
	return nil
}

func writeField(buf *bytebuffer.ByteBuffer, key, value string) {
	_, _ = buf.WriteString(key)
	_, _ = buf.WriteString(": ")
	_, _ = buf.WriteString(value)
	_, _ = buf.WriteString("\r\n")
}

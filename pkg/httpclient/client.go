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

// Package httpclient is a streaming HTTP/1.1 client running on an ioloop.Loop.
//
// A Client sends a single request over its own connection and decodes the
// response as it arrives: the header block first, then the body in pieces,
// whether it is delimited by Content-Length, chunked or by the end of the
// connection. The request is sent with "Connection: close" unless told
// otherwise and the client closes the connection once the response is done.
package httpclient

import (
	"strings"

	"github.com/panjf2000/ioloop"
	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/pool/bytebuffer"
)

// Handler receives the progress of a request.
type Handler interface {
	// OnResponseHeader fires once the status line and the headers are parsed.
	OnResponseHeader(c *Client, h *ResponseHeader)
	// OnBodyData fires for every piece of the body, data is only valid during the call.
	OnBodyData(c *Client, data []byte)
	// OnRequestComplete fires once the whole response has been received.
	OnRequestComplete(c *Client)
	// OnError fires when the response is malformed or cut short, the client is closed right after.
	OnError(c *Client, err error)
	// OnConnectFailed fires when the server couldn't be reached, name resolution included.
	OnConnectFailed(c *Client, err error)
	// OnClose fires when the connection is closed.
	OnClose(c *Client)
}

// BuiltinHandler is a no-op Handler meant to be embedded.
type BuiltinHandler struct{}

// OnResponseHeader fires once the status line and the headers are parsed.
func (BuiltinHandler) OnResponseHeader(*Client, *ResponseHeader) {}

// OnBodyData fires for every piece of the body.
func (BuiltinHandler) OnBodyData(*Client, []byte) {}

// OnRequestComplete fires once the whole response has been received.
func (BuiltinHandler) OnRequestComplete(*Client) {}

// OnError fires when the response is malformed or cut short.
func (BuiltinHandler) OnError(*Client, error) {}

// OnConnectFailed fires when the server couldn't be reached.
func (BuiltinHandler) OnConnectFailed(*Client, error) {}

// OnClose fires when the connection is closed.
func (BuiltinHandler) OnClose(*Client) {}

// Client issues one request and streams its response to a Handler.
type Client struct {
	conn    *ioloop.Conn
	handler Handler
	host    string
	port    int
	sent    bool
	dec     *decoder
	header  *ResponseHeader
}

// Connect starts connecting to host:port, the client must then be attached
// to a loop. The request can be issued right away, it is sent once connected.
func Connect(host string, port int, h Handler, opts ...ioloop.Option) (*Client, error) {
	c := &Client{handler: h, host: host, port: port}
	c.dec = newDecoder(decodeAdapter{c})
	conn, err := ioloop.ConnectTCP(host, port, connAdapter{c}, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Request encodes and queues the request. Only one request can be issued
// per client, a second one returns ErrRequestAlreadySent.
func (c *Client) Request(method, path string, opts ...RequestOption) error {
	if c.sent {
		return errorx.ErrRequestAlreadySent
	}
	r := request{method: method, path: path}
	for _, opt := range opts {
		opt(&r)
	}

	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)
	if err := r.encode(buf, c.host, c.port); err != nil {
		return err
	}
	if _, err := c.conn.Write(buf.B); err != nil {
		return err
	}
	c.sent = true
	c.dec.noBody = strings.EqualFold(r.method, "HEAD")
	return nil
}

// Get issues a GET request.
func (c *Client) Get(path string, opts ...RequestOption) error {
	return c.Request("GET", path, opts...)
}

// Head issues a HEAD request.
func (c *Client) Head(path string, opts ...RequestOption) error {
	return c.Request("HEAD", path, opts...)
}

// Post issues a POST request with body.
func (c *Client) Post(path string, body []byte, opts ...RequestOption) error {
	return c.Request("POST", path, append(opts, WithBody(body))...)
}

// Put issues a PUT request with body.
func (c *Client) Put(path string, body []byte, opts ...RequestOption) error {
	return c.Request("PUT", path, append(opts, WithBody(body))...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(path string, opts ...RequestOption) error {
	return c.Request("DELETE", path, opts...)
}

// Conn returns the underlying connection.
func (c *Client) Conn() *ioloop.Conn { return c.conn }

// Header returns the response header, nil until it has been received.
func (c *Client) Header() *ResponseHeader { return c.header }

// Finished reports whether the response is complete or failed.
func (c *Client) Finished() bool { return c.dec.finished() }

// Attach attaches the client to l.
func (c *Client) Attach(l *ioloop.Loop) error { return c.conn.Attach(l) }

// Detach removes the client from its loop.
func (c *Client) Detach() error { return c.conn.Detach() }

// Disable pauses reading and decoding, bytes already received wait for Enable.
func (c *Client) Disable() error { return c.conn.Disable() }

// Enable resumes reading, then decodes what was received before Disable.
func (c *Client) Enable() error {
	if err := c.conn.Enable(); err != nil {
		return err
	}
	c.dec.decode(c.conn.IsEnabled)
	return nil
}

// IsAttached reports whether the client belongs to a loop.
func (c *Client) IsAttached() bool { return c.conn.IsAttached() }

// IsEnabled reports whether the client is reading.
func (c *Client) IsEnabled() bool { return c.conn.IsEnabled() }

// Loop returns the loop the client is attached to, or nil.
func (c *Client) Loop() *ioloop.Loop { return c.conn.Loop() }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// connAdapter turns connection events into decoder input.
type connAdapter struct {
	c *Client
}

func (a connAdapter) OnConnect(*ioloop.Conn) {}

func (a connAdapter) OnConnectFailed(_ *ioloop.Conn, err error) {
	a.c.handler.OnConnectFailed(a.c, err)
}

func (a connAdapter) OnRead(conn *ioloop.Conn, data []byte) {
	a.c.dec.write(data)
	a.c.dec.decode(conn.IsEnabled)
}

func (a connAdapter) OnWriteComplete(*ioloop.Conn) {}

func (a connAdapter) OnClose(*ioloop.Conn) {
	if a.c.sent {
		a.c.dec.closed()
	}
	a.c.handler.OnClose(a.c)
}

// decodeAdapter forwards decoder events to the handler.
type decodeAdapter struct {
	c *Client
}

func (a decodeAdapter) responseHeader(h *ResponseHeader) {
	a.c.header = h
	a.c.handler.OnResponseHeader(a.c, h)
}

func (a decodeAdapter) bodyData(p []byte) {
	a.c.handler.OnBodyData(a.c, p)
}

func (a decodeAdapter) requestComplete() {
	a.c.handler.OnRequestComplete(a.c)
	_ = a.c.conn.Close()
}

func (a decodeAdapter) decodeError(err error) {
	a.c.handler.OnError(a.c, err)
	_ = a.c.conn.Close()
}

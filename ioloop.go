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

package ioloop

// Version is the version of this module.
const Version = "1.0.0"

// EventHandler represents the callbacks of a connection. Every method runs on
// the goroutine driving the loop the connection is attached to, so the
// handler must never block.
type EventHandler interface {
	// OnConnect fires when an outbound connection is established, or right
	// after a Server attached an accepted one.
	OnConnect(c *Conn)

	// OnConnectFailed fires when an outbound connection could not be established.
	// The connection is in StateFailed and its descriptor is already released.
	OnConnectFailed(c *Conn, err error)

	// OnRead fires with the bytes of one read. data is only valid during the
	// call, it must be copied to be retained.
	OnRead(c *Conn, data []byte)

	// OnWriteComplete fires each time the write buffer drains completely.
	OnWriteComplete(c *Conn)

	// OnClose fires once when the connection is closed, by either side.
	OnClose(c *Conn)
}

// ResolveFailedHandler can be implemented along with EventHandler to tell
// resolution failures apart from connect failures, which otherwise share
// OnConnectFailed.
type ResolveFailedHandler interface {
	OnResolveFailed(c *Conn, err error)
}

// BuiltinEventHandler is a built-in implementation for all event callbacks,
// you can embed it into your custom struct to make it an implementation of
// EventHandler and override the callbacks you need.
type BuiltinEventHandler struct{}

// OnConnect fires when a connection is established.
func (BuiltinEventHandler) OnConnect(*Conn) {}

// OnConnectFailed fires when a connection could not be established.
func (BuiltinEventHandler) OnConnectFailed(*Conn, error) {}

// OnRead fires when data has been read from the connection.
func (BuiltinEventHandler) OnRead(*Conn, []byte) {}

// OnWriteComplete fires when the write buffer has been drained.
func (BuiltinEventHandler) OnWriteComplete(*Conn) {}

// OnClose fires when the connection has been closed.
func (BuiltinEventHandler) OnClose(*Conn) {}

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

// Package errors defines common errors for ioloop.
package errors

import "errors"

var (
	// ErrNoWatchers occurs when running a loop that has no attached watchers.
	ErrNoWatchers = errors.New("ioloop: no watchers attached to the loop")
	// ErrLoopNotRunning occurs when stopping a loop which is not running.
	ErrLoopNotRunning = errors.New("ioloop: loop is not running")
	// ErrLoopRunning occurs when running a loop re-entrantly from one of its own callbacks.
	ErrLoopRunning = errors.New("ioloop: loop is already running")
	// ErrLoopClosed occurs when using a loop after Close.
	ErrLoopClosed = errors.New("ioloop: loop is closed")
	// ErrInvalidTimeout occurs when passing a negative timeout to RunOnce.
	ErrInvalidTimeout = errors.New("ioloop: timeout must be zero or positive")
	// ErrWatcherNotAttached occurs when enabling or disabling a watcher that belongs to no loop.
	ErrWatcherNotAttached = errors.New("ioloop: watcher is not attached to a loop")
	// ErrWatcherEnabled occurs when enabling a watcher that is already enabled.
	ErrWatcherEnabled = errors.New("ioloop: watcher is already enabled")
	// ErrWatcherDisabled occurs when disabling a watcher that is already disabled.
	ErrWatcherDisabled = errors.New("ioloop: watcher is already disabled")
	// ErrWatcherClosed occurs when signalling or attaching a watcher whose resources were released.
	ErrWatcherClosed = errors.New("ioloop: watcher is closed")
	// ErrSignalDropped occurs when signalling an async watcher whose pipe is full of unread signals.
	ErrSignalDropped = errors.New("ioloop: signal dropped, the wake pipe is full")
	// ErrNilLoop occurs when attaching a watcher to a nil loop.
	ErrNilLoop = errors.New("ioloop: loop is nil")
	// ErrNilHandler occurs when wrapping a descriptor without an event handler.
	ErrNilHandler = errors.New("ioloop: event handler is nil")
	// ErrConnectionFailed occurs when attaching a connection whose connect or resolve has failed.
	ErrConnectionFailed = errors.New("ioloop: connection failed")
	// ErrConnClosed occurs when operating on a closed connection.
	ErrConnClosed = errors.New("ioloop: connection is closed")
	// ErrResolverFinished occurs when attaching a resolver which has already completed.
	ErrResolverFinished = errors.New("ioloop: resolver has already finished")
	// ErrResolveTimeout is reported when no nameserver answered within the retry budget.
	ErrResolveTimeout = errors.New("ioloop: dns resolution timed out")
	// ErrNoNameservers occurs when a resolver is created without any nameserver.
	ErrNoNameservers = errors.New("ioloop: no nameservers available")
	// ErrFactoryArity occurs when the number of constructor arguments doesn't match the connection factory.
	ErrFactoryArity = errors.New("ioloop: wrong number of arguments for connection factory")
	// ErrFactorySignature occurs when the connection factory has an unusable signature.
	ErrFactorySignature = errors.New("ioloop: connection factory must be func(*Conn, ...) EventHandler")
	// ErrUnsupportedBackend occurs when selecting a polling backend the platform lacks.
	ErrUnsupportedBackend = errors.New("ioloop: polling backend is not supported on this platform")
	// ErrUnsupportedProtocol occurs when trying to use protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("ioloop: only unix, tcp/tcp4/tcp6, udp/udp4/udp6 are supported")
	// ErrUnsupportedTCPProtocol occurs when trying to use an unsupported TCP protocol.
	ErrUnsupportedTCPProtocol = errors.New("ioloop: only tcp/tcp4/tcp6 are supported")
	// ErrUnsupportedUDPProtocol occurs when trying to use an unsupported UDP protocol.
	ErrUnsupportedUDPProtocol = errors.New("ioloop: only udp/udp4/udp6 are supported")
	// ErrUnsupportedUDSProtocol occurs when trying to use an unsupported Unix protocol.
	ErrUnsupportedUDSProtocol = errors.New("ioloop: only unix is supported")
	// ErrInvalidNetworkAddress occurs when the network address is invalid.
	ErrInvalidNetworkAddress = errors.New("ioloop: invalid network address")
	// ErrDNSMalformed occurs when a DNS response can't be parsed.
	ErrDNSMalformed = errors.New("ioloop: malformed dns response")
	// ErrDNSMismatch occurs when a DNS response doesn't answer the question that was sent.
	ErrDNSMismatch = errors.New("ioloop: dns response does not match the query")
	// ErrDNSNoAnswer occurs when a DNS response carries no usable A record.
	ErrDNSNoAnswer = errors.New("ioloop: dns response has no A record")
	// ErrDNSRcode occurs when a DNS response carries a non-zero response code.
	ErrDNSRcode = errors.New("ioloop: dns server returned an error code")
	// ErrRequestAlreadySent occurs when issuing a second request on one HTTP client.
	ErrRequestAlreadySent = errors.New("ioloop: request already sent")
	// ErrInvalidPath occurs when the request path doesn't begin with '/'.
	ErrInvalidPath = errors.New("ioloop: request path must begin with '/'")
	// ErrInvalidMethod occurs when the request method isn't a valid HTTP token.
	ErrInvalidMethod = errors.New("ioloop: invalid request method")
	// ErrInvalidHeader occurs when a header name or value can't be sent on the wire.
	ErrInvalidHeader = errors.New("ioloop: invalid header field")
	// ErrInvalidResponse occurs when the server's response violates the HTTP/1.x framing rules.
	ErrInvalidResponse = errors.New("ioloop: invalid http response")
	// ErrHeaderTooLarge occurs when a response header block exceeds the size limit.
	ErrHeaderTooLarge = errors.New("ioloop: http response header too large")
	// ErrIncompleteResponse occurs when the connection closes before the response is complete.
	ErrIncompleteResponse = errors.New("ioloop: connection closed before the response completed")
)

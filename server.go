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

import (
	"fmt"
	"reflect"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

var (
	connType         = reflect.TypeOf((*Conn)(nil))
	eventHandlerType = reflect.TypeOf((*EventHandler)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
)

// Server accepts connections on a Listener and builds a handler for each of
// them with a factory.
//
// The factory is a function whose first parameter is the *Conn being set
// up and whose result is its EventHandler, optionally followed by an error.
// The rest of its parameters are filled with the constructor arguments
// given to NewServer, for every connection. Every accepted connection is
// attached to the listener's loop and gets OnConnect right away, then the
// callback installed with WithConnectionCallback runs, if any.
type Server struct {
	ln      *Listener
	factory reflect.Value
	args    []reflect.Value
}

// NewServer wraps ln with the connection factory. Signature and argument
// mismatches are reported here, ErrFactorySignature and ErrFactoryArity.
func NewServer(ln *Listener, factory any, args ...any) (*Server, error) {
	fv := reflect.ValueOf(factory)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, errorx.ErrFactorySignature
	}
	ft := fv.Type()
	if ft.NumIn() == 0 || ft.In(0) != connType {
		return nil, fmt.Errorf("%w: first parameter must be *Conn", errorx.ErrFactorySignature)
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result must be error", errorx.ErrFactorySignature)
		}
	default:
		return nil, errorx.ErrFactorySignature
	}
	if !ft.Out(0).Implements(eventHandlerType) {
		return nil, fmt.Errorf("%w: %s doesn't implement EventHandler", errorx.ErrFactorySignature, ft.Out(0))
	}

	fixed := ft.NumIn() - 1
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("%w: got %d, want at least %d", errorx.ErrFactoryArity, len(args), fixed)
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("%w: got %d, want %d", errorx.ErrFactoryArity, len(args), fixed)
	}

	values := make([]reflect.Value, len(args))
	for i, arg := range args {
		pt := paramType(ft, i+1)
		if arg == nil {
			switch pt.Kind() {
			case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
				values[i] = reflect.Zero(pt)
				continue
			}
			return nil, fmt.Errorf("%w: argument %d can't be nil", errorx.ErrFactorySignature, i)
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(pt) {
			return nil, fmt.Errorf("%w: argument %d is %s, want %s", errorx.ErrFactorySignature, i, v.Type(), pt)
		}
		values[i] = v
	}

	s := &Server{ln: ln, factory: fv, args: values}
	ln.SetHandler(ListenerFunc(s.accept))
	return s, nil
}

// paramType returns the type of the i-th parameter, the variadic tail
// yielding its element type.
func paramType(ft reflect.Type, i int) reflect.Type {
	if ft.IsVariadic() && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}

// NewTCPServer listens on host:port with the default options and serves it with factory.
func NewTCPServer(host string, port int, factory any, args ...any) (*Server, error) {
	ln, err := ListenTCP(host, port)
	if err != nil {
		return nil, err
	}
	s, err := NewServer(ln, factory, args...)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return s, nil
}

// NewUNIXServer listens on path with the default options and serves it with factory.
func NewUNIXServer(path string, factory any, args ...any) (*Server, error) {
	ln, err := ListenUNIX(path)
	if err != nil {
		return nil, err
	}
	s, err := NewServer(ln, factory, args...)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) accept(ln *Listener, fd int, sa unix.Sockaddr) {
	l := ln.loop
	c := newAcceptedConn(fd, sa, ln.network, ln.opts)

	in := make([]reflect.Value, 0, len(s.args)+1)
	in = append(in, reflect.ValueOf(c))
	in = append(in, s.args...)
	out := s.factory.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		l.logger.Errorf("connection factory rejected %s: %v", c.RemoteAddr(), out[1].Interface())
		_ = unix.Close(fd)
		return
	}
	h, _ := out[0].Interface().(EventHandler)
	if h == nil {
		l.logger.Errorf("connection factory returned no handler for %s", c.RemoteAddr())
		_ = unix.Close(fd)
		return
	}
	c.handler = h

	if err := c.Attach(l); err != nil {
		l.logger.Errorf("attaching connection from %s: %v", c.RemoteAddr(), err)
		c.state = StateClosed
		_ = unix.Close(fd)
		return
	}
	if fn := ln.opts.OnConnection; fn != nil && c.state == StateOpen {
		fn(c)
	}
}

// Listener returns the listener of the server.
func (s *Server) Listener() *Listener { return s.ln }

// Attach attaches the listener of the server to l, accepted connections join the same loop.
func (s *Server) Attach(l *Loop) error { return s.ln.Attach(l) }

// Detach stops accepting, connections already accepted stay attached.
func (s *Server) Detach() error { return s.ln.Detach() }

// Enable resumes accepting.
func (s *Server) Enable() error { return s.ln.Enable() }

// Disable pauses accepting.
func (s *Server) Disable() error { return s.ln.Disable() }

// IsAttached reports whether the listener belongs to a loop.
func (s *Server) IsAttached() bool { return s.ln.IsAttached() }

// IsEnabled reports whether the server is accepting.
func (s *Server) IsEnabled() bool { return s.ln.IsEnabled() }

// Loop returns the loop the server is attached to, or nil.
func (s *Server) Loop() *Loop { return s.ln.Loop() }

// Close stops accepting and closes the listening socket.
func (s *Server) Close() error { return s.ln.Close() }

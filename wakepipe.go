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
	"os"
	"sync"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

// wakePipe is a non-blocking self-pipe. Any goroutine may signal it, the
// loop goroutine drains it.
type wakePipe struct {
	mu     sync.RWMutex
	rfd    int
	wfd    int
	closed bool
	buf    [64]byte
}

func newWakePipe() (*wakePipe, error) {
	rfd, wfd, err := openPipe()
	if err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	return &wakePipe{rfd: rfd, wfd: wfd}, nil
}

var wakeByte = []byte{'!'}

// signal writes one byte. When the pipe is full the byte is dropped and
// ErrSignalDropped returned, the pending bytes still wake the loop.
func (p *wakePipe) signal() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errorx.ErrWatcherClosed
	}
	for {
		_, err := unix.Write(p.wfd, wakeByte)
		switch err {
		case nil:
			return nil
		case unix.EAGAIN:
			return errorx.ErrSignalDropped
		case unix.EINTR:
			continue
		default:
			return os.NewSyscallError("write", err)
		}
	}
}

// drainOne consumes a single byte and reports whether there was one.
func (p *wakePipe) drainOne() bool {
	n, err := unix.Read(p.rfd, p.buf[:1])
	return err == nil && n == 1
}

// drainAll consumes every pending byte and reports how many there were.
func (p *wakePipe) drainAll() (total int) {
	for {
		n, err := unix.Read(p.rfd, p.buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
		total += n
	}
}

func (p *wakePipe) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := unix.Close(p.wfd)
	if e := unix.Close(p.rfd); err == nil {
		err = e
	}
	return os.NewSyscallError("close", err)
}

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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller keeps a dense pollfd table, index maps a descriptor to its slot.
type pollPoller struct {
	fds    []unix.PollFd
	index  map[int]int
	output []Event
}

func openPoll() (Poller, error) {
	return &pollPoller{
		fds:    make([]unix.PollFd, 0, InitPollEventsCap),
		index:  make(map[int]int),
		output: make([]Event, 0, InitPollEventsCap),
	}, nil
}

func pollEvents(in Interest) int16 {
	var ev int16
	if in&Readable != 0 {
		ev |= unix.POLLIN
	}
	if in&Writable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollPoller) Add(fd int, in Interest) error {
	if _, ok := p.index[fd]; ok {
		return os.NewSyscallError("poll add", unix.EEXIST)
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: pollEvents(in)})
	return nil
}

func (p *pollPoller) Modify(fd int, in Interest) error {
	i, ok := p.index[fd]
	if !ok {
		return os.NewSyscallError("poll mod", unix.ENOENT)
	}
	p.fds[i].Events = pollEvents(in)
	return nil
}

func (p *pollPoller) Delete(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return os.NewSyscallError("poll del", unix.ENOENT)
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	p.output = p.output[:0]
	if len(p.fds) == 0 {
		// poll(2) with no descriptors is a plain sleep.
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return p.output, nil
	}
	for i := range p.fds {
		p.fds[i].Revents = 0
	}
	n, err := unix.Poll(p.fds, durationToMsec(timeout))
	if err == unix.EINTR {
		return p.output, nil
	}
	if err != nil {
		return nil, os.NewSyscallError("poll", err)
	}
	for i := 0; i < len(p.fds) && len(p.output) < n; i++ {
		re := p.fds[i].Revents
		if re == 0 {
			continue
		}
		failed := re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
		p.output = append(p.output, Event{
			FD:       int(p.fds[i].Fd),
			Readable: failed || re&unix.POLLIN != 0,
			Writable: failed || re&unix.POLLOUT != 0,
		})
	}
	return p.output, nil
}

func (p *pollPoller) Close() error {
	p.fds = nil
	p.index = nil
	return nil
}

func (p *pollPoller) Backend() Backend {
	return BackendPoll
}

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

//go:build linux

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// ReadEvents represents readable events that are polled by epoll.
	ReadEvents = unix.EPOLLIN | unix.EPOLLPRI
	// WriteEvents represents writeable events that are polled by epoll.
	WriteEvents = unix.EPOLLOUT
	// ErrEvents represents exceptional events that occurred.
	ErrEvents = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

type epollPoller struct {
	fd     int
	el     *eventList[unix.EpollEvent]
	output []Event
}

func openDefault() (Poller, error) {
	return openEpoll()
}

func openEpoll() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollPoller{
		fd:     fd,
		el:     newEventList[unix.EpollEvent](InitPollEventsCap),
		output: make([]Event, 0, InitPollEventsCap),
	}, nil
}

func epollEvents(in Interest) uint32 {
	var ev uint32
	if in&Readable != 0 {
		ev |= ReadEvents | unix.EPOLLRDHUP
	}
	if in&Writable != 0 {
		ev |= WriteEvents
	}
	return ev
}

func (p *epollPoller) Add(fd int, in Interest) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(in)}))
}

func (p *epollPoller) Modify(fd int, in Interest) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(in)}))
}

func (p *epollPoller) Delete(fd int) error {
	// A non-nil event is required by kernels before 2.6.9.
	return os.NewSyscallError("epoll_ctl del",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}))
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	n, err := unix.EpollWait(p.fd, p.el.events, durationToMsec(timeout))
	if err == unix.EINTR {
		return p.output[:0], nil
	}
	if err != nil {
		return nil, os.NewSyscallError("epoll_wait", err)
	}

	p.output = p.output[:0]
	for i := 0; i < n; i++ {
		ev := &p.el.events[i]
		failed := ev.Events&ErrEvents != 0
		p.output = append(p.output, Event{
			FD:       int(ev.Fd),
			Readable: failed || ev.Events&ReadEvents != 0,
			Writable: failed || ev.Events&WriteEvents != 0,
		})
	}
	p.el.adjust(n)
	return p.output, nil
}

func (p *epollPoller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

func (p *epollPoller) Backend() Backend {
	return BackendEpoll
}

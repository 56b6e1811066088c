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

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	fd        int
	el        *eventList[unix.Kevent_t]
	output    []Event
	interests map[int]Interest
	changes   []unix.Kevent_t
}

func openDefault() (Poller, error) {
	return openKqueue()
}

func openKqueue() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(fd)
	return &kqueuePoller{
		fd:        fd,
		el:        newEventList[unix.Kevent_t](InitPollEventsCap),
		output:    make([]Event, 0, InitPollEventsCap),
		interests: make(map[int]Interest),
	}, nil
}

func (p *kqueuePoller) change(fd int, filter int16, flags uint16) {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, int(filter), int(flags))
	p.changes = append(p.changes, ev)
}

// apply submits the filter changes needed to go from the old interest to the new one.
func (p *kqueuePoller) apply(fd int, old, in Interest) error {
	p.changes = p.changes[:0]
	if in&Readable != 0 && old&Readable == 0 {
		p.change(fd, unix.EVFILT_READ, unix.EV_ADD)
	} else if in&Readable == 0 && old&Readable != 0 {
		p.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if in&Writable != 0 && old&Writable == 0 {
		p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD)
	} else if in&Writable == 0 && old&Writable != 0 {
		p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	if len(p.changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.fd, p.changes, nil, nil)
	return os.NewSyscallError("kevent", err)
}

func (p *kqueuePoller) Add(fd int, in Interest) error {
	if err := p.apply(fd, None, in); err != nil {
		return err
	}
	p.interests[fd] = in
	return nil
}

func (p *kqueuePoller) Modify(fd int, in Interest) error {
	if err := p.apply(fd, p.interests[fd], in); err != nil {
		return err
	}
	p.interests[fd] = in
	return nil
}

func (p *kqueuePoller) Delete(fd int) error {
	old, ok := p.interests[fd]
	if !ok {
		return nil
	}
	delete(p.interests, fd)
	return p.apply(fd, old, None)
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, p.el.events, ts)
	if err == unix.EINTR {
		return p.output[:0], nil
	}
	if err != nil {
		return nil, os.NewSyscallError("kevent wait", err)
	}

	p.output = p.output[:0]
	for i := 0; i < n; i++ {
		ev := &p.el.events[i]
		failed := ev.Flags&unix.EV_ERROR != 0 || ev.Flags&unix.EV_EOF != 0
		e := Event{FD: int(ev.Ident)}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e.Readable = true
			e.Writable = failed && p.interests[e.FD]&Writable != 0
		case unix.EVFILT_WRITE:
			e.Writable = true
			e.Readable = failed && p.interests[e.FD]&Readable != 0
		default:
			continue
		}
		p.output = append(p.output, e)
	}
	p.el.adjust(n)
	return p.output, nil
}

func (p *kqueuePoller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

func (p *kqueuePoller) Backend() Backend {
	return BackendKqueue
}

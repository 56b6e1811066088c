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
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/panjf2000/ioloop/pkg/dnswire"
	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/netpoll"
	"github.com/panjf2000/ioloop/pkg/socket"
)

// ResolverHandler receives the outcome of a Resolver.
type ResolverHandler interface {
	// OnSuccess fires with the IPv4 address the name resolved to.
	OnSuccess(r *Resolver, ip net.IP)
	// OnFailure fires when the name didn't resolve.
	OnFailure(r *Resolver, err error)
}

// ResolverTimeoutHandler can be implemented along with ResolverHandler to
// handle the lack of any answer apart from other failures. Without it a
// timeout is reported to OnFailure with ErrResolveTimeout.
type ResolverTimeoutHandler interface {
	OnTimeout(r *Resolver)
}

// Resolver resolves one host name to an IPv4 address with UDP queries.
//
// The first query is sent when the resolver is attached, then every
// ResolveTimeout another one goes to the next nameserver in rotation until
// ResolveAttempts queries were sent, the following tick times out. The first
// datagram received settles the outcome. A resolver is one-shot: it detaches
// itself and releases its socket before reporting, and can't be attached
// again afterwards.
type Resolver struct {
	host        string
	fd          int
	query       []byte
	servers     *queue.Queue
	io          *IOWatcher
	timer       *TimerWatcher
	handler     ResolverHandler
	attempts    int
	maxAttempts int
	finished    bool
	buf         [dnswire.MaxDatagramSize]byte
}

// NewResolver creates a resolver for host. The nameservers come from
// WithNameservers, or from the resolv.conf file otherwise.
func NewResolver(host string, h ResolverHandler, opts ...Option) (*Resolver, error) {
	options := loadOptions(opts...)
	options.normalize()
	return newResolver(host, h, options)
}

func newResolver(host string, h ResolverHandler, opts *Options) (*Resolver, error) {
	query, err := dnswire.BuildQuery(host)
	if err != nil {
		return nil, err
	}

	servers := opts.Nameservers
	if len(servers) == 0 {
		if servers, err = DefaultNameservers(opts.ResolvConf); err != nil {
			return nil, err
		}
	}
	q := queue.New()
	for _, s := range servers {
		sa, err := nameserverAddr(s)
		if err != nil {
			return nil, err
		}
		q.Add(sa)
	}

	fd, err := socket.OpenUDP4()
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		host:        host,
		fd:          fd,
		query:       query,
		servers:     q,
		handler:     h,
		maxAttempts: opts.ResolveAttempts,
	}
	r.io = NewIOWatcher(fd, netpoll.Readable, ioFuncs{readable: r.onReadable})
	r.timer = NewTimerWatcher(opts.ResolveTimeout, true, TimerFunc(r.onTimer))
	return r, nil
}

// Host returns the name being resolved.
func (r *Resolver) Host() string { return r.host }

// Attempts returns the number of queries sent so far.
func (r *Resolver) Attempts() int { return r.attempts }

// Attach attaches the resolver to l and sends the first query.
func (r *Resolver) Attach(l *Loop) error {
	if r.finished {
		return errorx.ErrResolverFinished
	}
	if err := r.io.Attach(l); err != nil {
		return err
	}
	if err := r.timer.Attach(l); err != nil {
		_ = r.io.Detach()
		return err
	}
	if r.attempts == 0 {
		if err := r.send(); err != nil {
			r.fail(err)
		}
	}
	return nil
}

// Detach removes the resolver from its loop, it can be attached again later.
func (r *Resolver) Detach() error {
	err := r.io.Detach()
	if e := r.timer.Detach(); err == nil {
		err = e
	}
	return err
}

// Enable resumes the resolver.
func (r *Resolver) Enable() error {
	if r.finished {
		return errorx.ErrResolverFinished
	}
	if err := r.io.Enable(); err != nil {
		return err
	}
	return r.timer.Enable()
}

// Disable pauses the resolver, the retry timer included.
func (r *Resolver) Disable() error {
	if err := r.io.Disable(); err != nil {
		return err
	}
	return r.timer.Disable()
}

// IsAttached reports whether the resolver belongs to a loop.
func (r *Resolver) IsAttached() bool { return r.io.IsAttached() }

// IsEnabled reports whether the resolver is running.
func (r *Resolver) IsEnabled() bool { return r.io.IsEnabled() }

// Loop returns the loop the resolver is attached to, or nil.
func (r *Resolver) Loop() *Loop { return r.io.Loop() }

// Close abandons the resolution without reporting anything.
func (r *Resolver) Close() error {
	err := r.Detach()
	r.release()
	return err
}

func (r *Resolver) release() {
	r.finished = true
	if r.fd >= 0 {
		_ = unix.Close(r.fd)
		r.fd = -1
	}
}

func (r *Resolver) finish() {
	_ = r.Detach()
	r.release()
}

func (r *Resolver) fail(err error) {
	r.finish()
	r.handler.OnFailure(r, err)
}

// send queries the nameserver at the head of the rotation and rotates it.
func (r *Resolver) send() error {
	sa := r.servers.Remove().(*unix.SockaddrInet4)
	r.servers.Add(sa)
	r.attempts++

	err := unix.Sendto(r.fd, r.query, 0, sa)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EHOSTUNREACH), errors.Is(err, unix.ENETUNREACH),
		errors.Is(err, unix.ECONNREFUSED), errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		if l := r.Loop(); l != nil {
			l.logger.Debugf("resolving %s, query %d to %s: %v", r.host, r.attempts, net.IP(sa.Addr[:]), err)
		}
		return nil
	}
	return os.NewSyscallError("sendto", err)
}

func (r *Resolver) onTimer(*TimerWatcher) {
	if r.attempts >= r.maxAttempts {
		r.finish()
		if h, ok := r.handler.(ResolverTimeoutHandler); ok {
			h.OnTimeout(r)
			return
		}
		r.handler.OnFailure(r, fmt.Errorf("%w after %d queries for %s", errorx.ErrResolveTimeout, r.attempts, r.host))
		return
	}
	if err := r.send(); err != nil {
		r.fail(err)
	}
}

func (r *Resolver) onReadable() {
	n, _, err := unix.Recvfrom(r.fd, r.buf[:], 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNREFUSED {
			return
		}
		r.fail(os.NewSyscallError("recvfrom", err))
		return
	}
	ip, err := dnswire.ParseResponse(r.buf[:n], r.host)
	if err != nil {
		r.fail(fmt.Errorf("resolving %s: %w", r.host, err))
		return
	}
	r.finish()
	r.handler.OnSuccess(r, ip)
}

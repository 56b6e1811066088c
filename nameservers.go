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
	"net"
	"strconv"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
	"github.com/panjf2000/ioloop/pkg/dnswire"
)

// DefaultNameservers returns the IPv4 nameservers listed in the resolv.conf
// file at path, as "host:port".
func DefaultNameservers(path string) ([]string, error) {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorx.ErrNoNameservers, err)
	}
	port := cfg.Port
	if port == "" {
		port = strconv.Itoa(dnswire.Port)
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		if ip := net.ParseIP(s); ip != nil && ip.To4() != nil {
			servers = append(servers, net.JoinHostPort(s, port))
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w in %s", errorx.ErrNoNameservers, path)
	}
	return servers, nil
}

// nameserverAddr parses "host" or "host:port", the port defaults to 53.
func nameserverAddr(s string) (*unix.SockaddrInet4, error) {
	host, port := s, dnswire.Port
	if h, p, err := net.SplitHostPort(s); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("%w: nameserver %q", errorx.ErrInvalidNetworkAddress, s)
		}
		host, port = h, n
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: nameserver %q is not an IPv4 address", errorx.ErrInvalidNetworkAddress, s)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip)
	return sa, nil
}

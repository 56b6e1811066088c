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
	"bufio"
	"bytes"
	"net"
	"os"
	"strings"
)

var localhostIP = net.IPv4(127, 0, 0, 1).To4()

// LookupHosts looks host up in the hosts file at path. The first IPv4
// entry of a name wins, an IPv6 one is only returned when the name has no
// IPv4 entry. "localhost" resolves to 127.0.0.1 even when the file doesn't
// list it or can't be read.
func LookupHosts(path, host string) (net.IP, bool) {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if ip := lookupHostsData(data, host); ip != nil {
			return ip, true
		}
	}
	if strings.EqualFold(host, "localhost") {
		return localhostIP, true
	}
	return nil, false
}

func lookupHostsData(data []byte, host string) (found net.IP) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			if !strings.EqualFold(strings.TrimSuffix(name, "."), host) {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				return v4
			}
			if found == nil {
				found = ip
			}
		}
	}
	return found
}

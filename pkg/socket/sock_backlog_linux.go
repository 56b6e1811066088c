// Copyright (c) 2020 The Gnet Authors. All rights reserved.
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

package socket

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func maxListenerBacklog() int {
	f, err := os.Open("/proc/sys/net/core/somaxconn")
	if err != nil {
		return unix.SOMAXCONN
	}
	defer f.Close() //nolint:errcheck

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		return unix.SOMAXCONN
	}
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return unix.SOMAXCONN
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n == 0 {
		return unix.SOMAXCONN
	}
	// Linux stores the backlog in a uint16.
	if n > 1<<16-1 {
		n = 1<<16 - 1
	}
	return n
}

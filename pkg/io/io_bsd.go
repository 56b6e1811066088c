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

//go:build freebsd || dragonfly || netbsd || openbsd || darwin

// Package io provides vectored I/O over raw descriptors.
package io

import "golang.org/x/sys/unix"

// Writev calls write() once per buffer, stopping at the first short write.
// An error is only returned when nothing was written.
func Writev(fd int, iov [][]byte) (int, error) {
	var sum int
	for i := range iov {
		n, err := unix.Write(fd, iov[i])
		if err != nil {
			if sum > 0 {
				return sum, nil
			}
			return 0, err
		}
		sum += n
		if n < len(iov[i]) {
			break
		}
	}
	return sum, nil
}

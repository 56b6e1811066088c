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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveFromHostsFile(t *testing.T) {
	hosts := writeFile(t, "hosts", "10.9.8.7 db.example.test\n")
	out, err := execute(t, "resolve", "--hosts-file", hosts, "db.example.test")
	require.NoError(t, err)
	assert.Equal(t, "db.example.test\t10.9.8.7\t(hosts file)\n", out)
}

func TestConfigSources(t *testing.T) {
	hosts := writeFile(t, "hosts", "10.9.8.7 db.example.test\n")

	t.Run("config file", func(t *testing.T) {
		cfg := writeFile(t, "ioloop.yaml", "hosts-file: "+hosts+"\n")
		out, err := execute(t, "resolve", "--config", cfg, "db.example.test")
		require.NoError(t, err)
		assert.Contains(t, out, "10.9.8.7")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("IOLOOP_HOSTS_FILE", hosts)
		out, err := execute(t, "resolve", "db.example.test")
		require.NoError(t, err)
		assert.Contains(t, out, "10.9.8.7")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := execute(t, "resolve", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "x")
		assert.Error(t, err)
	})
}

func TestInvalidOptions(t *testing.T) {
	_, err := execute(t, "resolve", "--backend", "select", "db.example.test")
	assert.ErrorIs(t, err, errorx.ErrUnsupportedBackend)

	_, err = execute(t, "resolve", "--read-buffer", "lots", "db.example.test")
	assert.Error(t, err)

	_, err = execute(t, "resolve", "--log-level", "loud", "db.example.test")
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		raw  string
		host string
		port int
		path string
	}{
		{"http://example.com", "example.com", 80, "/"},
		{"http://example.com:8080/a/b?x=1&y=2", "example.com", 8080, "/a/b?x=1&y=2"},
		{"http://[::1]:81/", "::1", 81, "/"},
		{"http://example.com/a%20b", "example.com", 80, "/a%20b"},
	}
	for _, tc := range cases {
		host, port, path, err := parseTarget(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.host, host, tc.raw)
		assert.Equal(t, tc.port, port, tc.raw)
		assert.Equal(t, tc.path, path, tc.raw)
	}

	for _, bad := range []string{"https://example.com/", "http:///path", "example.com", "http://example.com:http/"} {
		_, _, _, err := parseTarget(bad)
		assert.Error(t, err, bad)
	}
}

type fakeInfo struct {
	os.FileInfo
	size int64
	mode os.FileMode
}

func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) Sys() any           { return nil }

func TestDescribeChange(t *testing.T) {
	assert.Equal(t, "removed /tmp/x", describeChange("/tmp/x", fakeInfo{size: 1}, nil))
	assert.True(t, strings.HasPrefix(describeChange("/tmp/x", nil, fakeInfo{size: 2048}), "created /tmp/x (2.0 kB)"))
}

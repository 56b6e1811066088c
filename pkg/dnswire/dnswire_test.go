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

package dnswire

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

type answer struct {
	cname string
	a     [4]byte
}

func buildResponse(t *testing.T, h dnsmessage.Header, qname string, answers ...answer) []byte {
	t.Helper()
	b := dnsmessage.NewBuilder(nil, h)
	require.NoError(t, b.StartQuestions())
	if qname != "" {
		require.NoError(t, b.Question(dnsmessage.Question{
			Name:  dnsmessage.MustNewName(qname),
			Type:  dnsmessage.TypeA,
			Class: dnsmessage.ClassINET,
		}))
	}
	require.NoError(t, b.StartAnswers())
	for _, a := range answers {
		rh := dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(qname), Class: dnsmessage.ClassINET, TTL: 60}
		if a.cname != "" {
			require.NoError(t, b.CNAMEResource(rh, dnsmessage.CNAMEResource{CNAME: dnsmessage.MustNewName(a.cname)}))
			continue
		}
		require.NoError(t, b.AResource(rh, dnsmessage.AResource{A: a.a}))
	}
	msg, err := b.Finish()
	require.NoError(t, err)
	return msg
}

func okHeader() dnsmessage.Header {
	return dnsmessage.Header{ID: QueryID, Response: true, RecursionDesired: true, RecursionAvailable: true}
}

func TestBuildQuery(t *testing.T) {
	msg, err := BuildQuery("example.com")
	require.NoError(t, err)
	require.LessOrEqual(t, len(msg), MaxDatagramSize)

	assert.EqualValues(t, QueryID, binary.BigEndian.Uint16(msg[0:2]))
	assert.EqualValues(t, 0x0100, binary.BigEndian.Uint16(msg[2:4]), "only RD must be set")
	assert.EqualValues(t, 1, binary.BigEndian.Uint16(msg[4:6]))
	// QNAME, then QTYPE=A and QCLASS=IN.
	assert.Equal(t, "\x07example\x03com\x00", string(msg[12:25]))
	assert.EqualValues(t, 1, binary.BigEndian.Uint16(msg[25:27]))
	assert.EqualValues(t, 1, binary.BigEndian.Uint16(msg[27:29]))

	_, err = BuildQuery("bad..name")
	assert.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	msg := buildResponse(t, okHeader(), "example.com.", answer{a: [4]byte{93, 184, 216, 34}})
	ip, err := ParseResponse(msg, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "93.184.216.34", ip.String())

	// Name comparison is case-insensitive and CNAMEs before the A record are skipped.
	msg = buildResponse(t, okHeader(), "WWW.Example.com.",
		answer{cname: "example.com."}, answer{a: [4]byte{10, 0, 0, 1}}, answer{a: [4]byte{10, 0, 0, 2}})
	ip, err = ParseResponse(msg, "www.example.com.")
	require.NoError(t, err)
	assert.True(t, ip.Equal(net.IPv4(10, 0, 0, 1)))
}

func TestParseResponseFailures(t *testing.T) {
	good := buildResponse(t, okHeader(), "example.com.", answer{a: [4]byte{1, 2, 3, 4}})

	wrongID := okHeader()
	wrongID.ID = 7
	notResponse := okHeader()
	notResponse.Response = false
	truncated := okHeader()
	truncated.Truncated = true
	nxdomain := okHeader()
	nxdomain.RCode = dnsmessage.RCodeNameError

	cases := []struct {
		name string
		msg  []byte
		host string
		want error
	}{
		{"empty", nil, "example.com", errorx.ErrDNSMalformed},
		{"short header", good[:7], "example.com", errorx.ErrDNSMalformed},
		{"truncated answer", good[:len(good)-2], "example.com", errorx.ErrDNSMalformed},
		{"wrong id", buildResponse(t, wrongID, "example.com.", answer{a: [4]byte{1, 2, 3, 4}}), "example.com", errorx.ErrDNSMismatch},
		{"query bit", buildResponse(t, notResponse, "example.com.", answer{a: [4]byte{1, 2, 3, 4}}), "example.com", errorx.ErrDNSMismatch},
		{"tc bit", buildResponse(t, truncated, "example.com.", answer{a: [4]byte{1, 2, 3, 4}}), "example.com", errorx.ErrDNSMalformed},
		{"rcode", buildResponse(t, nxdomain, "example.com."), "example.com", errorx.ErrDNSRcode},
		{"no question", buildResponse(t, okHeader(), ""), "example.com", errorx.ErrDNSMismatch},
		{"other question", good, "example.org", errorx.ErrDNSMismatch},
		{"no answer", buildResponse(t, okHeader(), "example.com."), "example.com", errorx.ErrDNSNoAnswer},
		{"cname only", buildResponse(t, okHeader(), "example.com.", answer{cname: "other.com."}), "example.com", errorx.ErrDNSNoAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := ParseResponse(tc.msg, tc.host)
			assert.Nil(t, ip)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

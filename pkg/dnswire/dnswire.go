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

// Package dnswire encodes the single-question A queries sent by the
// resolver and validates the answers it receives, using the RFC 1035 codec
// from golang.org/x/net/dns/dnsmessage.
package dnswire

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/dns/dnsmessage"

	errorx "github.com/panjf2000/ioloop/pkg/errors"
)

const (
	// Port is the well-known DNS port.
	Port = 53
	// MaxDatagramSize is the largest UDP message a resolver sends or accepts.
	MaxDatagramSize = 512
	// QueryID is the transaction id of every query, one query is in flight per socket.
	QueryID uint16 = 2
)

func question(host string) (dnsmessage.Question, error) {
	if !strings.HasSuffix(host, ".") {
		host += "."
	}
	name, err := dnsmessage.NewName(host)
	if err != nil {
		return dnsmessage.Question{}, fmt.Errorf("dnswire: invalid host name %q: %w", host, err)
	}
	return dnsmessage.Question{Name: name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET}, nil
}

// BuildQuery encodes a recursive query for the A record of host.
func BuildQuery(host string) ([]byte, error) {
	q, err := question(host)
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(make([]byte, 0, MaxDatagramSize), dnsmessage.Header{
		ID:               QueryID,
		RecursionDesired: true,
	})
	b.EnableCompression()
	if err = b.StartQuestions(); err != nil {
		return nil, err
	}
	if err = b.Question(q); err != nil {
		return nil, fmt.Errorf("dnswire: %w", err)
	}
	msg, err := b.Finish()
	if err != nil {
		return nil, fmt.Errorf("dnswire: %w", err)
	}
	if len(msg) > MaxDatagramSize {
		return nil, fmt.Errorf("dnswire: query for %q exceeds %d bytes", host, MaxDatagramSize)
	}
	return msg, nil
}

// ParseResponse validates msg as the answer to the query built for host and
// returns the address carried by its first A record. Every deviation, a
// truncated or garbled message included, yields an error and never an address.
func ParseResponse(msg []byte, host string) (net.IP, error) {
	want, err := question(host)
	if err != nil {
		return nil, err
	}

	var p dnsmessage.Parser
	h, err := p.Start(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorx.ErrDNSMalformed, err)
	}
	if h.ID != QueryID || !h.Response {
		return nil, fmt.Errorf("%w: id %d, response %t", errorx.ErrDNSMismatch, h.ID, h.Response)
	}
	if h.Truncated {
		return nil, fmt.Errorf("%w: truncated", errorx.ErrDNSMalformed)
	}
	if h.RCode != dnsmessage.RCodeSuccess {
		return nil, fmt.Errorf("%w: %s", errorx.ErrDNSRcode, h.RCode)
	}

	qs, err := p.AllQuestions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorx.ErrDNSMalformed, err)
	}
	if len(qs) != 1 || !sameQuestion(qs[0], want) {
		return nil, fmt.Errorf("%w: question section doesn't echo %s", errorx.ErrDNSMismatch, want.Name)
	}

	for {
		ah, err := p.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			return nil, errorx.ErrDNSNoAnswer
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errorx.ErrDNSMalformed, err)
		}
		if ah.Type != dnsmessage.TypeA || ah.Class != dnsmessage.ClassINET {
			if err = p.SkipAnswer(); err != nil {
				return nil, fmt.Errorf("%w: %v", errorx.ErrDNSMalformed, err)
			}
			continue
		}
		r, err := p.AResource()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errorx.ErrDNSMalformed, err)
		}
		return net.IPv4(r.A[0], r.A[1], r.A[2], r.A[3]).To4(), nil
	}
}

func sameQuestion(got, want dnsmessage.Question) bool {
	return got.Type == want.Type && got.Class == want.Class &&
		strings.EqualFold(got.Name.String(), want.Name.String())
}

// Copyright (c) 2022 Andy Pan
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

package linkedlist

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func flatten(bs [][]byte) []byte {
	var p []byte
	for _, b := range bs {
		p = append(p, b...)
	}
	return p
}

func TestLinkedListBuffer_Basic(t *testing.T) {
	const maxBlocks = 100
	var (
		llb Buffer
		cum int
		buf bytes.Buffer
	)
	for i := 0; i < maxBlocks; i++ {
		n := rand.Intn(1024) + 128
		cum += n
		data := make([]byte, n)
		rand.Read(data)
		llb.PushBack(data)
		buf.Write(data)
	}
	require.EqualValues(t, maxBlocks, llb.Len())
	require.EqualValues(t, cum, llb.Buffered())

	p := flatten(llb.Peek(cum/4, 0))
	pn := len(p)
	require.GreaterOrEqual(t, pn, cum/4)
	require.EqualValues(t, buf.Bytes()[:pn], p)
	require.EqualValues(t, cum, llb.Buffered(), "peek must not consume")

	require.Len(t, llb.Peek(0, 3), 3)

	require.EqualValues(t, pn, llb.Discard(pn))
	buf.Next(pn)
	p = make([]byte, cum-pn)
	n, err := llb.Read(p)
	require.NoError(t, err)
	require.EqualValues(t, cum-pn, n)
	require.EqualValues(t, buf.Bytes(), p)
	require.True(t, llb.IsEmpty())

	_, err = llb.Read(p)
	require.ErrorIs(t, err, io.EOF)
}

func TestLinkedListBuffer_PartialDiscardKeepsOrder(t *testing.T) {
	var llb Buffer
	llb.PushBack([]byte("hello "))
	_, _ = llb.Write([]byte("world"))
	llb.PushBack(nil)
	require.EqualValues(t, 2, llb.Len())

	// Emulate a short writev that took 8 of 11 bytes.
	require.EqualValues(t, 8, llb.Discard(8))
	require.EqualValues(t, 3, llb.Buffered())
	require.Equal(t, "rld", string(flatten(llb.Peek(-1, -1))))

	require.EqualValues(t, 3, llb.Discard(100))
	require.True(t, llb.IsEmpty())
	require.Zero(t, llb.Discard(1))
}

type shortWriter struct {
	bytes.Buffer
	limit int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		p = p[:w.limit]
	}
	w.limit -= len(p)
	return w.Buffer.Write(p)
}

func TestLinkedListBuffer_WriteTo(t *testing.T) {
	var llb Buffer
	llb.PushBack([]byte("abc"))
	llb.PushBack([]byte("defg"))

	w := &shortWriter{limit: 5}
	n, err := llb.WriteTo(w)
	require.ErrorIs(t, err, io.ErrShortWrite)
	require.EqualValues(t, 5, n)
	require.Equal(t, "abcde", w.String())
	require.EqualValues(t, 2, llb.Buffered())

	w.limit = 10
	n, err = llb.WriteTo(w)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, "abcdefg", w.String())

	llb.PushBack([]byte("zzz"))
	llb.Reset()
	require.True(t, llb.IsEmpty())
	require.Zero(t, llb.Buffered())
}

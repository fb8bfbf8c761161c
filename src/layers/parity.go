// Copyright (c) 2020, Cloudflare. All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright notice,
// this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright notice,
// this list of conditions and the following disclaimer in the documentation
// and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its contributors
// may be used to endorse or promote products derived from this software without
// specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package layers

import (
	"math/bits"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
)

// Parity layer geometry: eight 7 bit values pack into seven bytes.
const (
	parityGroupLen = 8
	packedGroupLen = 7
	dataBits       = 7
)

// Parity drops payload bytes whose low bit is not the even parity of their
// top seven bits, then packs the top seven bits of each surviving byte into
// a continuous bit stream.
//
//	byte:  | d6 d5 d4 d3 d2 d1 d0 | p |
//	group: 8 bytes -> 56 data bits -> 7 bytes, big-endian
//
// A final group of k < 8 bytes yields the floor(7k/8) whole bytes at the
// start of its 7k bits; the remaining bits are padding.
type Parity struct{}

// Name implements Layer.
func (*Parity) Name() string {
	return "parity"
}

// Extract implements Layer.
func (*Parity) Extract(text string) (string, error) {
	b, err := payload.Extract(text)
	if err != nil {
		return "", err
	}

	s, err := common.DecodeUTF8(unpackParity(b))
	if err != nil {
		return "", errors.Wrap(err, "parity")
	}

	return s, nil
}

// Seal implements Layer. Every packed group is followed by one byte with
// the wrong parity bit.
func (*Parity) Seal(text string) (string, error) {
	in := []byte(text)
	noise := common.GetRandomBytes(len(in)/packedGroupLen + 1)

	var out []byte
	for g := 0; len(in) > 0; g++ {
		m := packedGroupLen
		if len(in) < m {
			m = len(in)
		}

		out = append(out, packGroup(in[:m])...)
		out = append(out, withParity(noise[g]>>1, true))
		in = in[m:]
	}

	return payload.Frame(title(2, "Parity Bit"), out), nil
}

// ParityValid reports whether the low bit of b is the even parity of its
// top seven bits.
func ParityValid(b byte) bool {
	return bits.OnesCount8(b>>1)%2 == int(b&1)
}

func unpackParity(b []byte) []byte {
	kept := make([]byte, 0, len(b))
	for _, c := range b {
		if ParityValid(c) {
			kept = append(kept, c)
		}
	}

	out := make([]byte, 0, len(kept)/parityGroupLen*packedGroupLen+packedGroupLen)
	for len(kept) > 0 {
		k := parityGroupLen
		if len(kept) < k {
			k = len(kept)
		}

		out = append(out, unpackGroup(kept[:k])...)
		kept = kept[k:]
	}

	return out
}

// unpackGroup packs the data bits of up to eight bytes and returns the whole
// bytes they form.
func unpackGroup(g []byte) []byte {
	var acc uint64
	for _, c := range g {
		acc = acc<<dataBits | uint64(c>>1)
	}

	nbits := dataBits * len(g)
	nbytes := nbits / 8
	acc >>= uint(nbits - 8*nbytes)

	out := make([]byte, nbytes)
	for i := nbytes - 1; i >= 0; i-- {
		out[i] = byte(acc)
		acc >>= 8
	}

	return out
}

// packGroup spreads up to seven bytes over the data bits of the fewest bytes
// that hold them, each with a valid parity bit.
func packGroup(g []byte) []byte {
	var acc uint64
	for _, c := range g {
		acc = acc<<8 | uint64(c)
	}

	k := (8*len(g) + dataBits - 1) / dataBits
	acc <<= uint(dataBits*k - 8*len(g))

	out := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		out[i] = withParity(byte(acc&0x7F), false)
		acc >>= dataBits
	}

	return out
}

func withParity(data byte, corrupt bool) byte {
	p := byte(bits.OnesCount8(data) % 2)
	if corrupt {
		p ^= 1
	}

	return data<<1 | p
}

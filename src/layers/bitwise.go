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

// FlipMask is xored into every byte of the bitwise layer.
const FlipMask = 0b01010101

// Bitwise undoes a per byte flip of every other bit followed by a rotation.
// Each payload byte b becomes rotr1(b ^ FlipMask).
type Bitwise struct{}

// Name implements Layer.
func (*Bitwise) Name() string {
	return "bitwise"
}

// Extract implements Layer.
func (*Bitwise) Extract(text string) (string, error) {
	b, err := payload.Extract(text)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = unflipRotate(c)
	}

	s, err := common.DecodeUTF8(out)
	if err != nil {
		return "", errors.Wrap(err, "bitwise")
	}

	return s, nil
}

// Seal implements Layer.
func (*Bitwise) Seal(text string) (string, error) {
	in := []byte(text)
	out := make([]byte, len(in))
	for i, c := range in {
		out[i] = bits.RotateLeft8(c, 1) ^ FlipMask
	}

	return payload.Frame(title(1, "Bitwise Operations"), out), nil
}

func unflipRotate(b byte) byte {
	return bits.RotateLeft8(b^FlipMask, -1)
}

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

package checksum

import (
	"testing"
)

func TestEmpty(t *testing.T) {
	var c Checksum16
	if got := c.Checksum(); got != 0xFFFF {
		t.Errorf("expected 0xffff, got %#04x", got)
	}
}

func TestCarryFolds(t *testing.T) {
	var c Checksum16
	c.Add(0x0000)
	c.Add(0xFFFF)
	if got := c.Checksum(); got != 0x0000 {
		t.Errorf("expected 0x0000, got %#04x", got)
	}

	c = Checksum16{}
	c.Add(0xFFFF)
	c.Add(0x0001)
	// 0xffff + 0x0001 = 0x1_0000 -> 0x0001
	if got := c.Checksum(); got != 0xFFFE {
		t.Errorf("expected 0xfffe, got %#04x", got)
	}
}

// Well known worked example: 4500 0073 0000 4000 4011 [b861] c0a8 0001 c0a8 00c7.
func TestIPv4HeaderVector(t *testing.T) {
	header := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01, 0xc0, 0xa8, 0x00, 0xc7,
	}

	var c Checksum16
	c.AddBytes(header)
	if got := c.Checksum(); got != 0xb861 {
		t.Errorf("expected 0xb861, got %#04x", got)
	}

	// Summing the header with its checksum in place verifies to zero.
	header[10], header[11] = 0xb8, 0x61
	c = Checksum16{}
	c.AddBytes(header)
	if got := c.Checksum(); got != 0 {
		t.Errorf("expected 0, got %#04x", got)
	}
}

func TestAddBytesOddLength(t *testing.T) {
	var a, b Checksum16
	a.AddBytes([]byte{0x12, 0x34, 0x56})
	b.Add(0x1234)
	b.Add(0x5600)

	if a.Checksum() != b.Checksum() {
		t.Errorf("odd trailing byte must be padded: %#04x != %#04x", a.Checksum(), b.Checksum())
	}
}

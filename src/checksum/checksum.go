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

// Package checksum implements the 16 bit one's complement checksum shared by
// the IPv4 header and UDP (RFC 1071).
package checksum

// Checksum16 accumulates 16 bit words with end-around carry. The zero value
// is ready to use; use a fresh accumulator per checksum.
type Checksum16 struct {
	sum uint16
}

// Add folds word into the running sum.
func (c *Checksum16) Add(word uint16) {
	s := uint32(c.sum) + uint32(word)
	c.sum = uint16(s&0xFFFF + s>>16)
}

// AddBytes adds b as big-endian words. An odd trailing byte is padded with a
// zero low byte.
func (c *Checksum16) AddBytes(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		c.Add(uint16(b[i])<<8 | uint16(b[i+1]))
	}

	if len(b)%2 == 1 {
		c.Add(uint16(b[len(b)-1]) << 8)
	}
}

// Checksum returns the one's complement of the accumulated sum.
func (c *Checksum16) Checksum() uint16 {
	return ^c.sum
}

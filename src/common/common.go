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

package common

import (
	"crypto/rand"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// GetRandomBytes returns n random bytes.
func GetRandomBytes(n int) []byte {
	var key []byte
	for success := false; !success; {
		key = make([]byte, n)
		if _, err := rand.Read(key); err != nil {
			continue
		}

		success = true
	}

	return key
}

// Marshaler is the interface implemented by types that can be marshaled
// (converted to raw bytes).
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is the interface implemented by types that can be unmarshaled
// (converted from raw bytes to a struct).
type Unmarshaler interface {
	Unmarshal([]byte) (int, error)
}

// UnmarshalList unmarshals a list of values that are unmarshal-able.
func UnmarshalList(toUnmarshal []Unmarshaler, data []byte) (int, error) {
	totalBytes := 0

	for _, tu := range toUnmarshal {
		bytesRead, err := tu.Unmarshal(data[totalBytes:])
		if err != nil {
			return 0, err
		}

		totalBytes += bytesRead
	}

	return totalBytes, nil
}

// MarshalUnmarshaler is a type that can marshal and unmarshal itself.
type MarshalUnmarshaler interface {
	Marshaler
	Unmarshaler
}

// XORBytes xors b into a. Byte slices a and b must be of equal length.
func XORBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, errors.New("XORBytes: byte slices must have equal length")
	}

	for i := 0; i < len(a); i++ {
		a[i] ^= b[i]
	}

	return a, nil
}

// XORCycle xors src with key repeated from its first byte and returns a new
// slice of len(src).
func XORCycle(src, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("XORCycle: empty key")
	}

	out := make([]byte, len(src))
	for i, b := range src {
		out[i] = b ^ key[i%len(key)]
	}

	return out, nil
}

// DecodeUTF8 returns b as a string, or ErrorEncoding if b is not valid UTF-8.
func DecodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrorEncoding
	}

	return string(b), nil
}

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

// Package keywrap implements the AES key wrap algorithm of RFC 3394, with
// support for an alternative initial value.
package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/pkg/errors"
)

const (
	// SemiblockSize is the size of the 64 bit blocks the algorithm works on.
	SemiblockSize = 8

	// MinWrappedLen is the shortest wrapped key: the integrity block plus
	// two semiblocks of key.
	MinWrappedLen = 3 * SemiblockSize

	rounds = 6
)

// DefaultIV is the initial value of RFC 3394 §2.2.3.1.
var DefaultIV = []byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// Unwrap recovers the key wrapped under kek. The recovered integrity block
// must equal iv, or DefaultIV if iv is nil.
//
// It follows the index based procedure of RFC 3394 §2.2.2:
//
//	For j = 5 to 0
//	    For i = n to 1
//	        B = AES-1(K, (A ^ t) | R[i]) where t = n*j+i
//	        A = MSB(64, B)
//	        R[i] = LSB(64, B)
func Unwrap(kek, wrapped, iv []byte) ([]byte, error) {
	if iv == nil {
		iv = DefaultIV
	}

	if len(iv) != SemiblockSize {
		return nil, errors.Wrapf(common.ErrorInvalidKeyMaterial, "iv of %d bytes", len(iv))
	}

	if len(wrapped) < MinWrappedLen || len(wrapped)%SemiblockSize != 0 {
		return nil, errors.Wrapf(common.ErrorInvalidKeyMaterial, "wrapped key of %d bytes", len(wrapped))
	}

	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/SemiblockSize - 1
	r := make([]byte, n*SemiblockSize)
	copy(r, wrapped[SemiblockSize:])

	var a [SemiblockSize]byte
	copy(a[:], wrapped[:SemiblockSize])

	var b [aes.BlockSize]byte
	for j := rounds - 1; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			ri := r[i*SemiblockSize : (i+1)*SemiblockSize]

			t := uint64(n*j + i + 1)
			binary.BigEndian.PutUint64(b[:SemiblockSize], binary.BigEndian.Uint64(a[:])^t)
			copy(b[SemiblockSize:], ri)

			block.Decrypt(b[:], b[:])

			copy(a[:], b[:SemiblockSize])
			copy(ri, b[SemiblockSize:])
		}
	}

	if subtle.ConstantTimeCompare(a[:], iv) != 1 {
		return nil, common.ErrorIntegrityCheckFailed
	}

	return r, nil
}

// Wrap wraps key under kek with the given initial value, or DefaultIV if iv
// is nil (RFC 3394 §2.2.1).
func Wrap(kek, key, iv []byte) ([]byte, error) {
	if iv == nil {
		iv = DefaultIV
	}

	if len(iv) != SemiblockSize {
		return nil, errors.Wrapf(common.ErrorInvalidKeyMaterial, "iv of %d bytes", len(iv))
	}

	if len(key) < 2*SemiblockSize || len(key)%SemiblockSize != 0 {
		return nil, errors.Wrapf(common.ErrorInvalidKeyMaterial, "key of %d bytes", len(key))
	}

	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(key) / SemiblockSize
	out := make([]byte, (n+1)*SemiblockSize)
	copy(out[SemiblockSize:], key)

	var a [SemiblockSize]byte
	copy(a[:], iv)

	var b [aes.BlockSize]byte
	for j := 0; j < rounds; j++ {
		for i := 0; i < n; i++ {
			ri := out[(i+1)*SemiblockSize : (i+2)*SemiblockSize]

			copy(b[:SemiblockSize], a[:])
			copy(b[SemiblockSize:], ri)

			block.Encrypt(b[:], b[:])

			t := uint64(n*j + i + 1)
			binary.BigEndian.PutUint64(a[:], binary.BigEndian.Uint64(b[:SemiblockSize])^t)
			copy(ri, b[SemiblockSize:])
		}
	}

	copy(out, a[:])

	return out, nil
}

func newCipher(kek []byte) (cipher.Block, error) {
	switch len(kek) {
	case 16, 24, 32:
	default:
		return nil, errors.Wrapf(common.ErrorInvalidKeyMaterial, "key encrypting key of %d bytes", len(kek))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, common.ErrorInvalidKeyMaterial.Wrap(err)
	}

	return block, nil
}

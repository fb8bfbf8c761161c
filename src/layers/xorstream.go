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
	"bytes"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
)

// XORStream undoes a repeating key XOR. The key is never transmitted: the
// plaintext holds a run of known bytes at a fixed offset, so the key falls
// out of the ciphertext at that offset.
//
//	key[(Offset+i) % len(key)] = ciphertext[Offset+i] ^ known[i]
type XORStream struct {
	// Offset of the known plaintext window.
	Offset int
	// Known is the plaintext under the window; its length is the key length.
	Known []byte
}

// NewXORStream returns the XOR layer for the configured window.
func NewXORStream(cfg config.StreamKeyConfig) *XORStream {
	return &XORStream{
		Offset: cfg.Offset,
		Known:  cfg.KnownPlaintextWindow(),
	}
}

// Name implements Layer.
func (*XORStream) Name() string {
	return "xor"
}

// Extract implements Layer.
func (x *XORStream) Extract(text string) (string, error) {
	b, err := payload.Extract(text)
	if err != nil {
		return "", err
	}

	key, err := x.DeriveKey(b)
	if err != nil {
		return "", err
	}

	plain, err := common.XORCycle(b, key)
	if err != nil {
		return "", err
	}

	s, err := common.DecodeUTF8(plain)
	if err != nil {
		return "", errors.Wrap(err, "xor")
	}

	return s, nil
}

// DeriveKey recovers the key from the ciphertext window. The key is cycled
// from the start of the payload, so window byte i is key byte
// (Offset+i) % len(key); when Offset is a multiple of the key length the
// window is the key as is.
func (x *XORStream) DeriveKey(ciphertext []byte) ([]byte, error) {
	n := len(x.Known)
	if n == 0 {
		return nil, errors.Wrap(common.ErrorInvalidConfig, "empty known plaintext")
	}

	if x.Offset < 0 || x.Offset+n > len(ciphertext) {
		return nil, errors.Wrapf(common.ErrorTruncatedPayload, "key window %d+%d in %d bytes", x.Offset, n, len(ciphertext))
	}

	window := append([]byte(nil), ciphertext[x.Offset:x.Offset+n]...)
	if _, err := common.XORBytes(window, x.Known); err != nil {
		return nil, err
	}

	key := make([]byte, n)
	for i, k := range window {
		key[(x.Offset+i)%n] = k
	}

	return key, nil
}

// Seal implements Layer. The known plaintext must sit at Offset. When text
// does not already carry it there, the banner in front of the encoded block
// is padded so that it does; the next layer only reads the block.
func (x *XORStream) Seal(text string) (string, error) {
	n := len(x.Known)
	if n == 0 {
		return "", errors.Wrap(common.ErrorInvalidConfig, "empty known plaintext")
	}

	in, err := x.placeWindow([]byte(text))
	if err != nil {
		return "", err
	}

	ciphertext, err := common.XORCycle(in, common.GetRandomBytes(n))
	if err != nil {
		return "", err
	}

	return payload.Frame(title(3, "XOR Encryption"), ciphertext), nil
}

func (x *XORStream) placeWindow(in []byte) ([]byte, error) {
	n := len(x.Known)
	if x.Offset < 0 {
		return nil, errors.Wrapf(common.ErrorInvalidConfig, "key window offset %d", x.Offset)
	}

	if x.Offset+n <= len(in) && bytes.Equal(in[x.Offset:x.Offset+n], x.Known) {
		return in, nil
	}

	head := bytes.Index(in, []byte(payload.OpenMarker))
	if head < 0 || head > x.Offset {
		return nil, errors.Wrapf(common.ErrorInvalidConfig, "cannot place known plaintext at offset %d", x.Offset)
	}

	var b bytes.Buffer
	b.Write(in[:head])
	b.Write(bytes.Repeat([]byte{' '}, x.Offset-head))
	b.Write(x.Known)
	b.WriteString("\n\n")
	b.Write(in[head:])

	return b.Bytes(), nil
}

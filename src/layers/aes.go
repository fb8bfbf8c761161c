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
	"crypto/aes"
	"crypto/cipher"
	"strings"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/keywrap"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// Sizes of the fields at the start of the AES layer payload.
const (
	KEKLen        = 32
	WrapIVLen     = keywrap.SemiblockSize
	WrappedKeyLen = 40
	IVLen         = aes.BlockSize

	keyLen = WrappedKeyLen - keywrap.SemiblockSize
)

// AES decrypts a payload that carries its own wrapped key.
//
//	| KEK (32) | wrap IV (8) | wrapped key (40) | CBC IV (16) | ciphertext ... |
//
// The key is unwrapped with RFC 3394 under the KEK and the wrap IV, then
// decrypts the ciphertext in CBC mode. Padding, if any, is left in place.
type AES struct{}

// Name implements Layer.
func (*AES) Name() string {
	return "aes"
}

// Extract implements Layer.
func (*AES) Extract(text string) (string, error) {
	b, err := payload.Extract(text)
	if err != nil {
		return "", err
	}

	var kek, wrapIV, wrapped, iv []byte

	s := cryptobyte.String(b)
	if !s.ReadBytes(&kek, KEKLen) ||
		!s.ReadBytes(&wrapIV, WrapIVLen) ||
		!s.ReadBytes(&wrapped, WrappedKeyLen) ||
		!s.ReadBytes(&iv, IVLen) {
		return "", errors.Wrapf(common.ErrorTruncatedPayload, "aes header needs %d bytes, have %d",
			KEKLen+WrapIVLen+WrappedKeyLen+IVLen, len(b))
	}

	key, err := keywrap.Unwrap(kek, wrapped, wrapIV)
	if err != nil {
		return "", errors.Wrap(err, "unwrap key")
	}

	plain, err := decryptCBC(key, iv, s)
	if err != nil {
		return "", err
	}

	out, err := common.DecodeUTF8(plain)
	if err != nil {
		return "", errors.Wrap(err, "aes")
	}

	return out, nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.ErrorInvalidKeyMaterial.Wrap(err)
	}

	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.Wrapf(common.ErrorMalformedCiphertext, "%d bytes", len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return plain, nil
}

// Seal implements Layer. text is padded with spaces to a whole number of
// blocks, since Extract does not strip padding.
func (*AES) Seal(text string) (string, error) {
	if r := len(text) % aes.BlockSize; r != 0 {
		text += strings.Repeat(" ", aes.BlockSize-r)
	}

	kek := common.GetRandomBytes(KEKLen)
	wrapIV := common.GetRandomBytes(WrapIVLen)
	key := common.GetRandomBytes(keyLen)
	iv := common.GetRandomBytes(IVLen)

	wrapped, err := keywrap.Wrap(kek, key, wrapIV)
	if err != nil {
		return "", errors.Wrap(err, "wrap key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(text))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, []byte(text))

	var b cryptobyte.Builder
	b.AddBytes(kek)
	b.AddBytes(wrapIV)
	b.AddBytes(wrapped)
	b.AddBytes(iv)
	b.AddBytes(ciphertext)

	raw, err := b.Bytes()
	if err != nil {
		return "", err
	}

	return payload.Frame(title(5, "Advanced Encryption Standard"), raw), nil
}

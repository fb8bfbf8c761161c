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
	"strings"
	"testing"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/packet"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "==[ Layer 2/6: Parity Bit ]==\n\nHeads up: multi-byte text ✓ survives every layer, ünïcödé included.\n"

func defaultLayers(t *testing.T) []Layer {
	t.Helper()

	ls, err := New(config.Default())
	require.NoError(t, err)

	return ls
}

func TestNewOrder(t *testing.T) {
	ls := defaultLayers(t)
	require.Len(t, ls, LayerCount)
	assert.Equal(t, []string{"ascii85", "bitwise", "parity", "xor", "network", "aes"}, Names(ls))

	x, ok := ls[3].(*XORStream)
	require.True(t, ok)
	assert.Equal(t, 109*32, x.Offset)
	assert.Equal(t, bytes.Repeat([]byte("="), 32), x.Known)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Layers.Filter.Destination = "not an address"

	_, err := New(cfg)
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)
}

func TestLookup(t *testing.T) {
	ls := defaultLayers(t)

	i, l, err := Lookup(ls, "4")
	require.NoError(t, err)
	assert.Equal(t, 4, i)
	assert.Equal(t, "network", l.Name())

	i, l, err = Lookup(ls, "parity")
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	assert.Equal(t, "parity", l.Name())

	for _, key := range []string{"6", "-1", "onion"} {
		_, _, err := Lookup(ls, key)
		assert.True(t, errors.Is(err, common.ErrorUnknownLayer), "%s: got %v", key, err)
	}
}

func TestEveryLayerNeedsAPayload(t *testing.T) {
	for _, l := range defaultLayers(t) {
		_, err := l.Extract("just prose, no payload")
		assert.True(t, errors.Is(err, common.ErrorNotFound), "%s: got %v", l.Name(), err)
	}
}

func TestSealExtractRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Layers.StreamKey.Offset = 32

	ls, err := New(cfg)
	require.NoError(t, err)

	// The XOR layer needs its known plaintext, which a framed layer has in
	// its opening rule.
	text := payload.Frame("==[ inner ]", []byte(sample))

	for _, l := range ls {
		t.Run(l.Name(), func(t *testing.T) {
			in := text
			if _, ok := l.(*AES); ok {
				in += strings.Repeat(" ", (16-len(in)%16)%16)
			}

			sealed, err := l.Seal(in)
			require.NoError(t, err)

			first, err := l.Extract(sealed)
			require.NoError(t, err)
			assert.Equal(t, in, first)

			second, err := l.Extract(sealed)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestBitwiseVectors(t *testing.T) {
	assert.Equal(t, byte(0xAA), unflipRotate(0x00))
	assert.Equal(t, byte(0x00), unflipRotate(0x55))
	assert.Equal(t, byte(0x80), unflipRotate(0x54))
	assert.Equal(t, byte(0x41), unflipRotate(0xD7))

	out, err := (&Bitwise{}).Extract(payload.Encode([]byte{0xD7, 0xD7}))
	require.NoError(t, err)
	assert.Equal(t, "AA", out)

	// 0x54 becomes a lone continuation byte.
	_, err = (&Bitwise{}).Extract(payload.Encode([]byte{0x54}))
	assert.True(t, errors.Is(err, common.ErrorEncoding), "got %v", err)
}

func TestParityValid(t *testing.T) {
	assert.True(t, ParityValid(0b00000000))
	assert.False(t, ParityValid(0b00000001))
	assert.True(t, ParityValid(0b00000011))
	assert.False(t, ParityValid(0b00000010))
	assert.True(t, ParityValid(0b11111111))
	assert.False(t, ParityValid(0b11111110))
}

func TestParityUnpack(t *testing.T) {
	full := bytes.Repeat([]byte{0xFF}, 8)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 7), unpackGroup(full))

	// 7 data bits 1000001 then 0000000: the first whole byte is 10000010.
	assert.Equal(t, []byte{0x82}, unpackGroup([]byte{0x82, 0x00}))
	assert.Empty(t, unpackGroup([]byte{0x82}))

	// Bytes with a bad parity bit are dropped before grouping.
	in := append([]byte{0x01, 0x02}, full...)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 7), unpackParity(in))
}

func TestParityPackedGroups(t *testing.T) {
	for n := 0; n <= 3*packedGroupLen; n++ {
		in := common.GetRandomBytes(n)

		var packed []byte
		for rest := in; len(rest) > 0; {
			m := packedGroupLen
			if len(rest) < m {
				m = len(rest)
			}
			packed = append(packed, packGroup(rest[:m])...)
			rest = rest[m:]
		}

		for _, b := range packed {
			assert.True(t, ParityValid(b))
		}

		assert.True(t, bytes.Equal(in, unpackParity(packed)), "%d bytes", n)
	}
}

func TestXORStreamDeriveKey(t *testing.T) {
	x := &XORStream{Offset: 6, Known: []byte("====")}
	text := "abcdef====ghijklmn"

	sealed, err := x.Seal(text)
	require.NoError(t, err)

	out, err := x.Extract(sealed)
	require.NoError(t, err)
	assert.Equal(t, text, out)

	ciphertext, err := payload.Extract(sealed)
	require.NoError(t, err)

	key, err := x.DeriveKey(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, byte('a')^ciphertext[0], key[0])
	assert.Equal(t, byte('j')^ciphertext[13], key[1])
}

func TestXORStreamDefaultWindow(t *testing.T) {
	x := NewXORStream(config.Default().Layers.StreamKey)
	require.Equal(t, 109*32, x.Offset)

	text := strings.Repeat("a", 109*32) + strings.Repeat("=", 32) + strings.Repeat("tail ", 40)
	require.Greater(t, len(text), 110*32)

	sealed, err := x.Seal(text)
	require.NoError(t, err)

	out, err := x.Extract(sealed)
	require.NoError(t, err)
	assert.Equal(t, text, out)

	ciphertext, err := payload.Extract(sealed)
	require.NoError(t, err)

	key, err := x.DeriveKey(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, byte('a')^ciphertext[0], key[0])
	assert.Equal(t, byte('t')^ciphertext[110*32], key[0])
}

func TestXORStreamPadsBanner(t *testing.T) {
	x := NewXORStream(config.Default().Layers.StreamKey)

	text := payload.Frame("==[ inner ]", []byte(sample))
	head := strings.Index(text, payload.OpenMarker)
	require.Less(t, head, x.Offset)

	sealed, err := x.Seal(text)
	require.NoError(t, err)

	out, err := x.Extract(sealed)
	require.NoError(t, err)

	assert.Equal(t, text[:head], out[:head])
	assert.Equal(t, strings.Repeat("=", 32), out[x.Offset:x.Offset+32])

	want, err := payload.Extract(text)
	require.NoError(t, err)

	got, err := payload.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestXORStreamErrors(t *testing.T) {
	x := &XORStream{Offset: 109 * 32, Known: bytes.Repeat([]byte("="), 32)}

	_, err := x.Extract(payload.Encode(make([]byte, 109*32+31)))
	assert.True(t, errors.Is(err, common.ErrorTruncatedPayload), "got %v", err)

	_, err = x.Seal(strings.Repeat("a", 4000))
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)

	_, err = (&XORStream{Offset: 4, Known: []byte("==")}).Seal("abcdefgh<~~>")
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)

	_, err = (&XORStream{Offset: -1, Known: []byte("==")}).Seal("<~~>")
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)

	_, err = (&XORStream{}).Extract(payload.Encode([]byte("x")))
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)
}

func TestNetworkSealAddsNoise(t *testing.T) {
	n := &Network{Filter: mustFilter(t), ChunkSize: 8}

	sealed, err := n.Seal(sample)
	require.NoError(t, err)

	raw, err := payload.Extract(sealed)
	require.NoError(t, err)

	datagrams, err := packet.Parse(raw)
	require.NoError(t, err)

	chunks := (len(sample) + 7) / 8
	assert.Len(t, datagrams, 2*chunks)

	accepted := 0
	for _, d := range datagrams {
		if n.Filter.Accepts(d) {
			accepted++
		}
	}
	assert.Equal(t, chunks, accepted)

	out, err := n.Extract(sealed)
	require.NoError(t, err)
	assert.Equal(t, sample, out)
}

func TestNetworkPreconditionIsFatal(t *testing.T) {
	n := &Network{Filter: mustFilter(t)}

	raw, err := packet.Build(packet.Endpoints{}, nil)
	assert.Error(t, err)
	assert.Nil(t, raw)

	bogus := make([]byte, packet.InternetHeaderLen+packet.UDPHeaderLen)
	bogus[0] = 0x45
	bogus[9] = 6

	_, err = n.Extract(payload.Encode(bogus))
	assert.True(t, errors.Is(err, common.ErrorPreconditionViolation), "got %v", err)
}

func TestAESErrors(t *testing.T) {
	a := &AES{}

	sealed, err := a.Seal("sixteen byte msg")
	require.NoError(t, err)

	raw, err := payload.Extract(sealed)
	require.NoError(t, err)

	t.Run("flipped wrapped key", func(t *testing.T) {
		corrupted := append([]byte(nil), raw...)
		corrupted[KEKLen+WrapIVLen+3] ^= 0x10

		_, err := a.Extract(payload.Encode(corrupted))
		assert.True(t, errors.Is(err, common.ErrorIntegrityCheckFailed), "got %v", err)
	})

	t.Run("flipped wrap iv", func(t *testing.T) {
		corrupted := append([]byte(nil), raw...)
		corrupted[KEKLen] ^= 0x01

		_, err := a.Extract(payload.Encode(corrupted))
		assert.True(t, errors.Is(err, common.ErrorIntegrityCheckFailed), "got %v", err)
	})

	t.Run("unaligned ciphertext", func(t *testing.T) {
		_, err := a.Extract(payload.Encode(append(append([]byte(nil), raw...), 0x00)))
		assert.True(t, errors.Is(err, common.ErrorMalformedCiphertext), "got %v", err)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := a.Extract(payload.Encode(raw[:KEKLen+WrapIVLen+WrappedKeyLen]))
		assert.True(t, errors.Is(err, common.ErrorTruncatedPayload), "got %v", err)
	})

	t.Run("empty ciphertext", func(t *testing.T) {
		out, err := a.Extract(payload.Encode(raw[:KEKLen+WrapIVLen+WrappedKeyLen+IVLen]))
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestAESKeepsPadding(t *testing.T) {
	a := &AES{}

	sealed, err := a.Seal("short")
	require.NoError(t, err)

	out, err := a.Extract(sealed)
	require.NoError(t, err)
	assert.Equal(t, "short"+strings.Repeat(" ", 11), out)
}

func mustFilter(t *testing.T) *packet.Filter {
	t.Helper()

	f, err := NewFilter(config.Default().Layers.Filter)
	require.NoError(t, err)

	return f
}

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
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestXORBytes(t *testing.T) {
	a := []byte{0x00, 0xff, 0x55}
	b := []byte{0xff, 0xff, 0x0f}

	out, err := XORBytes(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(out, []byte{0xff, 0x00, 0x5a}) {
		t.Errorf("unexpected xor result %x", out)
	}

	if _, err := XORBytes([]byte{1}, []byte{1, 2}); err == nil {
		t.Errorf("expected length mismatch error")
	}
}

func TestXORCycle(t *testing.T) {
	out, err := XORCycle([]byte("abcde"), []byte{0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{'a' ^ 1, 'b' ^ 2, 'c' ^ 1, 'd' ^ 2, 'e' ^ 1}
	if !bytes.Equal(out, want) {
		t.Errorf("expected %x, got %x", want, out)
	}

	if _, err := XORCycle([]byte("a"), nil); err == nil {
		t.Errorf("expected empty key error")
	}
}

func TestDecodeUTF8(t *testing.T) {
	s, err := DecodeUTF8([]byte("héllo"))
	if err != nil || s != "héllo" {
		t.Errorf("expected héllo, got %q (%v)", s, err)
	}

	_, err = DecodeUTF8([]byte{0xff, 0xfe})
	if !errors.Is(err, ErrorEncoding) {
		t.Errorf("expected %s, got %v", ErrorEncoding, err)
	}
}

func TestErrorWrapAndKind(t *testing.T) {
	cause := errors.New("bad checksum")
	err := errors.Wrap(ErrorIntegrityCheckFailed.Wrap(cause), "layer 5")

	if !errors.Is(err, ErrorIntegrityCheckFailed) {
		t.Errorf("expected wrapped error to match %s", ErrorIntegrityCheckFailed)
	}

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped error to match its cause")
	}

	if errors.Is(err, ErrorNotFound) {
		t.Errorf("unexpected match with %s", ErrorNotFound)
	}

	if k := Kind(err); k != ErrorIntegrityCheckFailed {
		t.Errorf("expected kind %s, got %s", ErrorIntegrityCheckFailed, k)
	}

	if k := Kind(cause); k != ErrorOtherError {
		t.Errorf("expected kind %s, got %s", ErrorOtherError, k)
	}

	if ErrorNotFound.Wrap(nil) != nil {
		t.Errorf("wrapping nil must return nil")
	}
}

func TestMarshalErrorAsJSON(t *testing.T) {
	raw, err := MarshalErrorAsJSON(errors.Wrap(ErrorMalformedCiphertext.Wrap(errors.New("17 bytes")), "decrypt"))
	if err != nil {
		t.Fatal(err)
	}

	if string(raw) != "6" {
		t.Errorf("expected code 6, got %s", raw)
	}

	raw, err = MarshalErrorAsJSON(errors.New("plain"))
	if err != nil {
		t.Fatal(err)
	}

	if string(raw) != "11" {
		t.Errorf("expected code 11, got %s", raw)
	}
}

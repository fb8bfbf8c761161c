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

// Package payload locates and decodes the ASCII85 block embedded in every
// onion layer.
//
// A layer is free text followed by a single Adobe flavored ASCII85 block:
//
//	==[ Payload ]===============================================
//
//	<~70!<J$P...
//	...~>
//
// The block runs from the first "<~" to the last "~>" and may span lines.
package payload

import (
	"encoding/ascii85"
	"math"
	"regexp"
	"strings"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/pkg/errors"
)

const (
	// OpenMarker starts an encoded block.
	OpenMarker = "<~"
	// CloseMarker ends an encoded block.
	CloseMarker = "~>"

	// LineWidth is the column at which Encode wraps its output.
	LineWidth = 76
	// RuleWidth is the width of the "=" rules drawn by Frame.
	RuleWidth = 64
)

var blockPattern = regexp.MustCompile(`(?s)<~.*~>`)

// Extract finds the encoded block in text and returns the bytes it encodes.
func Extract(text string) ([]byte, error) {
	block := blockPattern.FindString(text)
	if block == "" {
		return nil, common.ErrorNotFound
	}

	return Decode(block)
}

// Decode decodes a single "<~ ... ~>" block. Whitespace inside the block is
// ignored and "z" stands for four zero bytes.
func Decode(block string) ([]byte, error) {
	body := strings.TrimPrefix(block, OpenMarker)
	body = strings.TrimSuffix(body, CloseMarker)

	if err := checkGroups(body); err != nil {
		return nil, err
	}

	dst := make([]byte, 4*len(body))
	n, _, err := ascii85.Decode(dst, []byte(body), true)
	if err != nil {
		return nil, common.ErrorMalformedEncoding.Wrap(err)
	}

	return dst[:n], nil
}

// checkGroups rejects a group whose value does not fit in 32 bits, which
// ascii85.Decode would wrap. A short final group is padded with 'u' first.
func checkGroups(body string) error {
	var v uint64
	var nb int

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c <= ' ':
			continue
		case c == 'z' && nb == 0:
			continue
		case '!' <= c && c <= 'u':
			v = v*85 + uint64(c-'!')
			nb++
		default:
			// invalid characters are reported by ascii85.Decode
			return nil
		}

		if nb == 5 {
			if v > math.MaxUint32 {
				return errors.Wrapf(common.ErrorMalformedEncoding, "group ending at %d overflows", i)
			}

			v, nb = 0, 0
		}
	}

	if nb > 0 {
		for ; nb < 5; nb++ {
			v = v*85 + 84
		}

		if v > math.MaxUint32 {
			return errors.Wrap(common.ErrorMalformedEncoding, "final group overflows")
		}
	}

	return nil
}

// Encode returns b as a delimited ASCII85 block wrapped at LineWidth columns.
func Encode(b []byte) string {
	enc := make([]byte, ascii85.MaxEncodedLen(len(b)))
	enc = enc[:ascii85.Encode(enc, b)]

	raw := OpenMarker + string(enc)

	// The close marker always lands on the last line so it is never split.
	var sb strings.Builder
	for len(raw) > LineWidth {
		sb.WriteString(raw[:LineWidth])
		sb.WriteByte('\n')
		raw = raw[LineWidth:]
	}
	sb.WriteString(raw)
	sb.WriteString(CloseMarker)

	return sb.String()
}

// Frame lays b out the way a layer is published: a title between two rules,
// a blank line, then the encoded block.
func Frame(title string, b []byte) string {
	rule := strings.Repeat("=", RuleWidth)

	var sb strings.Builder
	sb.WriteString(rule)
	sb.WriteByte('\n')
	sb.WriteString(title)
	sb.WriteByte('\n')
	sb.WriteString(rule)
	sb.WriteString("\n\n")
	sb.WriteString(Encode(b))
	sb.WriteByte('\n')

	return sb.String()
}

// ExtractText is Extract followed by a UTF-8 check, for layers whose payload
// is already the next layer.
func ExtractText(text string) (string, error) {
	b, err := Extract(text)
	if err != nil {
		return "", err
	}

	out, err := common.DecodeUTF8(b)
	if err != nil {
		return "", errors.Wrap(err, "decode payload")
	}

	return out, nil
}

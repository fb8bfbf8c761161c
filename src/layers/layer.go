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

// Package layers implements the layers of the onion. Each layer locates the
// ASCII85 payload in its input text, decodes it, and undoes one obfuscation
// to produce the text of the next layer.
package layers

import (
	"fmt"
	"strconv"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/packet"
	"github.com/pkg/errors"
)

// Layer is one stage of the onion.
type Layer interface {
	// Name is a short, stable identifier for the layer.
	Name() string
	// Extract peels the layer: it returns the text of the next layer.
	Extract(text string) (string, error)
	// Seal is the inverse of Extract: it returns a layer whose Extract
	// yields text.
	Seal(text string) (string, error)
}

// New returns the layers of the onion described by cfg, outermost first.
func New(cfg *config.Config) ([]Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	filter, err := NewFilter(cfg.Layers.Filter)
	if err != nil {
		return nil, err
	}

	return []Layer{
		&ASCII85{},
		&Bitwise{},
		&Parity{},
		NewXORStream(cfg.Layers.StreamKey),
		&Network{Filter: filter},
		&AES{},
	}, nil
}

// NewFilter converts the configured filter to a packet.Filter.
func NewFilter(fc config.FilterConfig) (*packet.Filter, error) {
	src, err := fc.SourceAddr()
	if err != nil {
		return nil, err
	}

	dst, err := fc.DestinationAddr()
	if err != nil {
		return nil, err
	}

	return &packet.Filter{
		Source:          src,
		Destination:     dst,
		DestinationPort: fc.DestinationPort,
	}, nil
}

// Lookup finds a layer by index or by name.
func Lookup(layers []Layer, key string) (int, Layer, error) {
	if i, err := strconv.Atoi(key); err == nil {
		if i < 0 || i >= len(layers) {
			return 0, nil, errors.Wrapf(common.ErrorUnknownLayer, "index %d", i)
		}

		return i, layers[i], nil
	}

	for i, l := range layers {
		if l.Name() == key {
			return i, l, nil
		}
	}

	return 0, nil, errors.Wrapf(common.ErrorUnknownLayer, "name %q", key)
}

// Names returns the names of layers, in order.
func Names(layers []Layer) []string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.Name()
	}

	return names
}

func title(index int, what string) string {
	return fmt.Sprintf("==[ Layer %d/%d: %s ]", index, LayerCount-1, what)
}

// LayerCount is the number of layers returned by New.
const LayerCount = 6

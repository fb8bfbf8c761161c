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

package integrationtests

import (
	"log"
	"strings"
	"testing"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/ohttp"
	"github.com/cloudflare/data-onion/src/onion"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const core = "==[ The Core ]==\n\nYou have reached the center of the onion.                    \n"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Layers.StreamKey.Offset = payload.RuleWidth / 2

	return cfg
}

func wrapCore(cfg *config.Config) (string, []layers.Layer, error) {
	ls, err := layers.New(cfg)
	if err != nil {
		return "", nil, err
	}

	wrapped, err := onion.Wrap(ls, core)
	if err != nil {
		return "", nil, err
	}

	return wrapped, ls, nil
}

func TestPeelIntegration(t *testing.T) {
	cfg := testConfig()

	wrapped, _, err := wrapCore(cfg)
	require.NoError(t, err)

	err = IntegrationTest(func(c *ohttp.ClientConfig) error {
		log.Println("Running peel client...")

		outputs, err := c.Peel(wrapped)
		if err != nil {
			return err
		}

		if got := outputs[len(outputs)-1]; got != core {
			return errors.Errorf("core mismatch: %q", got)
		}

		return nil
	}, cfg)
	require.NoError(t, err)
}

func TestLayerByLayerIntegration(t *testing.T) {
	cfg := testConfig()

	wrapped, ls, err := wrapCore(cfg)
	require.NoError(t, err)

	sink := &onion.MemorySink{}
	_, err = onion.NewPeeler(ls, sink).Peel(wrapped)
	require.NoError(t, err)

	err = IntegrationTest(func(c *ohttp.ClientConfig) error {
		names, err := c.RequestLayers()
		if err != nil {
			return err
		}

		text := wrapped
		for i, name := range names {
			text, err = c.Extract(name, text)
			if err != nil {
				return errors.Wrapf(err, "layer %d", i)
			}

			if text != sink.Layers[i] {
				return errors.Errorf("layer %d: remote output differs from local", i)
			}
		}

		return nil
	}, cfg)
	require.NoError(t, err)
}

func TestTamperedKeyIntegration(t *testing.T) {
	cfg := testConfig()

	ls, err := layers.New(cfg)
	require.NoError(t, err)

	_, aes, err := layers.Lookup(ls, "aes")
	require.NoError(t, err)

	sealed, err := aes.Seal(core)
	require.NoError(t, err)

	raw, err := payload.Extract(sealed)
	require.NoError(t, err)

	// inside the wrapped key
	raw[layers.KEKLen+layers.WrapIVLen+3] ^= 0x01
	tampered := strings.Replace(sealed, sealed[strings.Index(sealed, payload.OpenMarker):], payload.Encode(raw), 1)

	err = IntegrationTest(func(c *ohttp.ClientConfig) error {
		_, err := c.Extract("aes", tampered)
		if !errors.Is(err, common.ErrorIntegrityCheckFailed) {
			return errors.Errorf("expected integrity failure, got %v", err)
		}

		return nil
	}, cfg)
	require.NoError(t, err)
}

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

package onion

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// core is a whole number of AES blocks, so peeling returns it unpadded.
const core = "==[ The Core ]==\n\nYou have reached the center of the onion.                    \n"

func testLayers(t *testing.T) []layers.Layer {
	t.Helper()

	cfg := config.Default()
	cfg.Layers.StreamKey.Offset = payload.RuleWidth / 2

	ls, err := layers.New(cfg)
	require.NoError(t, err)

	return ls
}

func TestWrapThenPeel(t *testing.T) {
	ls := testLayers(t)

	onion, err := Wrap(ls, core)
	require.NoError(t, err)

	sink := &MemorySink{}
	out, err := NewPeeler(ls, sink).Peel(onion)
	require.NoError(t, err)

	assert.Equal(t, core, out)
	require.Len(t, sink.Layers, len(ls))
	assert.Equal(t, core, sink.Layers[len(ls)-1])

	for i, text := range sink.Layers[:len(ls)-1] {
		assert.Contains(t, text, payload.OpenMarker, "layer %d output carries the next payload", i+1)
	}
}

func TestPeelStopsAtFailingLayer(t *testing.T) {
	ls := testLayers(t)

	logger, hook := test.NewNullLogger()
	sink := &MemorySink{}
	p := &Peeler{Layers: ls, Sink: sink, Log: logger}

	// A valid outer layer whose inner text has no payload.
	onion, err := ls[0].Seal("nothing inside")
	require.NoError(t, err)

	_, err = p.Peel(onion)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrorNotFound), "got %v", err)
	assert.Contains(t, err.Error(), "layer 1 (bitwise)")

	assert.Equal(t, []string{"nothing inside"}, sink.Layers)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, "bitwise", last.Data["name"])
	assert.Equal(t, common.ErrorNotFound.Error(), last.Data["kind"])
}

func TestPeelWithoutSink(t *testing.T) {
	ls := testLayers(t)[:1]

	onion, err := Wrap(ls, "plain")
	require.NoError(t, err)

	out, err := NewPeeler(ls, nil).Peel(onion)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := &DirSink{Dir: dir, Pattern: config.DefaultOutputPattern}

	require.NoError(t, sink.Put(3, "third"))
	assert.Equal(t, filepath.Join(dir, "payload3.txt"), sink.Path(3))

	raw, err := ioutil.ReadFile(sink.Path(3))
	require.NoError(t, err)
	assert.Equal(t, "third", string(raw))
}

func TestMemorySinkOrder(t *testing.T) {
	sink := &MemorySink{}
	require.NoError(t, sink.Put(1, "a"))
	assert.Error(t, sink.Put(3, "c"))
}

func TestWrapReportsSealErrors(t *testing.T) {
	ls := layers.Layer(&layers.XORStream{Offset: 0, Known: []byte(strings.Repeat("=", 4))})

	_, err := Wrap([]layers.Layer{ls}, "no rule here")
	assert.True(t, errors.Is(err, common.ErrorInvalidConfig), "got %v", err)
}

func TestWrapWithDefaultConfig(t *testing.T) {
	ls, err := layers.New(config.Default())
	require.NoError(t, err)

	for _, plain := range []string{core, strings.Repeat("a", 16), strings.Repeat("b", 4096)} {
		onion, err := Wrap(ls, plain)
		require.NoError(t, err)

		out, err := NewPeeler(ls, nil).Peel(onion)
		require.NoError(t, err)
		assert.Equal(t, plain, out)
	}
}

func TestPeelerWithoutLog(t *testing.T) {
	ls := testLayers(t)

	onion, err := Wrap(ls, core)
	require.NoError(t, err)

	p := &Peeler{Layers: ls}

	out, err := p.Peel(onion)
	require.NoError(t, err)
	assert.Equal(t, core, out)

	_, err = p.Peel("no onion here")
	assert.True(t, errors.Is(err, common.ErrorNotFound), "got %v", err)
}

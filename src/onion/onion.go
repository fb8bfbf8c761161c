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

// Package onion drives the layers: it peels an onion from the outside in,
// handing every layer's output to a Sink, and builds onions from the inside
// out.
package onion

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sink receives the output of each layer. index is 1 for the output of the
// first layer.
type Sink interface {
	Put(index int, text string) error
}

// Peeler applies Layers in order. A nil Log discards.
type Peeler struct {
	Layers []layers.Layer
	Sink   Sink
	Log    logrus.FieldLogger
}

// NewPeeler returns a Peeler that discards its log.
func NewPeeler(ls []layers.Layer, sink Sink) *Peeler {
	return &Peeler{Layers: ls, Sink: sink, Log: discardLogger()}
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)

	return log
}

// Peel runs every layer on text and returns the innermost text. The first
// failing layer stops the run; its output is never handed to the sink.
func (p *Peeler) Peel(text string) (string, error) {
	plog := p.Log
	if plog == nil {
		plog = discardLogger()
	}

	for i, l := range p.Layers {
		log := plog.WithFields(logrus.Fields{"layer": i, "name": l.Name()})

		out, err := l.Extract(text)
		if err != nil {
			log.WithError(err).WithField("kind", common.Kind(err).Error()).Error("layer failed")
			return "", errors.Wrapf(err, "layer %d (%s)", i, l.Name())
		}

		log.WithFields(logrus.Fields{"in": len(text), "out": len(out)}).Info("layer peeled")

		if p.Sink != nil {
			if err := p.Sink.Put(i+1, out); err != nil {
				return "", errors.Wrapf(err, "store layer %d", i)
			}
		}

		text = out
	}

	return text, nil
}

// Wrap seals plaintext in every layer, innermost first, so that peeling the
// result with the same layers returns plaintext.
func Wrap(ls []layers.Layer, plaintext string) (string, error) {
	text := plaintext
	for i := len(ls) - 1; i >= 0; i-- {
		sealed, err := ls[i].Seal(text)
		if err != nil {
			return "", errors.Wrapf(err, "seal layer %d (%s)", i, ls[i].Name())
		}

		text = sealed
	}

	return text, nil
}

// DirSink writes each layer to its own file in Dir, named after Pattern.
type DirSink struct {
	Dir     string
	Pattern string
}

// Path returns the file a layer is written to.
func (s *DirSink) Path(index int) string {
	return filepath.Join(s.Dir, fmt.Sprintf(s.Pattern, index))
}

// Put implements Sink.
func (s *DirSink) Put(index int, text string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}

	return ioutil.WriteFile(s.Path(index), []byte(text), 0o644)
}

// MemorySink keeps every layer in memory, in order.
type MemorySink struct {
	Layers []string
}

// Put implements Sink.
func (s *MemorySink) Put(index int, text string) error {
	if index != len(s.Layers)+1 {
		return errors.Errorf("layer %d out of order", index)
	}

	s.Layers = append(s.Layers, text)

	return nil
}

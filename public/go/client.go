// Copyright (c) 2020, Cloudflare. All rights reserved.
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

//go:build js && wasm

package main

import (
	"fmt"
	"strings"
	"syscall/js"

	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/ohttp"
	"github.com/cloudflare/data-onion/src/onion"
	"github.com/sirupsen/logrus"
)

func main() {
	js.Global().Set("peelOnion", js.FuncOf(peelOnion))
	js.Global().Set("peelOnionRemote", js.FuncOf(peelOnionRemote))
	select {} // run indefinitely
}

// DOMWriter represents the div to write to.
type DOMWriter struct {
	divID string
}

func (dw *DOMWriter) Write(p []byte) (int, error) {
	split := strings.SplitN(string(p), "===", 2)
	if len(split) < 2 {
		split = append(split, "")
	}

	js.Global().Call("addBlock", split[0], split[1], dw.divID)

	return len(p), nil
}

func newLogger(divID string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&DOMWriter{divID: divID})
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})

	return log
}

// domSink shows each layer on the page as it is peeled.
type domSink struct {
	log   logrus.FieldLogger
	names []string
}

func (s *domSink) Put(index int, text string) error {
	s.log.Infof("Layer %d (%s)===%s", index-1, s.names[index-1], text)
	return nil
}

// peelOnion(text, divID) peels text in the page, without a server.
func peelOnion(this js.Value, vals []js.Value) interface{} {
	text := vals[0].String()
	divID := vals[1].String()

	go func() {
		log := newLogger(divID)

		ls, err := layers.New(config.Default())
		if err != nil {
			log.Error(err)
			return
		}

		p := &onion.Peeler{Layers: ls, Sink: &domSink{log: log, names: layers.Names(ls)}, Log: log}
		if _, err := p.Peel(text); err != nil {
			log.Errorf("Peeling failed===%v", err)
		}
	}()

	return nil
}

// peelOnionRemote(text, divID[, domain]) peels text on a peel server. Without
// a domain the local server is used.
func peelOnionRemote(this js.Value, vals []js.Value) interface{} {
	text := vals[0].String()
	divID := vals[1].String()

	domain, insecure := ohttp.LocalDomain, true
	if len(vals) > 2 && vals[2].Type() == js.TypeString {
		domain, insecure = vals[2].String(), false
	}

	go func() {
		cfg := &ohttp.ClientConfig{Domain: domain, Insecure: insecure, Logger: newLogger(divID)}

		outputs, err := cfg.Peel(text)
		if err != nil {
			cfg.AddError(err)
			return
		}

		for i, out := range outputs {
			cfg.AddMessage(fmt.Sprintf("Layer %d", i), out)
		}
	}()

	return nil
}

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

// Package ohttp serves the layers over HTTP (onion over HTTP).
//
//	GET  /layers                  names of the layers, in order
//	POST /layers/{layer}/extract  peel one layer; body is the layer text
//	POST /layers/{layer}/seal     wrap the body in one layer
//	POST /peel                    peel every layer; returns each output
//
// {layer} is an index or a layer name. Failures are reported as
// {"error": <code>} with the common.Error code.
package ohttp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/onion"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const (
	layersEndpoint  = "/layers"
	extractEndpoint = "/layers/{layer}/extract"
	sealEndpoint    = "/layers/{layer}/seal"
	peelEndpoint    = "/peel"

	// RequestIDHeader carries the request ID, generated when absent.
	RequestIDHeader = "X-Request-ID"
	// CacheHeader reports whether an extract was served from the cache.
	CacheHeader = "X-Cache"

	maxBodySize = 32 << 20

	// LocalDomain is where a locally started peel server listens by default.
	LocalDomain = config.DefaultServerAddr
)

// LayersMessage lists layer names.
type LayersMessage struct {
	Layers []string `json:"layers"`
}

// PeelMessage holds the output of every layer, outermost first.
type PeelMessage struct {
	Outputs []string `json:"outputs"`
}

// PeelService handles the layer endpoints.
type PeelService struct {
	layers []layers.Layer
	cache  *lru.Cache[string, string]
	log    logrus.FieldLogger
}

// NewPeelService returns a service over ls caching up to cacheSize extracts.
func NewPeelService(ls []layers.Layer, cacheSize int, log logrus.FieldLogger) (*PeelService, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, common.ErrorInvalidConfig.Wrap(err)
	}

	return &PeelService{layers: ls, cache: cache, log: log}, nil
}

// Router returns the routes of the service.
func (ps *PeelService) Router() *mux.Router {
	rtr := mux.NewRouter()
	rtr.Use(ps.requestID)

	rtr.HandleFunc(layersEndpoint, ps.HandleLayersRequest).Methods(http.MethodGet)
	rtr.HandleFunc(extractEndpoint, ps.HandleExtractRequest).Methods(http.MethodPost)
	rtr.HandleFunc(sealEndpoint, ps.HandleSealRequest).Methods(http.MethodPost)
	rtr.HandleFunc(peelEndpoint, ps.HandlePeelRequest).Methods(http.MethodPost)

	return rtr
}

// RunPeelServer listens on cfg.Server.Addr until the server fails.
func RunPeelServer(cfg *config.Config, log logrus.FieldLogger) error {
	httpSrv, err := MakeHTTPServer(cfg, log)
	if err != nil {
		return err
	}

	log.Infof("Starting HTTP server on %s", httpSrv.Addr)

	return httpSrv.ListenAndServe()
}

// MakeHTTPServer builds the server for cfg without starting it.
func MakeHTTPServer(cfg *config.Config, log logrus.FieldLogger) (*http.Server, error) {
	ls, err := layers.New(cfg)
	if err != nil {
		return nil, err
	}

	ps, err := NewPeelService(ls, cfg.Server.CacheSize, log)
	if err != nil {
		return nil, err
	}

	srv := makeServerFromRouter(ps.Router(), cfg.Server.CORS)
	srv.Addr = cfg.Server.Addr

	return srv, nil
}

func makeServerFromRouter(rtr *mux.Router, allowCORS bool) *http.Server {
	var handler http.Handler = rtr
	if allowCORS {
		handler = cors.Default().Handler(rtr)
	}

	// set timeouts so that a slow or malicious client doesn't
	// hold resources forever
	return &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      handler,
	}
}

func (ps *PeelService) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			req.Header.Set(RequestIDHeader, id)
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, req)
	})
}

func (ps *PeelService) logger(req *http.Request) logrus.FieldLogger {
	return ps.log.WithFields(logrus.Fields{
		"request_id": req.Header.Get(RequestIDHeader),
		"path":       req.URL.Path,
	})
}

// HandleLayersRequest lists the layers.
func (ps *PeelService) HandleLayersRequest(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, ps.logger(req), &LayersMessage{Layers: layers.Names(ps.layers)})
}

// HandleExtractRequest peels one layer.
func (ps *PeelService) HandleExtractRequest(w http.ResponseWriter, req *http.Request) {
	log := ps.logger(req)

	index, layer, text, err := ps.parseLayerRequest(w, req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	key := cacheKey(index, text)
	out, hit := ps.cache.Get(key)
	if !hit {
		out, err = layer.Extract(text)
		if err != nil {
			writeError(w, log, err)
			return
		}

		ps.cache.Add(key, out)
	}

	log.WithFields(logrus.Fields{"layer": layer.Name(), "cached": hit}).Info("Layer extracted")

	if hit {
		w.Header().Set(CacheHeader, "hit")
	} else {
		w.Header().Set(CacheHeader, "miss")
	}

	writeText(w, log, out)
}

// HandleSealRequest wraps the body in one layer.
func (ps *PeelService) HandleSealRequest(w http.ResponseWriter, req *http.Request) {
	log := ps.logger(req)

	_, layer, text, err := ps.parseLayerRequest(w, req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	out, err := layer.Seal(text)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.WithField("layer", layer.Name()).Info("Layer sealed")

	writeText(w, log, out)
}

// HandlePeelRequest peels every layer.
func (ps *PeelService) HandlePeelRequest(w http.ResponseWriter, req *http.Request) {
	log := ps.logger(req)

	text, err := readBody(w, req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	sink := &onion.MemorySink{}
	p := &onion.Peeler{Layers: ps.layers, Sink: sink, Log: log}

	if _, err := p.Peel(text); err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, log, &PeelMessage{Outputs: sink.Layers})
}

func (ps *PeelService) parseLayerRequest(w http.ResponseWriter, req *http.Request) (int, layers.Layer, string, error) {
	index, layer, err := layers.Lookup(ps.layers, mux.Vars(req)["layer"])
	if err != nil {
		return 0, nil, "", err
	}

	text, err := readBody(w, req)
	if err != nil {
		return 0, nil, "", err
	}

	return index, layer, text, nil
}

func readBody(w http.ResponseWriter, req *http.Request) (string, error) {
	raw, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		return "", errors.Wrapf(err, "read body")
	}

	return string(raw), nil
}

func cacheKey(index int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%d:%s", index, hex.EncodeToString(sum[:]))
}

func writeText(w http.ResponseWriter, log logrus.FieldLogger, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := w.Write([]byte(text)); err != nil {
		log.WithError(err).Warn("write response")
	}
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		writeError(w, log, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(raw); err != nil {
		log.WithError(err).Warn("write response")
	}
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, cause error) {
	log.WithError(cause).Warn("writeError")

	rawErr, err := common.MarshalErrorAsJSON(cause)
	if err != nil {
		log.WithError(err).Error("Error marshaling JSON")

		// recover by sending generic error
		rawErr, _ = json.Marshal(common.ErrorOtherError)
	}

	jsonString := fmt.Sprintf("{\"error\":%s}", rawErr)

	http.Error(w, jsonString, statusFor(cause))
}

func statusFor(err error) int {
	switch common.Kind(err) {
	case common.ErrorUnknownLayer:
		return http.StatusNotFound
	case common.ErrorOtherError:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

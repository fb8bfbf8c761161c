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

package ohttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	httpsPrefix = "https://"
	httpPrefix  = "http://"

	// ErrorGeneric is reported for failures without a library code.
	ErrorGeneric = "Something went wrong. Please try again."
	// ErrorCorrupted is reported when a layer fails an integrity check.
	ErrorCorrupted = "The payload is corrupted."
	// ErrorBadEncoding is reported when a layer is not valid text.
	ErrorBadEncoding = "The payload is not valid Ascii85."
)

// ClientConfig represents a client of the peel service.
type ClientConfig struct {
	Domain   string
	Insecure bool // plain http
	Logger   logrus.FieldLogger
}

// RequestLayers returns the layer names served by the domain.
func (c *ClientConfig) RequestLayers() ([]string, error) {
	c.AddTitle("Requesting layers...")

	resp, err := c.Get(layersEndpoint)
	if err != nil {
		return nil, err
	}

	raw, err := c.readResponse(resp)
	if err != nil {
		return nil, err
	}

	msg := &LayersMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}

	c.AddMessage("Received layers", msg)

	return msg.Layers, nil
}

// Extract peels layer (an index or name) off text.
func (c *ClientConfig) Extract(layer, text string) (string, error) {
	return c.sendLayer(layer, "extract", text)
}

// Seal wraps text in layer (an index or name).
func (c *ClientConfig) Seal(layer, text string) (string, error) {
	return c.sendLayer(layer, "seal", text)
}

func (c *ClientConfig) sendLayer(layer, op, text string) (string, error) {
	c.AddTitle(fmt.Sprintf("Sending %s request for layer %s...", op, layer))

	resp, err := c.Post(fmt.Sprintf("%s/%s/%s", layersEndpoint, url.PathEscape(layer), op), []byte(text))
	if err != nil {
		return "", err
	}

	raw, err := c.readResponse(resp)
	if err != nil {
		return "", err
	}

	c.Logger.WithFields(logrus.Fields{
		"layer": layer,
		"cache": resp.Header.Get(CacheHeader),
		"bytes": len(raw),
	}).Infof("%s done", op)

	return string(raw), nil
}

// Peel sends text to be peeled and returns the output of every layer.
func (c *ClientConfig) Peel(text string) ([]string, error) {
	c.AddTitle("Sending peel request...")

	resp, err := c.Post(peelEndpoint, []byte(text))
	if err != nil {
		return nil, err
	}

	raw, err := c.readResponse(resp)
	if err != nil {
		return nil, err
	}

	msg := &PeelMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}

	c.Logger.WithField("layers", len(msg.Outputs)).Info("Received peeled layers")

	return msg.Outputs, nil
}

// Get gets an http Response.
func (c *ClientConfig) Get(endpoint string) (*http.Response, error) {
	httpResponse, err := http.Get(c.url(endpoint))
	if err != nil {
		return nil, err
	}

	return httpResponse, nil
}

// Post gets an http post response.
func (c *ClientConfig) Post(endpoint string, body []byte) (*http.Response, error) {
	httpResponse, err := http.Post(c.url(endpoint), "text/plain", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return httpResponse, nil
}

func (c *ClientConfig) url(endpoint string) string {
	prefix := httpsPrefix
	if c.Insecure {
		prefix = httpPrefix
	}

	return fmt.Sprintf("%s%s%s", prefix, c.Domain, endpoint)
}

// readResponse returns the body of resp, or the library error the server
// reported.
func (c *ClientConfig) readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Check if message is an error
	if resp.StatusCode != http.StatusOK {
		var jsonMap map[string]uint8

		err = json.Unmarshal(raw, &jsonMap)
		if err != nil {
			return nil, errors.Errorf("server error %d occurred but json %q could not be unmarshaled: %s",
				resp.StatusCode, raw, err)
		}

		if code, ok := jsonMap["error"]; ok {
			serverError := common.Error(code)
			c.AddError(serverError)

			return nil, serverError
		}

		return nil, errors.Errorf("server error occurred but json %s malformed", raw)
	}

	return raw, nil
}

// AddError adds a library error.
func (c *ClientConfig) AddError(err error) {
	errString := ErrorGeneric

	switch {
	case errors.Is(err, common.ErrorIntegrityCheckFailed):
		errString = ErrorCorrupted
	case errors.Is(err, common.ErrorMalformedEncoding):
		errString = ErrorBadEncoding
	}

	c.AddTitle(errString)
}

// AddTitle logs a section title.
func (c *ClientConfig) AddTitle(title string) {
	c.Logger.Infof("%s%s%s", title, "===", "")
}

// AddMessage logs msg as indented JSON.
func (c *ClientConfig) AddMessage(title string, msg interface{}) {
	jsonMsg, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		c.Logger.Warn("Could not add message.")
		return
	}

	c.Logger.Infof("%s...%s%s", title, "===", jsonMsg)
}

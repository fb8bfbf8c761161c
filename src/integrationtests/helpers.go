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
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/ohttp"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// ServerLogContext represents the log context of a server.
	ServerLogContext = "server"
	// ClientLogContext represents the log context of a client.
	ClientLogContext = "client"
)

// IntegrationTest starts a peel server for cfg on a local port and runs the
// provided client code against it.
func IntegrationTest(runClient func(*ohttp.ClientConfig) error, cfg *config.Config) error {
	serverLog := logrus.New().WithField("party", ServerLogContext)

	srv, err := ohttp.MakeHTTPServer(cfg, serverLog)
	if err != nil {
		return errors.Wrap(err, "server setup")
	}

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return err
	}

	serverError := make(chan error, 1)

	// Local HTTP server
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}

		serverError <- err
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Println(color.RedString("SERVER SHUTDOWN FAILED: %v", err))
		}

		log.Println("Server closed.")
	}()

	client := &ohttp.ClientConfig{
		Domain:   listener.Addr().String(),
		Insecure: true,
		Logger:   logrus.New().WithField("party", ClientLogContext),
	}

	err = runClient(client)
	if err == nil {
		log.Println(color.GreenString("CLIENT SUCCEEDED"))
		return nil
	}

	log.Println(color.RedString("CLIENT FAILED: %v", err))

	select {
	case sError := <-serverError:
		if sError != nil {
			return errors.Wrapf(err, "server: %v", sError)
		}
	default:
	}

	return err
}

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
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Error represents an error for the library.
type Error uint8

const (
	// ErrorNoError represents an empty error.
	ErrorNoError Error = 0 + iota

	// ErrorNotFound represents error when no encoded block is present in a layer.
	ErrorNotFound
	// ErrorMalformedEncoding represents error when the encoded block is not valid ASCII85.
	ErrorMalformedEncoding
	// ErrorEncoding represents error when a decoded layer is not valid UTF-8.
	ErrorEncoding
	// ErrorPreconditionViolation represents error when a packet breaks the
	// fixed header assumptions (no options, UDP only) or is cut short.
	ErrorPreconditionViolation
	// ErrorIntegrityCheckFailed represents error when the unwrapped key fails
	// the key wrap integrity check.
	ErrorIntegrityCheckFailed
	// ErrorMalformedCiphertext represents error when the ciphertext is not
	// a multiple of the block size.
	ErrorMalformedCiphertext
	// ErrorTruncatedPayload represents error when a fixed offset window lies
	// outside the payload.
	ErrorTruncatedPayload
	// ErrorInvalidKeyMaterial represents error when a key or wrapped key has
	// an unusable length.
	ErrorInvalidKeyMaterial
	// ErrorInvalidConfig represents error when the configuration is invalid.
	ErrorInvalidConfig
	// ErrorUnknownLayer represents error when a layer index or name is unknown.
	ErrorUnknownLayer

	// ErrorOtherError represents other kinds of errors not previously covered.
	ErrorOtherError
)

// Error returns the corresponding string to the error.
func (e Error) Error() string {
	if s, ok := alertToString[e]; ok {
		return s
	}

	return "unknown error"
}

// Is compares two errors.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && e == t
}

// Wrap coverts an stdlib error to a library one.
func (e Error) Wrap(err error) error {
	if err == nil {
		return nil
	}

	err = &withError{
		cause: err,
		err:   e,
	}

	return errors.WithStack(err)
}

type withError struct {
	cause error
	err   error
}

// Error returs the string associated with the error with cause.
func (we *withError) Error() string {
	return fmt.Sprintf("%s: %s", we.err, we.cause)
}

func (we *withError) Is(target error) bool {
	return errors.Is(we.cause, target) || errors.Is(we.err, target)
}

func (we *withError) Cause() error {
	return we.cause
}

func (we *withError) Unwrap() error {
	return we.cause
}

// Get error code from latest Error
func (we *withError) MarshalJSON() ([]byte, error) {
	if latestErr, ok := we.err.(Error); ok {
		return json.Marshal(latestErr)
	}

	if err, ok := errors.Cause(we).(Error); ok {
		return json.Marshal(err)
	}

	return json.Marshal(ErrorOtherError)
}

// Causer is an interface for the cause of an error.
type Causer interface {
	Cause() error
}

// MarshalErrorAsJSON marshals an error as json.
func MarshalErrorAsJSON(target error) ([]byte, error) {
	switch t := target.(type) {
	case Error, *withError:
		return json.Marshal(t)
	case Causer:
		return MarshalErrorAsJSON(t.Cause())
	}

	return json.Marshal(ErrorOtherError)
}

// Kind returns the library Error carried by err, or ErrorOtherError if
// err does not carry one.
func Kind(err error) Error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return ErrorOtherError
}

var kinds = []Error{
	ErrorNotFound,
	ErrorMalformedEncoding,
	ErrorEncoding,
	ErrorPreconditionViolation,
	ErrorIntegrityCheckFailed,
	ErrorMalformedCiphertext,
	ErrorTruncatedPayload,
	ErrorInvalidKeyMaterial,
	ErrorInvalidConfig,
	ErrorUnknownLayer,
}

var alertToString = map[Error]string{
	ErrorNoError:               "no error",
	ErrorNotFound:              "encoded payload not found",
	ErrorMalformedEncoding:     "malformed ascii85 payload",
	ErrorEncoding:              "layer is not valid utf-8",
	ErrorPreconditionViolation: "packet precondition violated",
	ErrorIntegrityCheckFailed:  "key unwrap integrity check failed",
	ErrorMalformedCiphertext:   "ciphertext is not a multiple of the block size",
	ErrorTruncatedPayload:      "payload too short",
	ErrorInvalidKeyMaterial:    "invalid key material",
	ErrorInvalidConfig:         "invalid configuration",
	ErrorUnknownLayer:          "unknown layer",
	ErrorOtherError:            "other error",
}

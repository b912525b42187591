/**
 * Copyright 2021 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors that can be returned by this package. Most of them are returned
// wrapped, use errors.Is() to check for them.
var (
	ErrNoHosts             = errors.New("at least one host is required")
	ErrInvalidConfig       = errors.New("invalid transport configuration")
	ErrAuthAcquirerFailure = errors.New("failed acquiring auth token")
	ErrDecode              = errors.New("failed decoding response body")
	ErrEncode              = errors.New("failed encoding request body")
	ErrNoCodec             = errors.New("no codec registered for content type and body is not raw bytes")
	ErrMultipartBoundary   = errors.New("multipart content type without a boundary")
)

var (
	errNewRequestFailure  = errors.New("failed creating an HTTP request")
	errDoRequestFailure   = errors.New("http client failed while sending request")
	errReadingBodyFailure = errors.New("failed while reading http response body")
)

const errWrappedFmt = "%w: %s"

// TransportError is returned when no HTTP response could be obtained, or the
// response was cut short. It carries the originating request for diagnostics.
type TransportError struct {
	Method string
	URI    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URI, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is returned for responses with a status code of 400 or above.
type HTTPError struct {
	Method     string
	URI        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("%s %s: received status %d", e.Method, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: received status %d: %s", e.Method, e.URI, e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

// IsTransportError reports whether err happened below the HTTP layer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

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

// Package riaktest provides an in-memory store that speaks the HTTP protocol
// of the store, for tests and local development.
package riaktest

import (
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/xmidt-org/nodiak/transport"
	"go.uber.org/zap"
)

// Start runs a Server on an httptest server. Callers close the httptest
// server when done.
func Start(opts ...Option) (*Server, *httptest.Server) {
	s := NewServer(opts...)
	return s, httptest.NewServer(s)
}

// Config returns a transport configuration pointing at ts with quick
// retries.
func Config(ts *httptest.Server) transport.Config {
	u, _ := url.Parse(ts.URL)
	return transport.Config{
		Hosts:  []string{u.Host},
		Retry:  transport.RetryConfig{BaseTimeout: time.Millisecond},
		Logger: zap.NewNop(),
	}
}

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
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	hostpool "github.com/hailocab/go-hostpool"
	"github.com/xmidt-org/bascule/acquire"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	// ClientIDHeader identifies this client to the store's vector clocks.
	ClientIDHeader = "X-Riak-ClientId"
)

// Executor issues exactly one physical request.
type Executor interface {
	Execute(ctx context.Context, req *PreparedRequest) (*http.Response, error)
}

// HTTPExecutor sends requests over HTTP or HTTPS to one of the configured
// hosts.
type HTTPExecutor struct {
	client   *http.Client
	scheme   string
	hosts    hostpool.HostPool
	auth     acquire.Acquirer
	clientID string
}

// NewHTTPExecutor builds a plain HTTP executor.
func NewHTTPExecutor(config Config) (*HTTPExecutor, error) {
	return newHTTPExecutor(config, schemeHTTP)
}

// NewHTTPSExecutor builds an executor that uses TLS with config.TLSConfig.
func NewHTTPSExecutor(config Config) (*HTTPExecutor, error) {
	return newHTTPExecutor(config, schemeHTTPS)
}

func newHTTPExecutor(config Config, scheme string) (*HTTPExecutor, error) {
	if len(config.Hosts) == 0 {
		return nil, ErrNoHosts
	}
	auth, err := buildTokenAcquirer(config.Auth)
	if err != nil {
		return nil, err
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient(config, scheme)
	}
	clientID := config.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &HTTPExecutor{
		client:   client,
		scheme:   scheme,
		hosts:    hostpool.New(config.Hosts),
		auth:     auth,
		clientID: clientID,
	}, nil
}

// newHTTPClient applies the socket level configuration once. Go enables
// TCP_NODELAY on new connections.
func newHTTPClient(config Config, scheme string) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:     config.MaxSockets,
		MaxIdleConnsPerHost: config.MaxSockets,
		IdleConnTimeout:     90 * time.Second,
	}
	if scheme == schemeHTTPS {
		t.TLSClientConfig = config.TLSConfig
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	return &http.Client{Transport: t}
}

// Execute sends req to the next healthy host. Hosts failing at the connection
// level are marked so later requests avoid them for a while.
func (e *HTTPExecutor) Execute(ctx context.Context, req *PreparedRequest) (*http.Response, error) {
	hr := e.hosts.Get()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	r, err := http.NewRequestWithContext(ctx, req.Method, e.scheme+"://"+hr.Host()+req.URI, body)
	if err != nil {
		hr.Mark(nil)
		return nil, fmt.Errorf(errWrappedFmt, errNewRequestFailure, err.Error())
	}
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(ClientIDHeader, e.clientID)

	// The store mishandles bodiless DELETEs without an explicit content length.
	if req.Method == http.MethodDelete {
		r.Body = http.NoBody
		r.ContentLength = 0
		r.TransferEncoding = []string{"identity"}
	}

	if err = acquire.AddAuth(r, e.auth); err != nil {
		hr.Mark(nil)
		return nil, fmt.Errorf(errWrappedFmt, ErrAuthAcquirerFailure, err.Error())
	}

	resp, err := e.client.Do(r)
	hr.Mark(err)
	if err != nil {
		return nil, fmt.Errorf(errWrappedFmt, errDoRequestFailure, err.Error())
	}
	return resp, nil
}

// Close releases the host pool.
func (e *HTTPExecutor) Close() {
	e.hosts.Close()
}

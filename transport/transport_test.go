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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTransport(t *testing.T, server *httptest.Server, opts ...func(*Config)) *Transport {
	t.Helper()
	config := Config{
		Hosts:  []string{strings.TrimPrefix(server.URL, "http://")},
		Retry:  RetryConfig{BaseTimeout: time.Millisecond},
		Logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(&config)
	}
	tr, err := New(config, nil)
	require.NoError(t, err)
	return tr
}

func TestValidateConfig(t *testing.T) {
	type testCase struct {
		Description string
		Input       Config
		ExpectedErr error
		Check       func(*assert.Assertions, Config)
	}

	tcs := []testCase{
		{
			Description: "All default values",
			Check: func(assert *assert.Assertions, c Config) {
				assert.Equal([]string{"localhost:8098"}, c.Hosts)
				assert.Equal(DefaultMaxSockets, c.MaxSockets)
				assert.Equal(RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseTimeout: DefaultBaseTimeout}, c.Retry)
				assert.Equal(DefaultResources(), c.Resources)
				assert.Equal(DefaultContentType, c.DefaultHeaders["content-type"])
				assert.Equal(DefaultAccept, c.DefaultHeaders["accept"])
				assert.Contains(c.Codecs, "application/json")
				assert.NotNil(c.Logger)
			},
		},
		{
			Description: "Overrides are kept",
			Input: Config{
				Host:           "riak.example.com",
				Port:           10018,
				Retry:          RetryConfig{MaxAttempts: -1},
				Resources:      Resources{Buckets: "/custom"},
				DefaultHeaders: map[string]string{"accept": "application/json"},
			},
			Check: func(assert *assert.Assertions, c Config) {
				assert.Equal([]string{"riak.example.com:10018"}, c.Hosts)
				assert.Equal(-1, c.Retry.MaxAttempts)
				assert.Equal("/custom", c.Resources.Buckets)
				assert.Equal(DefaultResources().Ping, c.Resources.Ping)
				assert.Equal("application/json", c.DefaultHeaders["accept"])
				assert.Equal(DefaultContentType, c.DefaultHeaders["content-type"])
			},
		},
		{
			Description: "Mixed case header override",
			Input: Config{
				DefaultHeaders: map[string]string{"Content-Type": "text/plain", "X-Custom": "1"},
			},
			Check: func(assert *assert.Assertions, c Config) {
				assert.Equal(map[string]string{
					"content-type": "text/plain",
					"accept":       DefaultAccept,
					"x-custom":     "1",
				}, c.DefaultHeaders)

				for i := 0; i < 50; i++ {
					p, err := (&Request{Method: http.MethodPut, Path: "/buckets/b/keys/k", Body: "hi"}).Prepare(c.DefaultHeaders, c.Codecs)
					assert.NoError(err)
					assert.Equal("text/plain", p.Header.Get("Content-Type"))
				}
			},
		},
		{
			Description: "Bad port",
			Input:       Config{Port: 70000},
			ExpectedErr: ErrInvalidConfig,
		},
		{
			Description: "Bad host list",
			Input:       Config{Hosts: []string{"no port here"}},
			ExpectedErr: ErrInvalidConfig,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			err := validateConfig(&tc.Input)
			if tc.ExpectedErr != nil {
				assert.ErrorIs(err, tc.ExpectedErr)
				return
			}
			assert.NoError(err)
			tc.Check(assert, tc.Input)
		})
	}
}

func TestDo(t *testing.T) {
	type testCase struct {
		Description      string
		Method           string
		Status           int
		ContentType      string
		Body             string
		ExpectedData     interface{}
		ExpectedErr      bool
		ExpectedAttempts int32
	}

	tcs := []testCase{
		{
			Description:      "JSON success",
			Method:           http.MethodGet,
			Status:           http.StatusOK,
			ContentType:      "application/json",
			Body:             `{"ok":true}`,
			ExpectedData:     map[string]interface{}{"ok": true},
			ExpectedAttempts: 1,
		},
		{
			Description:      "Not found is not retried",
			Method:           http.MethodGet,
			Status:           http.StatusNotFound,
			ContentType:      "text/plain",
			Body:             "not found\n",
			ExpectedData:     "not found\n",
			ExpectedErr:      true,
			ExpectedAttempts: 1,
		},
		{
			Description:      "Server errors are not retried",
			Method:           http.MethodPut,
			Status:           http.StatusInternalServerError,
			ContentType:      "text/html",
			Body:             "<h1>oops</h1>",
			ExpectedData:     "<h1>oops</h1>",
			ExpectedErr:      true,
			ExpectedAttempts: 1,
		},
		{
			Description:      "Delete of a missing key succeeds",
			Method:           http.MethodDelete,
			Status:           http.StatusNotFound,
			ContentType:      "text/plain",
			Body:             "not found\n",
			ExpectedData:     "not found\n",
			ExpectedAttempts: 1,
		},
		{
			Description:      "No content",
			Method:           http.MethodPut,
			Status:           http.StatusNoContent,
			ContentType:      "application/json",
			ExpectedData:     "",
			ExpectedAttempts: 1,
		},
		{
			Description:      "Head has no data",
			Method:           http.MethodHead,
			Status:           http.StatusOK,
			ContentType:      "application/json",
			ExpectedData:     "",
			ExpectedAttempts: 1,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			var (
				assert   = assert.New(t)
				require  = require.New(t)
				attempts int32
			)
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				assert.Equal(tc.Method, r.Method)
				assert.NotEmpty(r.Header.Get(ClientIDHeader))
				rw.Header().Set("Content-Type", tc.ContentType)
				rw.WriteHeader(tc.Status)
				rw.Write([]byte(tc.Body))
			}))
			defer server.Close()

			tr := newTestTransport(t, server)
			resp, err := tr.Do(context.Background(), &Request{Method: tc.Method, Path: "/buckets/b/keys/k"})
			assert.Equal(tc.ExpectedAttempts, atomic.LoadInt32(&attempts))
			if tc.ExpectedErr {
				var httpErr *HTTPError
				require.ErrorAs(err, &httpErr)
				assert.Equal(tc.Status, httpErr.StatusCode)
				assert.Equal(tc.Body, string(httpErr.Body))
			} else {
				require.NoError(err)
			}
			require.NotNil(resp)
			assert.Equal(tc.Status, resp.StatusCode)
			assert.Equal(tc.Status, resp.Metadata.StatusCode)
			assert.Equal(tc.ExpectedData, resp.Data)
		})
	}
}

func TestDoRetriesTransportErrors(t *testing.T) {
	type testCase struct {
		Description      string
		MaxAttempts      int
		Failures         int
		ExpectedErr      bool
		ExpectedAttempts int
	}

	tcs := []testCase{
		{Description: "Recovers after transient failures", MaxAttempts: 3, Failures: 2, ExpectedAttempts: 3},
		{Description: "Gives up after max attempts", MaxAttempts: 3, Failures: 10, ExpectedErr: true, ExpectedAttempts: 4},
		{Description: "Retries disabled", MaxAttempts: -1, Failures: 1, ExpectedErr: true, ExpectedAttempts: 1},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			var (
				assert   = assert.New(t)
				require  = require.New(t)
				executor = new(MockExecutor)
				boom     = errors.New("connection refused")
				attempts int
			)
			executor.On("Execute", mock.Anything, mock.Anything).Return(nil, boom).Run(func(mock.Arguments) {
				attempts++
			}).Times(tc.Failures)
			executor.On("Execute", mock.Anything, mock.Anything).Return(&http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/plain"}},
				Body:       io.NopCloser(strings.NewReader("pong")),
			}, nil).Run(func(mock.Arguments) {
				attempts++
			}).Maybe()

			registry := prometheus.NewRegistry()
			measures, err := NewMeasures(registry)
			require.NoError(err)

			tr, err := New(Config{
				Executor: executor,
				Retry:    RetryConfig{MaxAttempts: tc.MaxAttempts, BaseTimeout: time.Millisecond},
				Measures: measures,
				Logger:   zap.NewNop(),
			}, nil)
			require.NoError(err)

			resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/ping"})
			assert.Equal(tc.ExpectedAttempts, attempts)
			assert.Equal(float64(tc.ExpectedAttempts-1), testutil.ToFloat64(measures.Retries.WithLabelValues(http.MethodGet)))
			if tc.ExpectedErr {
				assert.ErrorIs(err, boom)
				assert.True(IsTransportError(err))
				assert.Nil(resp)
				return
			}
			require.NoError(err)
			assert.Equal("pong", resp.Data)
		})
	}
}

func TestDoMultipart(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)
	body := strings.Join([]string{
		"--XyZ",
		"Content-Type: application/json",
		"X-Riak-Vtag: a1",
		"",
		`{"v":1}`,
		"--XyZ",
		"Content-Type: text/plain",
		"Link: </buckets/b/keys/other>; riaktag=\"friend\"",
		"",
		"two",
		"--XyZ--",
		"",
	}, "\r\n")

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", `multipart/mixed; boundary=XyZ`)
		rw.Header().Set("X-Riak-Vclock", "abc")
		rw.WriteHeader(http.StatusMultipleChoices)
		rw.Write([]byte(body))
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/buckets/b/keys/k"})
	require.NoError(err)
	assert.Equal(http.StatusMultipleChoices, resp.StatusCode)
	assert.Equal("abc", resp.Metadata.VClock)

	parts := resp.Parts()
	require.Len(parts, 2)
	assert.Equal(map[string]interface{}{"v": float64(1)}, parts[0].Data)
	assert.Equal("a1", parts[0].Metadata.Vendor["vtag"])
	assert.Equal("two", parts[1].Data)
	require.Len(parts[1].Metadata.Links, 1)
	assert.Equal("friend", parts[1].Metadata.Links[0].Tag)
}

func TestDeleteSendsZeroContentLength(t *testing.T) {
	var (
		assert = assert.New(t)
		got    = make(chan *http.Request, 1)
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		got <- r
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodDelete, Path: "/buckets/b/keys/k"})
	assert.NoError(err)

	r := <-got
	assert.Equal(int64(0), r.ContentLength)
	assert.Empty(r.TransferEncoding)
}

func TestStream(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal("stream", r.URL.Query().Get("keys"))
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(rw, `{"keys":["k%d"]}`, i)
			rw.(http.Flusher).Flush()
		}
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	chunks, err := tr.Stream(context.Background(), &Request{
		Method:  http.MethodGet,
		Path:    "/buckets/b/keys",
		Options: map[string]string{"keys": "stream"},
	}).Collect()
	require.NoError(err)
	require.Len(chunks, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(map[string]interface{}{"keys": []interface{}{fmt.Sprintf("k%d", i)}}, chunks[i].Data)
		assert.False(chunks[i].Final)
	}
	assert.True(chunks[3].Final)
	assert.Nil(chunks[3].Data)
	assert.True(chunks[3].Metadata.Chunked())
}

func TestStreamBufferedBody(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		payload := []byte(`{"a":1} {"a":2}`)
		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		rw.Write(payload)
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	chunks, err := tr.Stream(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}).Collect()
	require.NoError(err)
	require.Len(chunks, 3)
	assert.Equal(map[string]interface{}{"a": float64(2)}, chunks[1].Data)
	assert.False(chunks[2].Metadata.Chunked())
}

func TestStreamHTTPError(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "nope", http.StatusBadRequest)
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	var events []Event[Chunk]
	for e := range tr.Stream(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}).Events() {
		events = append(events, e)
	}
	require.Len(events, 2)
	code, ok := StatusCode(events[0].Err)
	assert.True(ok)
	assert.Equal(http.StatusBadRequest, code)
	assert.NoError(events[1].Err)
	assert.True(events[1].Value.Final)
	assert.Equal(http.StatusBadRequest, events[1].Value.Metadata.StatusCode)
}

func TestStreamMultipart(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "multipart/mixed; boundary=b0")
		rw.WriteHeader(http.StatusOK)
		var buf bytes.Buffer
		for i := 0; i < 2; i++ {
			fmt.Fprintf(&buf, "\r\n--b0\r\nContent-Type: application/json\r\n\r\n{\"phase\":%d,\"data\":[%d]}", i, i)
		}
		buf.WriteString("\r\n--b0--\r\n")
		rw.Write(buf.Bytes())
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	chunks, err := tr.Stream(context.Background(), &Request{Method: http.MethodPost, Path: "/mapred", Options: map[string]string{"chunked": "true"}}).Collect()
	require.NoError(err)
	require.Len(chunks, 3)
	assert.Equal(map[string]interface{}{"phase": float64(1), "data": []interface{}{float64(1)}}, chunks[1].Data)
	assert.True(chunks[2].Final)
}

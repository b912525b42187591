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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"emperror.dev/emperror"
	"github.com/cenkalti/backoff/v4"
	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const streamReadSize = 32 << 10

// Transport executes requests against the store with the configured retry
// policy and interprets the responses.
type Transport struct {
	executor       Executor
	codecs         Codecs
	defaultHeaders map[string]string
	resources      Resources
	retry          RetryConfig
	measures       *Measures
	logger         *zap.Logger
	getLogger      func(context.Context) *zap.Logger
	errorHandler   emperror.ErrorHandler
}

// Chunk is one item of a streamed response. The last chunk of every stream has
// Final set and carries only the response metadata.
type Chunk struct {
	Metadata model.Metadata
	Data     interface{}
	Body     []byte
	Final    bool
}

// New creates a Transport. getLogger looks up a request scoped logger and
// defaults to sallust.Get.
func New(config Config, getLogger func(context.Context) *zap.Logger) (*Transport, error) {
	err := validateConfig(&config)
	if err != nil {
		return nil, err
	}
	if getLogger == nil {
		getLogger = sallust.Get
	}

	executor := config.Executor
	if executor == nil {
		if config.TLS {
			executor, err = NewHTTPSExecutor(config)
		} else {
			executor, err = NewHTTPExecutor(config)
		}
		if err != nil {
			return nil, err
		}
	}

	t := &Transport{
		executor:       executor,
		codecs:         config.Codecs,
		defaultHeaders: config.DefaultHeaders,
		resources:      config.Resources,
		retry:          config.Retry,
		measures:       config.Measures,
		logger:         config.Logger,
		getLogger:      getLogger,
		errorHandler:   config.ErrorHandler,
	}
	if t.errorHandler == nil {
		t.errorHandler = emperror.ErrorHandlerFunc(func(err error) {
			t.logger.Error("error after stream consumer detached", zap.Error(err))
		})
	}
	return t, nil
}

// Resources returns the resource table in use.
func (t *Transport) Resources() Resources {
	return t.resources
}

// Codecs returns the codec table in use.
func (t *Transport) Codecs() Codecs {
	return t.codecs
}

// ErrorHandler returns the handler for failures of detached streams.
func (t *Transport) ErrorHandler() emperror.ErrorHandler {
	return t.errorHandler
}

func (t *Transport) log(ctx context.Context) *zap.Logger {
	l := t.getLogger(ctx)
	if l == nil {
		l = t.logger
	}
	return l
}

// Do executes req and buffers the response. Transport failures are retried.
// A status of 400 or more returns an *HTTPError together with the decoded
// response, except for a 404 on DELETE which counts as success.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	p, err := req.Prepare(t.defaultHeaders, t.codecs)
	if err != nil {
		return nil, err
	}

	op := func() (*Response, error) {
		resp, err := t.execute(ctx, p)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return nil, &TransportError{Method: p.Method, URI: p.URI, Err: fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())}
		}

		result := &Response{
			StatusCode: resp.StatusCode,
			Metadata:   responseMetadata(resp),
			Body:       body,
		}
		if p.Method == http.MethodHead {
			result.Data = ""
		} else {
			result.Data, err = t.codecs.decodeBody(result.Metadata.ContentType, body)
		}

		if httpErr := t.statusError(ctx, p, resp.StatusCode, body); httpErr != nil {
			if result.Data == nil {
				result.Data = body
			}
			return result, backoff.Permanent(httpErr)
		}
		if err != nil {
			return result, backoff.Permanent(err)
		}
		return result, nil
	}

	return backoff.RetryNotifyWithData(op, t.retry.backOff(ctx), t.notifyRetry(ctx, p))
}

// Stream executes req and delivers the body as it arrives. Chunked JSON
// bodies yield one chunk per JSON value, multipart bodies one chunk per part,
// anything else one chunk per read. Bodies that aren't chunked are buffered
// first. The stream ends with a metadata only chunk.
func (t *Transport) Stream(ctx context.Context, req *Request) *Stream[Chunk] {
	return NewStream[Chunk](t.errorHandler).Go(func(s *Stream[Chunk]) {
		p, err := req.Prepare(t.defaultHeaders, t.codecs)
		if err != nil {
			s.Error(err)
			return
		}

		resp, err := backoff.RetryNotifyWithData(func() (*http.Response, error) {
			return t.execute(ctx, p)
		}, t.retry.backOff(ctx), t.notifyRetry(ctx, p))
		if err != nil {
			s.Error(err)
			return
		}
		defer resp.Body.Close()

		md := responseMetadata(resp)
		final := Chunk{Metadata: md, Final: true}

		if resp.StatusCode >= http.StatusBadRequest {
			body, _ := readBody(resp)
			if httpErr := t.statusError(ctx, p, resp.StatusCode, body); httpErr != nil {
				s.Error(httpErr)
				s.Value(final)
				return
			}
			final.Body = body
			s.Value(final)
			return
		}

		var src io.Reader = resp.Body
		if !isChunked(resp) {
			body, err := readBody(resp)
			if err != nil {
				s.Error(&TransportError{Method: p.Method, URI: p.URI, Err: fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())})
				return
			}
			src = bytes.NewReader(body)
		}

		if !t.streamBody(s, p, md, src) {
			return
		}
		s.Value(final)
	})
}

// streamBody emits the chunks of src. It returns false when the stream should
// stop.
func (t *Transport) streamBody(s *Stream[Chunk], p *PreparedRequest, md model.Metadata, src io.Reader) bool {
	readErr := func(err error) bool {
		s.Error(&TransportError{Method: p.Method, URI: p.URI, Err: fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())})
		return false
	}

	switch MediaType(md.ContentType) {
	case multipartMixed:
		mr, err := multipartReader(md.ContentType, src)
		if err != nil {
			s.Error(err)
			return false
		}
		for {
			part, err := nextPart(mr, t.codecs)
			if err == io.EOF {
				return true
			}
			if err != nil {
				s.Error(err)
				return false
			}
			if !s.Value(Chunk{Metadata: part.Metadata, Data: part.Data, Body: part.Body}) {
				return false
			}
		}

	case "application/json":
		dec := json.NewDecoder(src)
		for {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if err == io.EOF {
				return true
			}
			if err != nil {
				s.Error(fmt.Errorf(errWrappedFmt, ErrDecode, err.Error()))
				return false
			}
			data, err := t.codecs.Decode(md.ContentType, raw)
			if err != nil {
				s.Error(err)
				return false
			}
			if !s.Value(Chunk{Metadata: md, Data: data, Body: raw}) {
				return false
			}
		}

	default:
		buf := make([]byte, streamReadSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				body := bytes.Clone(buf[:n])
				data, derr := t.codecs.Decode(md.ContentType, body)
				if derr != nil {
					s.Error(derr)
					return false
				}
				if !s.Value(Chunk{Metadata: md, Data: data, Body: body}) {
					return false
				}
			}
			if err == io.EOF {
				return true
			}
			if err != nil {
				return readErr(err)
			}
		}
	}
}

// execute issues one physical request. Failures come back as *TransportError
// so the retry loop tries again.
func (t *Transport) execute(ctx context.Context, p *PreparedRequest) (*http.Response, error) {
	start := time.Now()
	resp, err := t.executor.Execute(ctx, p)
	if err != nil {
		t.measures.observeRequest(p.Method, 0, time.Since(start))
		return nil, &TransportError{Method: p.Method, URI: p.URI, Err: err}
	}
	t.measures.observeRequest(p.Method, resp.StatusCode, time.Since(start))
	return resp, nil
}

// statusError builds the error for a status code, or nil for success. 404 on
// DELETE is success.
func (t *Transport) statusError(ctx context.Context, p *PreparedRequest, code int, body []byte) error {
	if code < http.StatusBadRequest {
		return nil
	}
	if code == http.StatusNotFound && p.Method == http.MethodDelete {
		return nil
	}
	t.log(ctx).Debug("store responded with a non-success status code",
		zap.String("method", p.Method), zap.String("uri", p.URI), zap.Int("code", code))
	return &HTTPError{Method: p.Method, URI: p.URI, StatusCode: code, Body: body}
}

func (t *Transport) notifyRetry(ctx context.Context, p *PreparedRequest) backoff.Notify {
	attempt := 0
	return func(err error, next time.Duration) {
		attempt++
		t.measures.observeRetry(p.Method)
		t.log(ctx).Warn("retrying request after transport failure",
			zap.String("method", p.Method), zap.String("uri", p.URI),
			zap.Int("attempt", attempt), zap.Duration("delay", next), zap.Error(err))
	}
}

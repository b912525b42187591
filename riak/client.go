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

package riak

import (
	"context"
	"fmt"
	"net/http"

	"emperror.dev/emperror"
	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/transport"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// Options are per request query options such as r, w, dw, pr, pw or vtag.
type Options map[string]string

func (o Options) with(k, v string) Options {
	out := make(Options, len(o)+1)
	for key, val := range o {
		out[key] = val
	}
	out[k] = v
	return out
}

// Client is the entry point to the store. It is safe for concurrent use; all
// of its configuration is fixed at construction.
type Client struct {
	transport *transport.Transport
	resources transport.Resources
	logger    *zap.Logger
	getLogger func(context.Context) *zap.Logger
}

// NewClient builds a client and its transport from config. getLogger looks up
// a request scoped logger and defaults to sallust.Get.
func NewClient(config transport.Config, getLogger func(context.Context) *zap.Logger) (*Client, error) {
	t, err := transport.New(config, getLogger)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = sallust.Default()
	}
	if getLogger == nil {
		getLogger = sallust.Get
	}
	return &Client{
		transport: t,
		resources: t.Resources(),
		logger:    logger,
		getLogger: getLogger,
	}, nil
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

func (c *Client) errorHandler() emperror.ErrorHandler {
	return c.transport.ErrorHandler()
}

func (c *Client) log(ctx context.Context) *zap.Logger {
	if l := c.getLogger(ctx); l != nil {
		return l
	}
	return c.logger
}

func (c *Client) do(ctx context.Context, r *transport.Request) (*transport.Response, error) {
	return c.transport.Do(ctx, r)
}

// Ping checks that the store answers.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, &transport.Request{Method: http.MethodGet, Path: c.resources.Ping})
	if err != nil {
		return "", err
	}
	return cast.ToString(resp.Data), nil
}

// Stats returns the node statistics.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.resources.Stats,
		Header: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	return asObject(resp.Data)
}

// Resources returns the discovery document listing the store's resources.
func (c *Client) Resources(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.resources.Discovery,
		Header: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	return asObject(resp.Data)
}

// Buckets lists the buckets of the default bucket type.
func (c *Client) Buckets(ctx context.Context) ([]string, error) {
	return c.listBuckets(ctx, c.resources.Buckets)
}

func (c *Client) listBuckets(ctx context.Context, path string) ([]string, error) {
	resp, err := c.do(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    path,
		Options: Options{"buckets": "true"},
		Header:  map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	obj, err := asObject(resp.Data)
	if err != nil {
		return nil, err
	}
	return cast.ToStringSlice(obj["buckets"]), nil
}

// Bucket returns a handle on the named bucket. No request is made.
func (c *Client) Bucket(name string) *Bucket {
	return newBucket(c, name)
}

// BucketType returns a handle on the named bucket type. No request is made.
func (c *Client) BucketType(name string) *BucketType {
	return &BucketType{client: c, Name: name}
}

// MapReduce starts a job over inputs.
func (c *Client) MapReduce(inputs Inputs) *MapReduce {
	return &MapReduce{client: c, inputs: inputs}
}

func asObject(data interface{}) (map[string]interface{}, error) {
	switch d := data.(type) {
	case map[string]interface{}:
		return d, nil
	case string:
		if d == "" {
			return map[string]interface{}{}, nil
		}
	}
	return nil, fmt.Errorf("%w: expected an object, got %T", ErrUnexpectedResponse, data)
}

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
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/transport"
)

// Counter is a counter kept by the store in a bucket. It holds no state
// locally.
type Counter struct {
	bucket *Bucket
	Name   string
}

func (c *Counter) path() string {
	return c.bucket.path(c.bucket.client.resources.Counters, "counters", c.Name)
}

// Add increments the counter by amount, which may be negative, and returns
// the new value. amount must convert to a non zero integer.
func (c *Counter) Add(ctx context.Context, amount interface{}) (int64, error) {
	n, err := cast.ToInt64E(amount)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return c.add(ctx, n)
}

// Subtract decrements the counter by amount.
func (c *Counter) Subtract(ctx context.Context, amount interface{}) (int64, error) {
	n, err := cast.ToInt64E(amount)
	// -math.MinInt64 overflows
	if err != nil || n == 0 || n == math.MinInt64 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return c.add(ctx, -n)
}

func (c *Counter) add(ctx context.Context, n int64) (int64, error) {
	resp, err := c.bucket.client.do(ctx, &transport.Request{
		Method:  http.MethodPost,
		Path:    c.path(),
		Options: Options{"returnvalue": "true"},
		Header:  map[string]string{"content-type": "text/plain"},
		Body:    strconv.FormatInt(n, 10),
	})
	if err != nil {
		return 0, err
	}
	return parseCounter(resp)
}

// Value reads the counter.
func (c *Counter) Value(ctx context.Context) (int64, error) {
	resp, err := c.bucket.client.do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.path(),
	})
	if err != nil {
		return 0, err
	}
	return parseCounter(resp)
}

func parseCounter(resp *transport.Response) (int64, error) {
	body := strings.TrimSpace(string(resp.Body))
	if body == "" {
		return 0, nil
	}
	n, err := cast.ToInt64E(body)
	if err != nil {
		return 0, fmt.Errorf(errWrappedFmt, ErrUnexpectedResponse, err.Error())
	}
	return n, nil
}

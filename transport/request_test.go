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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/nodiak/model"
)

func TestEncodeOptions(t *testing.T) {
	type testCase struct {
		Description string
		Options     map[string]string
		Expected    string
	}

	tcs := []testCase{
		{
			Description: "No options",
		},
		{
			Description: "Sorted keys and trailing separator",
			Options:     map[string]string{"returnbody": "true", "keys": "stream"},
			Expected:    "?keys=stream&returnbody=true&",
		},
		{
			Description: "Values are escaped",
			Options:     map[string]string{"q": "name:a b&c"},
			Expected:    "?q=name%3Aa+b%26c&",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.Equal(t, tc.Expected, EncodeOptions(tc.Options))
		})
	}
}

func TestRequestURI(t *testing.T) {
	r := &Request{
		Path:    "/buckets/" + Escape("my bucket") + "/keys/" + Escape("a/b"),
		Options: map[string]string{"r": "2"},
	}
	assert.Equal(t, "/buckets/my%20bucket/keys/a%2Fb?r=2&", r.URI())
}

func TestPrepare(t *testing.T) {
	type testCase struct {
		Description     string
		Request         *Request
		ExpectedHeaders map[string]string
		ExpectedBody    string
		ExpectedErr     error
	}

	defaults := map[string]string{
		"content-type": "application/json",
		"accept":       "*/*",
	}

	tcs := []testCase{
		{
			Description: "Defaults fill missing headers",
			Request:     &Request{Method: "GET", Path: "/ping"},
			ExpectedHeaders: map[string]string{
				"Content-Type": "application/json",
				"Accept":       "*/*",
			},
		},
		{
			Description: "Metadata headers beat defaults",
			Request: &Request{
				Method:   "PUT",
				Path:     "/buckets/b/keys/k",
				Metadata: &model.Metadata{ContentType: "text/plain", Meta: map[string]string{"owner": "me"}},
				Body:     "hello",
			},
			ExpectedHeaders: map[string]string{
				"Content-Type":     "text/plain",
				"X-Riak-Meta-Owner": "me",
			},
			ExpectedBody: "hello",
		},
		{
			Description: "Explicit headers beat metadata",
			Request: &Request{
				Method:   "PUT",
				Path:     "/buckets/b/keys/k",
				Metadata: &model.Metadata{ContentType: "text/plain"},
				Header:   map[string]string{"content-type": "application/json"},
				Body:     map[string]interface{}{"a": 1},
			},
			ExpectedHeaders: map[string]string{
				"Content-Type": "application/json",
			},
			ExpectedBody: `{"a":1}`,
		},
		{
			Description: "Raw body for unknown content type",
			Request: &Request{
				Method: "PUT",
				Path:   "/buckets/b/keys/k",
				Header: map[string]string{"content-type": "application/octet-stream"},
				Body:   []byte{1, 2, 3},
			},
			ExpectedBody: "\x01\x02\x03",
		},
		{
			Description: "Structured body for unknown content type",
			Request: &Request{
				Method: "PUT",
				Path:   "/buckets/b/keys/k",
				Header: map[string]string{"content-type": "application/octet-stream"},
				Body:   map[string]int{"a": 1},
			},
			ExpectedErr: ErrNoCodec,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			var (
				assert  = assert.New(t)
				require = require.New(t)
			)
			p, err := tc.Request.Prepare(defaults, DefaultCodecs())
			if tc.ExpectedErr != nil {
				require.ErrorIs(err, tc.ExpectedErr)
				return
			}
			require.NoError(err)
			assert.Equal(tc.Request.Method, p.Method)
			assert.Equal(tc.Request.URI(), p.URI)
			for k, v := range tc.ExpectedHeaders {
				assert.Equal(v, p.Header.Get(k), k)
			}
			assert.Equal(tc.ExpectedBody, string(p.Body))
		})
	}
}

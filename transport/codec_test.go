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
)

func TestCodecs(t *testing.T) {
	type testCase struct {
		Description  string
		ContentType  string
		Body         []byte
		ExpectedData interface{}
		ExpectedErr  error
	}

	tcs := []testCase{
		{
			Description:  "JSON object",
			ContentType:  "application/json; charset=utf-8",
			Body:         []byte(`{"a":[1,"b"]}`),
			ExpectedData: map[string]interface{}{"a": []interface{}{float64(1), "b"}},
		},
		{
			Description:  "Empty JSON body",
			ContentType:  "application/json",
			ExpectedData: "",
		},
		{
			Description: "Bad JSON",
			ContentType: "application/json",
			Body:        []byte(`{"a"`),
			ExpectedErr: ErrDecode,
		},
		{
			Description:  "Text",
			ContentType:  "Text/Plain",
			Body:         []byte("hello"),
			ExpectedData: "hello",
		},
		{
			Description:  "YAML mapping gets string keys",
			ContentType:  "application/x-yaml",
			Body:         []byte("a:\n  b: 1\n"),
			ExpectedData: map[string]interface{}{"a": map[string]interface{}{"b": 1}},
		},
		{
			Description:  "Unknown type stays raw",
			ContentType:  "image/png",
			Body:         []byte{0x89, 'P'},
			ExpectedData: []byte{0x89, 'P'},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			data, err := DefaultCodecs().Decode(tc.ContentType, tc.Body)
			if tc.ExpectedErr != nil {
				require.ErrorIs(t, err, tc.ExpectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ExpectedData, data)
		})
	}
}

func TestEncodePassThrough(t *testing.T) {
	assert := assert.New(t)
	codecs := DefaultCodecs()

	data, err := codecs.Encode("application/json", []byte(`{"raw":true}`))
	assert.NoError(err)
	assert.Equal(`{"raw":true}`, string(data))

	data, err = codecs.Encode("text/plain", 42)
	assert.NoError(err)
	assert.Equal("42", string(data))

	data, err = codecs.Encode("application/json", nil)
	assert.NoError(err)
	assert.Nil(data)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "multipart/mixed", MediaType(`multipart/mixed; boundary="abc"`))
	assert.Equal(t, "application/json", MediaType("APPLICATION/JSON"))
	assert.Equal(t, "text/plain", MediaType("text/plain; broken=\""))
}

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
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// Codec translates request and response bodies of one content type.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

// Codecs maps a media type (without parameters) to its codec.
type Codecs map[string]Codec

// DefaultCodecs returns the stock codec table.
func DefaultCodecs() Codecs {
	return Codecs{
		"application/json":   JSONCodec{},
		"text/plain":         TextCodec{},
		"text/html":          TextCodec{},
		"application/x-yaml": YAMLCodec{},
		"text/yaml":          YAMLCodec{},
	}
}

// MediaType strips parameters from a content type and lower-cases it.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return mt
}

// Lookup finds the codec registered for a content type.
func (c Codecs) Lookup(contentType string) (Codec, bool) {
	codec, ok := c[MediaType(contentType)]
	return codec, ok
}

// Encode encodes a body. Unregistered content types pass raw bodies through.
func (c Codecs) Encode(contentType string, body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if codec, ok := c.Lookup(contentType); ok {
		data, err := codec.Encode(body)
		if err != nil {
			return nil, fmt.Errorf(errWrappedFmt, ErrEncode, err.Error())
		}
		return data, nil
	}
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCodec, contentType)
}

// Decode decodes a body. Unregistered content types are returned as raw bytes.
func (c Codecs) Decode(contentType string, data []byte) (interface{}, error) {
	codec, ok := c.Lookup(contentType)
	if !ok {
		return data, nil
	}
	v, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf(errWrappedFmt, ErrDecode, err.Error())
	}
	return v, nil
}

// JSONCodec encodes values with encoding/json. Raw byte slices are assumed to
// already be JSON and are sent unchanged.
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}

// Decode returns the empty string for an empty body.
func (JSONCodec) Decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// TextCodec carries bodies as strings.
type TextCodec struct{}

func (TextCodec) Encode(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return []byte(fmt.Sprint(v)), nil
	}
	return []byte(s), nil
}

func (TextCodec) Decode(data []byte) (interface{}, error) {
	return string(data), nil
}

// YAMLCodec encodes values with yaml.v2. Decoded mappings use string keys so
// they look like decoded JSON.
type YAMLCodec struct{}

func (YAMLCodec) Encode(v interface{}) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return yaml.Marshal(v)
}

func (YAMLCodec) Decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return "", nil
	}
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return normalizeYAML(v), nil
}

func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[cast.ToString(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	}
	return v
}

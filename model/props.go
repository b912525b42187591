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

package model

import (
	"github.com/mitchellh/mapstructure"
)

// Props is the bucket property mapping. Its keys are defined by the store and
// are carried without interpretation.
type Props map[string]interface{}

// BucketProps is a typed view over the commonly used bucket properties.
type BucketProps struct {
	Name          string      `json:"name,omitempty"`
	NVal          int         `json:"n_val,omitempty"`
	AllowMult     bool        `json:"allow_mult"`
	LastWriteWins bool        `json:"last_write_wins"`
	R             interface{} `json:"r,omitempty"`
	W             interface{} `json:"w,omitempty"`
	DW            interface{} `json:"dw,omitempty"`
	RW            interface{} `json:"rw,omitempty"`
	PR            interface{} `json:"pr,omitempty"`
	PW            interface{} `json:"pw,omitempty"`
	BasicQuorum   bool        `json:"basic_quorum"`
	NotFoundOK    bool        `json:"notfound_ok"`
	Backend       string      `json:"backend,omitempty"`
	Search        bool        `json:"search"`
}

// Merge returns p with overrides deep merged on top. Nested mappings are merged
// key by key, any other value in overrides replaces the one in p. Neither input
// is modified.
func (p Props) Merge(overrides Props) Props {
	return Props(mergeMaps(p, overrides))
}

// Decode copies the properties into v, a pointer to a struct whose fields
// carry json tags.
func (p Props) Decode(v interface{}) error {
	return DecodeJSONTagged(map[string]interface{}(p), v)
}

// DecodeJSONTagged decodes a generic value, as produced by a JSON decoder,
// into v using its json struct tags.
func DecodeJSONTagged(in interface{}, v interface{}) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return d.Decode(in)
}

func mergeMaps(base, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		ov, ok := asMap(v)
		if !ok {
			out[k] = v
			continue
		}
		if bv, ok := asMap(out[k]); ok {
			out[k] = mergeMaps(bv, ov)
			continue
		}
		out[k] = mergeMaps(nil, ov)
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Props:
		return m, true
	}
	return nil, false
}

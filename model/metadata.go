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
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cast"
)

// IndexValues holds the values assigned to one secondary index name. Binary
// and integer values are kept apart since the store indexes them under
// different suffixes.
type IndexValues struct {
	Bin []string `json:"bin,omitempty"`
	Int []int64  `json:"int,omitempty"`
}

// Empty reports whether no value of either kind is assigned.
func (iv IndexValues) Empty() bool {
	return len(iv.Bin) == 0 && len(iv.Int) == 0
}

// Link is a typed pointer from one object to another. A link without a key
// refers to a bucket (the store's rel="up" link).
type Link struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// Metadata is the structured form of the object level headers exchanged
// with the store.
type Metadata struct {
	ContentType  string `json:"content_type,omitempty"`
	VClock       string `json:"vclock,omitempty"`
	LastModified string `json:"last_modified,omitempty"`

	// StatusCode is copied from the response that produced this metadata.
	// It is never sent back as a header.
	StatusCode int `json:"status_code,omitempty"`

	Meta  map[string]string      `json:"meta,omitempty"`
	Index map[string]IndexValues `json:"index,omitempty"`
	Links []Link                 `json:"links,omitempty"`

	// Vendor holds the remaining store specific headers with the vendor
	// prefix removed, e.g. x-riak-deleted becomes "deleted".
	Vendor map[string]string `json:"vendor,omitempty"`

	// Fields holds every other header under its metadata name, e.g. etag or
	// transfer_encoding.
	Fields map[string]string `json:"fields,omitempty"`
}

// response only headers that must not be echoed back on a write.
var responseOnlyFields = []string{
	"etag",
	"location",
	"transfer_encoding",
	"connection",
	"content_encoding",
	"link_walker",
}

// Field returns a flat field by its metadata name.
func (md Metadata) Field(name string) string {
	return md.Fields[name]
}

// SetField sets a flat field by its metadata name.
func (md *Metadata) SetField(name, value string) {
	if md.Fields == nil {
		md.Fields = map[string]string{}
	}
	md.Fields[name] = value
}

// Location is the location header of a create response.
func (md Metadata) Location() string {
	return md.Fields["location"]
}

// Chunked reports whether the originating response used chunked transfer encoding.
func (md Metadata) Chunked() bool {
	return md.Fields["transfer_encoding"] == "chunked"
}

// LastModifiedTime parses LastModified. The boolean is false when the value is
// missing or not a valid HTTP date.
func (md Metadata) LastModifiedTime() (time.Time, bool) {
	if md.LastModified == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(md.LastModified)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (md *Metadata) SetMeta(name, value string) {
	if md.Meta == nil {
		md.Meta = map[string]string{}
	}
	md.Meta[name] = value
}

func (md *Metadata) RemoveMeta(name string) {
	delete(md.Meta, name)
}

// AddIndex assigns value to the named index. Strings are binary values and
// any integer kind is an integer value; other types are rejected.
func (md *Metadata) AddIndex(name string, value interface{}) error {
	if md.Index == nil {
		md.Index = map[string]IndexValues{}
	}
	iv := md.Index[name]
	switch v := value.(type) {
	case string:
		iv.Bin = append(iv.Bin, v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		iv.Int = append(iv.Int, cast.ToInt64(v))
	default:
		return ErrIndexValueType
	}
	md.Index[name] = iv
	return nil
}

// RemoveIndex removes one value from the named index. The index name itself is
// dropped once it holds no value.
func (md *Metadata) RemoveIndex(name string, value interface{}) {
	iv, ok := md.Index[name]
	if !ok {
		return
	}
	switch v := value.(type) {
	case string:
		if i := slices.Index(iv.Bin, v); i >= 0 {
			iv.Bin = slices.Delete(iv.Bin, i, i+1)
		}
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return
		}
		if i := slices.Index(iv.Int, n); i >= 0 {
			iv.Int = slices.Delete(iv.Int, i, i+1)
		}
	}
	if iv.Empty() {
		delete(md.Index, name)
		return
	}
	md.Index[name] = iv
}

// ClearIndex removes every value of the named index.
func (md *Metadata) ClearIndex(name string) {
	delete(md.Index, name)
}

func (md *Metadata) AddLink(l Link) {
	if !slices.Contains(md.Links, l) {
		md.Links = append(md.Links, l)
	}
}

func (md *Metadata) RemoveLink(l Link) {
	md.Links = slices.DeleteFunc(md.Links, func(x Link) bool { return x == l })
}

// Outbound returns a copy suitable for a write request: fields that only make
// sense on a response are left out.
func (md Metadata) Outbound() Metadata {
	out := md.Clone()
	out.StatusCode = 0
	for _, f := range responseOnlyFields {
		delete(out.Fields, f)
	}
	return out
}

// Clone returns a deep copy.
func (md Metadata) Clone() Metadata {
	out := md
	out.Meta = cloneStrings(md.Meta)
	out.Vendor = cloneStrings(md.Vendor)
	out.Fields = cloneStrings(md.Fields)
	out.Links = slices.Clone(md.Links)
	if md.Index != nil {
		out.Index = make(map[string]IndexValues, len(md.Index))
		for name, iv := range md.Index {
			out.Index[name] = IndexValues{
				Bin: slices.Clone(iv.Bin),
				Int: slices.Clone(iv.Int),
			}
		}
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

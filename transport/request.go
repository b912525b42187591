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
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/xmidt-org/nodiak/model"
)

// Request describes one logical operation against the store.
type Request struct {
	Method string

	// Path is the resource path. Caller supplied identifiers in it must
	// already be escaped with Escape.
	Path string

	// Options are rendered as the query string.
	Options map[string]string

	// Metadata is encoded into headers before Header is applied.
	Metadata *model.Metadata

	// Header holds explicit headers. They win over both metadata and the
	// default headers.
	Header map[string]string

	// Body is encoded with the codec of the effective content type.
	Body interface{}
}

// PreparedRequest is a Request with its URI, headers and body finalized.
type PreparedRequest struct {
	Method string
	URI    string
	Header http.Header
	Body   []byte
}

// Escape percent-encodes a single caller supplied path segment.
func Escape(segment string) string {
	return url.PathEscape(segment)
}

// EncodeOptions renders options as ?k=v&k2=v2& with escaped values. Keys are
// sorted so the result is stable. Empty options render as the empty string.
func EncodeOptions(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('?')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(options[k]))
		b.WriteByte('&')
	}
	return b.String()
}

// URI is the path followed by the encoded options.
func (r *Request) URI() string {
	return r.Path + EncodeOptions(r.Options)
}

// Prepare finalizes the request. The URI is assembled first, then headers
// (metadata, explicit headers, defaults in that order), then the body is
// encoded with the codec of the resulting content type.
func (r *Request) Prepare(defaults map[string]string, codecs Codecs) (*PreparedRequest, error) {
	p := &PreparedRequest{
		Method: r.Method,
		URI:    r.URI(),
		Header: http.Header{},
	}
	if r.Metadata != nil {
		p.Header = model.MetadataToHeaders(*r.Metadata)
	}
	for k, v := range r.Header {
		p.Header.Set(k, v)
	}
	names := make([]string, 0, len(defaults))
	for k := range defaults {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if p.Header.Get(k) == "" {
			p.Header.Set(k, defaults[k])
		}
	}

	body, err := codecs.Encode(p.Header.Get("content-type"), r.Body)
	if err != nil {
		return nil, err
	}
	p.Body = body
	return p, nil
}

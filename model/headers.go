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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// VendorPrefix marks store specific headers.
const VendorPrefix = "x-riak-"

const (
	indexPrefix = "index-"
	metaPrefix  = "meta-"
	vclockName  = "vclock"

	binSuffix = "_bin"
	intSuffix = "_int"

	// ValueSeparator joins the values of a multi-valued header.
	ValueSeparator = ", "

	linkBucketRoot = "/buckets"
)

var ErrIndexValueType = errors.New("index values must be strings or integers")

// headers carrying nothing about the stored object.
var ignoredHeaders = map[string]bool{
	"date":           true,
	"content-length": true,
	"server":         true,
	"vary":           true,
}

var linkPattern = regexp.MustCompile(`<([^>]*)>\s*;\s*(riaktag|rel)="([^"]*)"`)

// HeadersToMetadata decodes response (or multipart part) headers.
func HeadersToMetadata(h http.Header) Metadata {
	var md Metadata
	for key, values := range h {
		name := strings.ToLower(key)
		if ignoredHeaders[name] || len(values) == 0 {
			continue
		}
		value := strings.Join(values, ValueSeparator)

		if rest, ok := strings.CutPrefix(name, VendorPrefix); ok {
			md.decodeVendor(rest, value)
			continue
		}

		field := strings.ReplaceAll(name, "-", "_")
		switch field {
		case "content_type":
			md.ContentType = value
		case "last_modified":
			md.LastModified = value
		case "status_code":
			md.StatusCode, _ = strconv.Atoi(value)
		case "link":
			if links, ok := parseLinks(value); ok {
				md.Links = links
			} else {
				md.SetField(field, value)
			}
		default:
			md.SetField(field, value)
		}
	}
	return md
}

func (md *Metadata) decodeVendor(rest, value string) {
	switch {
	case rest == vclockName:
		md.VClock = value
	case strings.HasPrefix(rest, metaPrefix):
		md.SetMeta(strings.TrimPrefix(rest, metaPrefix), value)
	case strings.HasPrefix(rest, indexPrefix):
		name := strings.TrimPrefix(rest, indexPrefix)
		if !md.decodeIndex(name, value) {
			md.setVendor(rest, value)
		}
	default:
		md.setVendor(rest, value)
	}
}

func (md *Metadata) decodeIndex(name, value string) bool {
	values := SplitValues(value)
	if md.Index == nil {
		md.Index = map[string]IndexValues{}
	}
	switch {
	case strings.HasSuffix(name, binSuffix):
		name = strings.TrimSuffix(name, binSuffix)
		iv := md.Index[name]
		iv.Bin = append(iv.Bin, values...)
		md.Index[name] = iv
	case strings.HasSuffix(name, intSuffix):
		name = strings.TrimSuffix(name, intSuffix)
		iv := md.Index[name]
		for _, v := range values {
			n, err := cast.ToInt64E(v)
			if err != nil {
				continue
			}
			iv.Int = append(iv.Int, n)
		}
		md.Index[name] = iv
	default:
		return false
	}
	return true
}

func (md *Metadata) setVendor(name, value string) {
	if md.Vendor == nil {
		md.Vendor = map[string]string{}
	}
	md.Vendor[name] = value
}

// MetadataToHeaders encodes metadata as request headers. vclock, meta and
// index fields go back under the vendor prefix.
func MetadataToHeaders(md Metadata) http.Header {
	h := http.Header{}
	if md.ContentType != "" {
		h.Set("content-type", md.ContentType)
	}
	if md.VClock != "" {
		h.Set(VendorPrefix+vclockName, md.VClock)
	}
	if md.LastModified != "" {
		h.Set("last-modified", md.LastModified)
	}
	for name, value := range md.Meta {
		h.Set(VendorPrefix+metaPrefix+name, value)
	}
	for name, iv := range md.Index {
		if len(iv.Bin) > 0 {
			h.Set(VendorPrefix+indexPrefix+name+binSuffix, strings.Join(iv.Bin, ValueSeparator))
		}
		if len(iv.Int) > 0 {
			ints := make([]string, len(iv.Int))
			for i, n := range iv.Int {
				ints[i] = strconv.FormatInt(n, 10)
			}
			h.Set(VendorPrefix+indexPrefix+name+intSuffix, strings.Join(ints, ValueSeparator))
		}
	}
	if len(md.Links) > 0 {
		h.Set("link", formatLinks(md.Links))
	}
	for name, value := range md.Vendor {
		h.Set(VendorPrefix+name, value)
	}
	for name, value := range md.Fields {
		h.Set(strings.ReplaceAll(name, "_", "-"), value)
	}
	return h
}

// SplitValues splits a multi-valued header value.
func SplitValues(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLinks(value string) ([]Link, bool) {
	matches := linkPattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil, false
	}
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		bucket, key, ok := splitLinkPath(m[1])
		if !ok {
			return nil, false
		}
		l := Link{Bucket: bucket, Key: key}
		if m[2] == "riaktag" {
			l.Tag = m[3]
		}
		links = append(links, l)
	}
	return links, true
}

// splitLinkPath accepts /buckets/{b}, /buckets/{b}/keys/{k} and the legacy
// /riak/{b}[/{k}] form.
func splitLinkPath(p string) (string, string, bool) {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		unescaped, err := url.PathUnescape(s)
		if err != nil {
			return "", "", false
		}
		segments[i] = unescaped
	}
	switch {
	case len(segments) == 2 && segments[0] == "buckets":
		return segments[1], "", true
	case len(segments) == 4 && segments[0] == "buckets" && segments[2] == "keys":
		return segments[1], segments[3], true
	case len(segments) == 2 && segments[0] == "riak":
		return segments[1], "", true
	case len(segments) == 3 && segments[0] == "riak":
		return segments[1], segments[2], true
	}
	return "", "", false
}

func formatLinks(links []Link) string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l.Key == "" && l.Tag == "" {
			out = append(out, fmt.Sprintf(`<%s/%s>; rel="up"`, linkBucketRoot, url.PathEscape(l.Bucket)))
			continue
		}
		if l.Key == "" {
			out = append(out, fmt.Sprintf(`<%s/%s>; riaktag="%s"`, linkBucketRoot, url.PathEscape(l.Bucket), l.Tag))
			continue
		}
		out = append(out, fmt.Sprintf(`<%s/%s/keys/%s>; riaktag="%s"`,
			linkBucketRoot, url.PathEscape(l.Bucket), url.PathEscape(l.Key), l.Tag))
	}
	return strings.Join(out, ValueSeparator)
}

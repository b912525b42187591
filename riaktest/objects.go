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

package riaktest

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/model"
)

const defaultContentType = "application/octet-stream"

type objectRequest struct {
	method  string
	ns      Namespace
	key     string
	vtag    string
	accept  string
	vclock  string
	md      model.Metadata
	value   []byte
	retBody bool
	path    string
}

type objectResponse struct {
	status    int
	vclock    string
	contents  []Content
	location  string
	multipart bool
	body      bool
}

func newObjectHandler(st *Store) http.Handler {
	return kithttp.NewServer(
		newObjectEndpoint(st),
		decodeObjectRequest,
		encodeObjectResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func decodeObjectRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	v := vars(r)
	req := &objectRequest{
		method:  r.Method,
		ns:      namespace(r),
		key:     v[keyVarKey],
		vtag:    r.URL.Query().Get("vtag"),
		accept:  r.Header.Get("Accept"),
		vclock:  r.Header.Get(model.VendorPrefix + "vclock"),
		retBody: r.URL.Query().Get("returnbody") == "true",
		path:    strings.TrimSuffix(r.URL.EscapedPath(), "/"),
	}
	if req.ns.Bucket == "" {
		return nil, badRequest("bucket required")
	}

	switch r.Method {
	case http.MethodPut, http.MethodPost:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, badRequest("failed to read body")
		}
		req.value = data
		req.md = model.HeadersToMetadata(r.Header)
		if req.md.ContentType == "" {
			req.md.ContentType = defaultContentType
		}
		if r.Method == http.MethodPut && req.key == "" {
			return nil, badRequest("key required")
		}
	}
	return req, nil
}

func newObjectEndpoint(st *Store) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*objectRequest)
		switch req.method {
		case http.MethodGet, http.MethodHead:
			return fetchObject(st, req)
		case http.MethodDelete:
			if !st.Delete(req.ns, req.key) {
				return nil, notFound()
			}
			return &objectResponse{status: http.StatusNoContent}, nil
		default:
			return storeObject(st, req), nil
		}
	}
}

func fetchObject(st *Store, req *objectRequest) (*objectResponse, error) {
	obj, ok := st.Get(req.ns, req.key)
	if !ok {
		return nil, notFound()
	}
	resp := &objectResponse{
		status:   http.StatusOK,
		vclock:   obj.VClock,
		contents: obj.Siblings,
		body:     req.method != http.MethodHead,
	}
	if req.vtag != "" {
		c, ok := obj.Sibling(req.vtag)
		if !ok {
			return nil, notFound()
		}
		resp.contents = []Content{c}
	}
	if len(resp.contents) > 1 {
		resp.status = http.StatusMultipleChoices
		resp.multipart = strings.Contains(req.accept, "multipart/mixed")
	}
	return resp, nil
}

func storeObject(st *Store, req *objectRequest) *objectResponse {
	key := req.key
	var location string
	if key == "" {
		key = strings.ReplaceAll(uuid.NewString(), "-", "")
		location = req.path + "/" + key
	}

	obj := st.Put(req.ns, key, contentFromMetadata(req.value, req.md), req.vclock)

	resp := &objectResponse{
		status:   http.StatusNoContent,
		vclock:   obj.VClock,
		location: location,
	}
	if location != "" {
		resp.status = http.StatusCreated
	}
	if !req.retBody {
		return resp
	}

	resp.body = true
	resp.contents = obj.Siblings
	switch {
	case len(obj.Siblings) > 1:
		resp.status = http.StatusMultipleChoices
		resp.multipart = true
	case location == "":
		resp.status = http.StatusOK
	}
	return resp
}

func encodeObjectResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	r := response.(*objectResponse)
	h := w.Header()
	if r.location != "" {
		h.Set("Location", r.location)
	}
	if r.vclock != "" {
		h.Set(model.VendorPrefix+"vclock", r.vclock)
	}

	switch {
	case len(r.contents) == 0:
		w.WriteHeader(r.status)
		return nil
	case len(r.contents) > 1 && r.multipart:
		return writeMultipart(w, r)
	case len(r.contents) > 1:
		h.Set("Content-Type", "text/plain")
		w.WriteHeader(r.status)
		var buf strings.Builder
		buf.WriteString("Siblings:\n")
		for _, c := range r.contents {
			buf.WriteString(c.VTag + "\n")
		}
		_, err := io.WriteString(w, buf.String())
		return err
	}

	c := r.contents[0]
	for k, values := range contentHeaders(c) {
		h[k] = values
	}
	w.WriteHeader(r.status)
	if !r.body {
		return nil
	}
	_, err := w.Write(c.Value)
	return err
}

func writeMultipart(w http.ResponseWriter, r *objectResponse) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, c := range r.contents {
		pw, err := mw.CreatePart(textproto.MIMEHeader(contentHeaders(c)))
		if err != nil {
			return err
		}
		if _, err := pw.Write(c.Value); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	w.WriteHeader(r.status)
	_, err := w.Write(buf.Bytes())
	return err
}

// contentHeaders renders one sibling the way the store does, minus the
// object level vclock.
func contentHeaders(c Content) http.Header {
	md := model.Metadata{
		ContentType:  c.ContentType,
		LastModified: c.LastModified.Format(http.TimeFormat),
		Meta:         c.Meta,
		Links:        c.Links,
		Index:        map[string]model.IndexValues{},
	}
	for full, values := range c.Index {
		i := strings.LastIndex(full, "_")
		if i < 0 {
			continue
		}
		name, kind := full[:i], full[i+1:]
		iv := md.Index[name]
		for _, v := range values {
			if kind == "int" {
				iv.Int = append(iv.Int, cast.ToInt64(v))
			} else {
				iv.Bin = append(iv.Bin, v)
			}
		}
		md.Index[name] = iv
	}
	md.SetField("etag", `"`+c.VTag+`"`)

	h := http.Header{}
	for k, values := range model.MetadataToHeaders(md) {
		h[http.CanonicalHeaderKey(k)] = values
	}
	return h
}

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
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/xmidt-org/nodiak/model"
)

const multipartMixed = "multipart/mixed"

// Response is an interpreted, fully buffered response.
type Response struct {
	StatusCode int
	Metadata   model.Metadata

	// Data is the decoded body: the codec result for registered content
	// types, []Part for multipart/mixed and the raw bytes otherwise.
	Data interface{}

	// Body is the raw body.
	Body []byte
}

// Parts returns the decoded multipart parts, if the body was multipart/mixed.
func (r *Response) Parts() []Part {
	parts, _ := r.Data.([]Part)
	return parts
}

// Part is one decoded part of a multipart/mixed body.
type Part struct {
	Metadata model.Metadata
	Data     interface{}
	Body     []byte
}

// responseMetadata decodes the response headers and adds the synthetic status
// code and the transfer encoding that net/http moves out of the header map.
func responseMetadata(resp *http.Response) model.Metadata {
	md := model.HeadersToMetadata(resp.Header)
	md.StatusCode = resp.StatusCode
	if len(resp.TransferEncoding) > 0 {
		md.SetField("transfer_encoding", strings.Join(resp.TransferEncoding, model.ValueSeparator))
	}
	return md
}

func isChunked(resp *http.Response) bool {
	for _, te := range resp.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			return true
		}
	}
	return false
}

// readBody buffers the whole body. The content length only sizes the buffer.
func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if resp.ContentLength > 0 && resp.ContentLength < 64<<20 {
		buf.Grow(int(resp.ContentLength))
	}
	_, err := buf.ReadFrom(resp.Body)
	return buf.Bytes(), err
}

// decodeBody decodes a buffered body by content type.
func (c Codecs) decodeBody(contentType string, body []byte) (interface{}, error) {
	if MediaType(contentType) == multipartMixed {
		return c.DecodeMultipart(contentType, bytes.NewReader(body))
	}
	return c.Decode(contentType, body)
}

// DecodeMultipart splits a multipart/mixed body on the boundary of its content
// type. Every part's headers become metadata and its body is decoded by its
// own content type. Preamble and epilogue are dropped.
func (c Codecs) DecodeMultipart(contentType string, body io.Reader) ([]Part, error) {
	mr, err := multipartReader(contentType, body)
	if err != nil {
		return nil, err
	}
	var parts []Part
	for {
		part, err := nextPart(mr, c)
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return parts, err
		}
		parts = append(parts, part)
	}
}

func multipartReader(contentType string, body io.Reader) (*multipart.Reader, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf(errWrappedFmt, ErrDecode, err.Error())
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, ErrMultipartBoundary
	}
	return multipart.NewReader(body, boundary), nil
}

func nextPart(mr *multipart.Reader, c Codecs) (Part, error) {
	p, err := mr.NextRawPart()
	if err != nil {
		if err == io.EOF {
			return Part{}, err
		}
		return Part{}, fmt.Errorf(errWrappedFmt, ErrDecode, err.Error())
	}
	defer p.Close()

	data, err := io.ReadAll(p)
	if err != nil {
		return Part{}, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	part := Part{
		Metadata: model.HeadersToMetadata(http.Header(p.Header)),
		Body:     data,
	}
	part.Data, err = c.Decode(part.Metadata.ContentType, data)
	return part, err
}

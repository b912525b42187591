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
	"net/http"
	"strconv"

	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/transport"
)

// Search groups the query operations of a bucket.
type Search struct {
	bucket *Bucket
}

// IndexOptions page secondary index queries.
type IndexOptions struct {
	// MaxResults caps the number of keys returned. Zero means no cap.
	MaxResults int

	// Continuation resumes a paged query.
	Continuation string

	// Options are extra query options.
	Options Options
}

func (o IndexOptions) options() Options {
	out := Options{}
	for k, v := range o.Options {
		out[k] = v
	}
	if o.MaxResults > 0 {
		out["max_results"] = strconv.Itoa(o.MaxResults)
	}
	if o.Continuation != "" {
		out["continuation"] = o.Continuation
	}
	return out
}

// IndexResult is the outcome of a secondary index query.
type IndexResult struct {
	Keys []string

	// Continuation is set when more results are available.
	Continuation string
}

func (s *Search) indexPath(q IndexQuery, index string) string {
	q = q.forIndex(index)
	segments := append([]string{"index", q.IndexName(index)}, q.Values()...)
	return s.bucket.path(s.bucket.client.resources.Index, segments...)
}

// TwoI queries a secondary index. Duplicate keys are removed.
func (s *Search) TwoI(ctx context.Context, q IndexQuery, index string, opts IndexOptions) (IndexResult, error) {
	if index == "" {
		return IndexResult{}, ErrEmptyIndex
	}
	resp, err := s.bucket.client.do(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    s.indexPath(q, index),
		Options: opts.options(),
		Header:  map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return IndexResult{}, err
	}
	obj, err := asObject(resp.Data)
	if err != nil {
		return IndexResult{}, err
	}
	return IndexResult{
		Keys:         dedup(cast.ToStringSlice(obj["keys"])),
		Continuation: cast.ToString(obj["continuation"]),
	}, nil
}

// TwoIStream streams the results of a secondary index query. Keys already
// delivered in an earlier batch are not repeated; the continuation, if any,
// comes with the batch that carried it.
func (s *Search) TwoIStream(ctx context.Context, q IndexQuery, index string, opts IndexOptions) *transport.Stream[IndexResult] {
	if index == "" {
		return transport.NewStream[IndexResult](s.bucket.client.errorHandler()).Go(func(out *transport.Stream[IndexResult]) {
			out.Error(ErrEmptyIndex)
		})
	}
	options := opts.options()
	options["stream"] = "true"
	src := s.bucket.client.transport.Stream(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    s.indexPath(q, index),
		Options: options,
		Header:  map[string]string{"accept": "application/json"},
	})

	seen := map[string]struct{}{}
	return mapStream(s.bucket.client, src, func(c transport.Chunk, out *transport.Stream[IndexResult]) {
		obj, ok := c.Data.(map[string]interface{})
		if !ok {
			return
		}
		var r IndexResult
		for _, k := range cast.ToStringSlice(obj["keys"]) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			r.Keys = append(r.Keys, k)
		}
		r.Continuation = cast.ToString(obj["continuation"])
		if len(r.Keys) > 0 || r.Continuation != "" {
			out.Value(r)
		}
	})
}

// TwoIObjects queries a secondary index and fetches the matching objects.
func (s *Search) TwoIObjects(ctx context.Context, q IndexQuery, index string, opts IndexOptions) ([]*RObject, error) {
	result, err := s.TwoI(ctx, q, index, opts)
	if err != nil {
		return nil, err
	}
	if len(result.Keys) == 0 {
		return []*RObject{}, nil
	}
	return s.bucket.Objects.Get(ctx, result.Keys, nil)
}

// Solr runs a full text query. The query mapping is sent as URL options and
// wt defaults to json.
func (s *Search) Solr(ctx context.Context, query map[string]string) (map[string]interface{}, error) {
	options := Options{"wt": "json"}
	for k, v := range query {
		options[k] = v
	}
	resp, err := s.bucket.client.do(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    s.bucket.client.resources.Search + "/" + transport.Escape(s.bucket.Name) + "/select",
		Options: options,
	})
	if err != nil {
		return nil, err
	}
	return asObject(resp.Data)
}

// SolrKeys runs a full text query and returns the keys of the matching
// documents without duplicates.
func (s *Search) SolrKeys(ctx context.Context, query map[string]string) ([]string, error) {
	result, err := s.Solr(ctx, query)
	if err != nil {
		return nil, err
	}
	response, _ := result["response"].(map[string]interface{})
	docs, _ := response["docs"].([]interface{})
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		if doc, ok := d.(map[string]interface{}); ok {
			if id := cast.ToString(doc["id"]); id != "" {
				keys = append(keys, id)
			}
		}
	}
	return dedup(keys), nil
}

// SolrObjects runs a full text query and fetches the matching objects.
func (s *Search) SolrObjects(ctx context.Context, query map[string]string) ([]*RObject, error) {
	keys, err := s.SolrKeys(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*RObject{}, nil
	}
	return s.bucket.Objects.Get(ctx, keys, nil)
}

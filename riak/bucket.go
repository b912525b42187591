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

	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/transport"
)

// Bucket is a named collection of objects, optionally scoped to a bucket
// type. A Bucket is a local handle: creating one makes no request.
type Bucket struct {
	client *Client

	Name string

	// Type is the bucket type. Empty means the default type.
	Type string

	// Props holds the properties last read from the store plus any local
	// changes waiting for SaveProps.
	Props model.Props

	// Resolver picks the winner among siblings. Defaults to LastWriteWins.
	Resolver Resolver

	// SiblingsSync fetches all siblings with a single multipart request
	// instead of one request per vtag.
	SiblingsSync bool

	Objects *Objects
	Search  *Search
}

// SavePropsOptions control SavePropsWithOptions.
type SavePropsOptions struct {
	// Merge reads the stored props first and deep merges Props on top.
	Merge bool

	// ReturnBody reads the props back after saving them.
	ReturnBody bool
}

func newBucket(c *Client, name string) *Bucket {
	b := &Bucket{
		client:   c,
		Name:     name,
		Props:    model.Props{},
		Resolver: LastWriteWins,
	}
	b.Objects = &Objects{bucket: b}
	b.Search = &Search{bucket: b}
	return b
}

// OfType scopes the bucket to a bucket type and returns it.
func (b *Bucket) OfType(bucketType string) *Bucket {
	b.Type = bucketType
	return b
}

// path builds a resource path under the bucket. Every segment is escaped.
func (b *Bucket) path(root string, segments ...string) string {
	p := root + "/" + transport.Escape(b.Name)
	if b.Type != "" {
		p = b.client.resources.Types + "/" + transport.Escape(b.Type) + "/buckets/" + transport.Escape(b.Name)
	}
	for _, s := range segments {
		p += "/" + transport.Escape(s)
	}
	return p
}

func (b *Bucket) propsPath() string {
	return b.path(b.client.resources.Buckets) + "/props"
}

func (b *Bucket) keysPath() string {
	return b.path(b.client.resources.Keys) + "/keys"
}

func (b *Bucket) keyPath(key string) string {
	return b.keysPath() + "/" + transport.Escape(key)
}

func (b *Bucket) resolve(siblings []*RObject) *RObject {
	if b.Resolver == nil {
		return LastWriteWins(siblings)
	}
	return b.Resolver(siblings)
}

// GetProps reads the bucket properties from the store and keeps them in Props.
func (b *Bucket) GetProps(ctx context.Context) (model.Props, error) {
	props, err := getProps(ctx, b.client, b.propsPath())
	if err != nil {
		return nil, err
	}
	b.Props = props
	return props, nil
}

// SaveProps writes Props to the store and reads them back. With merge the
// stored props are fetched first and Props is deep merged on top; otherwise
// the stored props are replaced.
func (b *Bucket) SaveProps(ctx context.Context, merge bool) (model.Props, error) {
	return b.SavePropsWithOptions(ctx, SavePropsOptions{Merge: merge, ReturnBody: true})
}

// SavePropsWithOptions is SaveProps with every option spelled out.
func (b *Bucket) SavePropsWithOptions(ctx context.Context, opts SavePropsOptions) (model.Props, error) {
	props := b.Props
	if opts.Merge {
		stored, err := getProps(ctx, b.client, b.propsPath())
		if err != nil {
			return nil, err
		}
		props = stored.Merge(props)
	}
	if err := putProps(ctx, b.client, b.propsPath(), props); err != nil {
		return nil, err
	}
	b.Props = props
	if !opts.ReturnBody {
		return props, nil
	}
	return b.GetProps(ctx)
}

func getProps(ctx context.Context, c *Client, path string) (model.Props, error) {
	resp, err := c.do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Header: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	obj, err := asObject(resp.Data)
	if err != nil {
		return nil, err
	}
	props, ok := obj["props"].(map[string]interface{})
	if !ok {
		return model.Props{}, nil
	}
	return model.Props(props), nil
}

func putProps(ctx context.Context, c *Client, path string, props model.Props) error {
	if props == nil {
		props = model.Props{}
	}
	_, err := c.do(ctx, &transport.Request{
		Method: http.MethodPut,
		Path:   path,
		Header: map[string]string{
			"accept":       "application/json",
			"content-type": "application/json",
		},
		Body: map[string]interface{}{"props": map[string]interface{}(props)},
	})
	return err
}

// Keys streams the keys of the bucket in the batches the store sends them.
// Batch sizes are up to the store.
func (b *Bucket) Keys(ctx context.Context) *transport.Stream[[]string] {
	src := b.client.transport.Stream(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    b.keysPath(),
		Options: Options{"keys": "stream"},
		Header:  map[string]string{"accept": "application/json"},
	})
	return mapStream(b.client, src, func(c transport.Chunk, out *transport.Stream[[]string]) {
		obj, ok := c.Data.(map[string]interface{})
		if !ok {
			return
		}
		if keys := cast.ToStringSlice(obj["keys"]); len(keys) > 0 {
			out.Value(keys)
		}
	})
}

// ListKeys returns every key of the bucket in one response.
func (b *Bucket) ListKeys(ctx context.Context) ([]string, error) {
	resp, err := b.client.do(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    b.keysPath(),
		Options: Options{"keys": "true"},
		Header:  map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	obj, err := asObject(resp.Data)
	if err != nil {
		return nil, err
	}
	return cast.ToStringSlice(obj["keys"]), nil
}

// Counter returns a handle on a counter stored in the bucket.
func (b *Bucket) Counter(name string) *Counter {
	return &Counter{bucket: b, Name: name}
}

// mapStream forwards the data chunks of src through fn into a new stream.
// Errors pass through unchanged and the final chunk is dropped. src is always
// drained, even after the consumer of the new stream detached.
func mapStream[R any](c *Client, src *transport.Stream[transport.Chunk], fn func(transport.Chunk, *transport.Stream[R])) *transport.Stream[R] {
	return transport.NewStream[R](c.errorHandler()).Go(func(out *transport.Stream[R]) {
		for e := range src.Events() {
			switch {
			case e.Err != nil:
				out.Error(e.Err)
			case !e.Value.Final:
				fn(e.Value, out)
			}
		}
	})
}

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
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/transport"
	"go.uber.org/zap"
)

const multipartMixed = "multipart/mixed"

// Objects groups the object operations of a bucket.
type Objects struct {
	bucket *Bucket
}

// New returns an unsaved object. An empty key lets the store pick one on
// save.
func (o *Objects) New(key string, data interface{}) *RObject {
	return &RObject{Bucket: o.bucket, Key: key, Data: data}
}

// Get fetches every key concurrently. Repeated keys are fetched once.
// Objects in conflict are resolved with the bucket resolver. The objects
// found are returned together with the combined *ItemError of every key
// that failed, a missing key included.
func (o *Objects) Get(ctx context.Context, keys []string, options Options) ([]*RObject, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return joinMany(ctx, dedup(keys), identity, func(ctx context.Context, key string) (*RObject, error) {
		return o.GetOne(ctx, key, options)
	})
}

// GetStream is the streamed form of Get. Objects are delivered as their
// requests complete. Without keys the stream carries a single ErrNoKeys
// event instead of the synchronous error Get returns.
func (o *Objects) GetStream(ctx context.Context, keys []string, options Options) *transport.Stream[*RObject] {
	return streamMany(ctx, o.bucket.client.errorHandler(), dedup(keys), ErrNoKeys, identity, func(ctx context.Context, key string) (*RObject, error) {
		return o.GetOne(ctx, key, options)
	})
}

// GetOne fetches a single key.
func (o *Objects) GetOne(ctx context.Context, key string, options Options) (*RObject, error) {
	return o.get(ctx, key, options, nil)
}

func (o *Objects) get(ctx context.Context, key string, options Options, header map[string]string) (*RObject, error) {
	resp, err := o.bucket.client.do(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    o.bucket.keyPath(key),
		Options: options,
		Header:  header,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMultipleChoices {
		return o.resolveResponse(ctx, key, options, resp)
	}
	return o.fromResponse(key, options, resp.Data, resp.Metadata), nil
}

func (o *Objects) fromResponse(key string, options Options, data interface{}, md model.Metadata) *RObject {
	return &RObject{Bucket: o.bucket, Key: key, Data: data, Metadata: md, Options: options}
}

// resolveResponse turns a 300 response into the resolved object.
func (o *Objects) resolveResponse(ctx context.Context, key string, options Options, resp *transport.Response) (*RObject, error) {
	var (
		siblings []*RObject
		err      error
	)
	if transport.MediaType(resp.Metadata.ContentType) == multipartMixed {
		siblings = o.fromParts(key, options, resp)
	} else {
		siblings, err = o.Siblings(ctx, key, siblingVTags(resp), options)
		if err != nil {
			return nil, err
		}
	}
	if len(siblings) == 0 {
		return nil, ErrNoSiblings
	}

	o.bucket.client.log(ctx).Debug("resolving siblings",
		zap.String("bucket", o.bucket.Name), zap.String("key", key), zap.Int("siblings", len(siblings)))

	resolved := o.bucket.resolve(siblings)
	if resolved == nil {
		return nil, fmt.Errorf(errWrappedFmt, ErrNoWinner, key)
	}
	winner := *resolved
	winner.Siblings = siblings
	return &winner, nil
}

// siblingVTags reads the vtag list of a 300 response. The text form is a
// "Siblings:" line followed by one vtag per line.
func siblingVTags(resp *transport.Response) []string {
	switch d := resp.Data.(type) {
	case string:
		lines := strings.Split(d, "\n")
		if len(lines) < 2 {
			return nil
		}
		lines = lines[1:]
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		return lines
	case map[string]interface{}:
		return cast.ToStringSlice(d["siblings"])
	case []interface{}:
		return cast.ToStringSlice(d)
	}
	return nil
}

// fromParts builds siblings out of a multipart response. Parts carry no
// vclock, so the one of the response is copied into each of them.
func (o *Objects) fromParts(key string, options Options, resp *transport.Response) []*RObject {
	parts := resp.Parts()
	siblings := make([]*RObject, 0, len(parts))
	for _, p := range parts {
		md := p.Metadata
		if md.VClock == "" {
			md.VClock = resp.Metadata.VClock
		}
		md.StatusCode = resp.StatusCode
		siblings = append(siblings, o.fromResponse(key, options, p.Data, md))
	}
	return siblings
}

// Siblings fetches the siblings of a conflicted key. A bucket with
// SiblingsSync reads them all with one multipart request; otherwise every
// vtag is fetched on its own. When vtags is empty they are looked up first.
// A key that is not in conflict yields the object alone.
func (o *Objects) Siblings(ctx context.Context, key string, vtags []string, options Options) ([]*RObject, error) {
	if o.bucket.SiblingsSync {
		resp, err := o.bucket.client.do(ctx, &transport.Request{
			Method:  http.MethodGet,
			Path:    o.bucket.keyPath(key),
			Options: options,
			Header:  map[string]string{"accept": multipartMixed},
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusMultipleChoices {
			return []*RObject{o.fromResponse(key, options, resp.Data, resp.Metadata)}, nil
		}
		return o.fromParts(key, options, resp), nil
	}

	if len(vtags) == 0 {
		resp, err := o.bucket.client.do(ctx, &transport.Request{
			Method:  http.MethodGet,
			Path:    o.bucket.keyPath(key),
			Options: options,
			Header:  map[string]string{"accept": "text/plain"},
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusMultipleChoices {
			return []*RObject{o.fromResponse(key, options, resp.Data, resp.Metadata)}, nil
		}
		vtags = siblingVTags(resp)
	}

	return joinMany(ctx, vtags, identity, func(ctx context.Context, vtag string) (*RObject, error) {
		return o.get(ctx, key, options.with("vtag", vtag), nil)
	})
}

// All fetches every object of the bucket: the keys are streamed first and
// then fetched like Get.
func (o *Objects) All(ctx context.Context) ([]*RObject, error) {
	batches, err := o.bucket.Keys(ctx).Collect()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, batch := range batches {
		keys = append(keys, batch...)
	}
	if len(keys) == 0 {
		return []*RObject{}, nil
	}
	return o.Get(ctx, keys, nil)
}

// Exists reports whether key is stored. Any answer but 404 means it is;
// only transport failures are errors.
func (o *Objects) Exists(ctx context.Context, key string, options Options) (bool, error) {
	_, err := o.Head(ctx, key, options)
	if err == nil {
		return true, nil
	}
	if transport.IsNotFound(err) {
		return false, nil
	}
	if _, ok := transport.StatusCode(err); ok {
		return true, nil
	}
	return false, err
}

// Head reads the metadata of key without its value.
func (o *Objects) Head(ctx context.Context, key string, options Options) (model.Metadata, error) {
	resp, err := o.bucket.client.do(ctx, &transport.Request{
		Method:  http.MethodHead,
		Path:    o.bucket.keyPath(key),
		Options: options,
	})
	if resp == nil {
		return model.Metadata{}, err
	}
	return resp.Metadata, err
}

// Save writes every object concurrently. See RObject.Save.
func (o *Objects) Save(ctx context.Context, objects []*RObject) ([]*RObject, error) {
	if len(objects) == 0 {
		return nil, ErrNoObjects
	}
	return joinMany(ctx, objects, objectKey, saveObject)
}

// SaveStream is the streamed form of Save. Without objects the stream carries
// a single ErrNoObjects event.
func (o *Objects) SaveStream(ctx context.Context, objects []*RObject) *transport.Stream[*RObject] {
	return streamMany(ctx, o.bucket.client.errorHandler(), objects, ErrNoObjects, objectKey, saveObject)
}

// Delete removes every object concurrently. See RObject.Delete.
func (o *Objects) Delete(ctx context.Context, objects []*RObject) ([]*RObject, error) {
	if len(objects) == 0 {
		return nil, ErrNoObjects
	}
	return joinMany(ctx, objects, objectKey, deleteObject)
}

// DeleteStream is the streamed form of Delete. Without objects the stream
// carries a single ErrNoObjects event.
func (o *Objects) DeleteStream(ctx context.Context, objects []*RObject) *transport.Stream[*RObject] {
	return streamMany(ctx, o.bucket.client.errorHandler(), objects, ErrNoObjects, objectKey, deleteObject)
}

func saveObject(ctx context.Context, obj *RObject) (*RObject, error) {
	if err := obj.Save(ctx); err != nil {
		return nil, &ItemError{Key: obj.Key, Object: obj, Err: err}
	}
	return obj, nil
}

func deleteObject(ctx context.Context, obj *RObject) (*RObject, error) {
	if err := obj.Delete(ctx); err != nil {
		return nil, &ItemError{Key: obj.Key, Object: obj, Err: err}
	}
	return obj, nil
}

func identity(s string) string {
	return s
}

func objectKey(o *RObject) string {
	return o.Key
}

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

	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/transport"
	"go.uber.org/zap"
)

// RObject is one object of a bucket together with its metadata.
type RObject struct {
	Bucket *Bucket

	// Key is empty until a save assigns one.
	Key string

	Data     interface{}
	Metadata model.Metadata

	// Options are sent as query options with every request for the object.
	Options Options

	// Siblings holds every sibling when the object was resolved from a
	// conflict. The object itself is a copy of the winner.
	Siblings []*RObject
}

// Conflicted reports whether the object was resolved from siblings.
func (o *RObject) Conflicted() bool {
	return len(o.Siblings) > 0
}

// Save writes the object. Without a key the store assigns one, which is
// then copied into Key. A 204 response leaves Data and Metadata as they are;
// otherwise the stored version replaces them.
func (o *RObject) Save(ctx context.Context) error {
	req := &transport.Request{
		Method:  http.MethodPut,
		Path:    o.Bucket.keyPath(o.Key),
		Options: o.Options,
		Body:    o.Data,
	}
	if o.Key == "" {
		req.Method = http.MethodPost
		req.Path = o.Bucket.keysPath()
	}
	md := o.Metadata.Outbound()
	req.Metadata = &md

	resp, err := o.Bucket.client.do(ctx, req)
	if err != nil {
		return err
	}

	if o.Key == "" {
		key, err := keyFromLocation(resp.Metadata.Location())
		if err != nil {
			return err
		}
		o.Key = key
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode == http.StatusMultipleChoices {
		return o.adoptSiblings(ctx, resp)
	}
	o.Metadata = resp.Metadata
	if len(resp.Body) > 0 {
		o.Data = resp.Data
	}
	return nil
}

func keyFromLocation(location string) (string, error) {
	i := strings.LastIndex(location, "/")
	if location == "" || i == len(location)-1 {
		return "", fmt.Errorf(errWrappedFmt, ErrNoLocation, location)
	}
	return location[i+1:], nil
}

// adoptSiblings handles a save answered with siblings, which happens with
// returnbody on a bucket allowing them.
func (o *RObject) adoptSiblings(ctx context.Context, resp *transport.Response) error {
	resolved, err := o.Bucket.Objects.resolveResponse(ctx, o.Key, o.Options, resp)
	if err != nil {
		return err
	}
	o.Data = resolved.Data
	o.Metadata = resolved.Metadata
	o.Siblings = resolved.Siblings
	return nil
}

// Delete removes the object. Deleting a missing object succeeds.
func (o *RObject) Delete(ctx context.Context) error {
	if o.Key == "" {
		return ErrMissingKey
	}
	req := &transport.Request{
		Method:  http.MethodDelete,
		Path:    o.Bucket.keyPath(o.Key),
		Options: o.Options,
	}
	if o.Metadata.VClock != "" {
		req.Header = map[string]string{model.VendorPrefix + "vclock": o.Metadata.VClock}
	}
	_, err := o.Bucket.client.do(ctx, req)
	return err
}

// Exists reports whether the object is stored.
func (o *RObject) Exists(ctx context.Context) (bool, error) {
	return o.Bucket.Objects.Exists(ctx, o.Key, o.Options)
}

// Fetch reloads the object from the store, resolving siblings if needed.
func (o *RObject) Fetch(ctx context.Context) error {
	if o.Key == "" {
		return ErrMissingKey
	}
	fresh, err := o.Bucket.Objects.GetOne(ctx, o.Key, o.Options)
	if err != nil {
		return err
	}
	o.Data = fresh.Data
	o.Metadata = fresh.Metadata
	o.Siblings = fresh.Siblings
	return nil
}

// Decode copies Data into v, a pointer to a struct with json tags or a map.
func (o *RObject) Decode(v interface{}) error {
	return model.DecodeJSONTagged(o.Data, v)
}

func (o *RObject) AddMeta(name, value string) {
	o.Metadata.SetMeta(name, value)
}

func (o *RObject) RemoveMeta(name string) {
	o.Metadata.RemoveMeta(name)
}

// AddToIndex assigns a secondary index value. Strings go to the binary index
// and integers to the integer index of the same name.
func (o *RObject) AddToIndex(name string, value interface{}) error {
	if name == "" {
		return ErrEmptyIndex
	}
	err := o.Metadata.AddIndex(name, value)
	if err != nil {
		o.Bucket.client.logger.Debug("rejected index value",
			zap.String("index", name), zap.Any("value", value), zap.Error(err))
	}
	return err
}

func (o *RObject) RemoveFromIndex(name string, value interface{}) {
	o.Metadata.RemoveIndex(name, value)
}

func (o *RObject) ClearIndex(name string) {
	o.Metadata.ClearIndex(name)
}

// AddLink links the object to another one. An empty key links to a bucket.
func (o *RObject) AddLink(bucket, key, tag string) {
	o.Metadata.AddLink(model.Link{Bucket: bucket, Key: key, Tag: tag})
}

func (o *RObject) RemoveLink(bucket, key, tag string) {
	o.Metadata.RemoveLink(model.Link{Bucket: bucket, Key: key, Tag: tag})
}

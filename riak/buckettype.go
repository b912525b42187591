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

	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/transport"
)

// BucketType groups buckets sharing a set of properties.
type BucketType struct {
	client *Client
	Name   string
}

func (t *BucketType) path() string {
	return t.client.resources.Types + "/" + transport.Escape(t.Name)
}

// Bucket returns a handle on a bucket of this type. No request is made.
func (t *BucketType) Bucket(name string) *Bucket {
	return t.client.Bucket(name).OfType(t.Name)
}

// Buckets lists the buckets of this type.
func (t *BucketType) Buckets(ctx context.Context) ([]string, error) {
	return t.client.listBuckets(ctx, t.path()+"/buckets")
}

// GetProps reads the properties of the type.
func (t *BucketType) GetProps(ctx context.Context) (model.Props, error) {
	return getProps(ctx, t.client, t.path()+"/props")
}

// SaveProps replaces the properties of the type, or deep merges props into
// the stored ones with merge, and returns the stored result.
func (t *BucketType) SaveProps(ctx context.Context, props model.Props, merge bool) (model.Props, error) {
	if merge {
		stored, err := t.GetProps(ctx)
		if err != nil {
			return nil, err
		}
		props = stored.Merge(props)
	}
	if err := putProps(ctx, t.client, t.path()+"/props", props); err != nil {
		return nil, err
	}
	return t.GetProps(ctx)
}

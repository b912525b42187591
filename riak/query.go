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
	"github.com/spf13/cast"
)

// Special index names understood by the store.
const (
	BucketIndex = "$bucket"
	KeyIndex    = "$key"

	bucketIndexValue = "_"
	intSuffix        = "_int"
	binSuffix        = "_bin"
)

// IndexQuery is a secondary index match, either on one value or on an
// inclusive range.
type IndexQuery struct {
	low, high interface{}
	isRange   bool
}

// Exact matches a single index value.
func Exact(v interface{}) IndexQuery {
	return IndexQuery{low: v}
}

// Range matches every index value between low and high, both included.
func Range(low, high interface{}) IndexQuery {
	return IndexQuery{low: low, high: high, isRange: true}
}

// IsRange reports whether the query is a range.
func (q IndexQuery) IsRange() bool {
	return q.isRange
}

// Values returns the query bounds as they are sent.
func (q IndexQuery) Values() []string {
	if q.isRange {
		return []string{cast.ToString(q.low), cast.ToString(q.high)}
	}
	return []string{cast.ToString(q.low)}
}

// IndexName returns the full index name for index. Integer values, and
// strings made of digits only, select the integer index; everything else the
// binary one. A range is typed by its low bound. $key is never suffixed and
// $bucket is returned as is.
func (q IndexQuery) IndexName(index string) string {
	if index == KeyIndex || index == BucketIndex {
		return index
	}
	if isIntegerValue(q.low) {
		return index + intSuffix
	}
	return index + binSuffix
}

// forIndex normalizes the query for index: $bucket always matches the
// bucket sentinel.
func (q IndexQuery) forIndex(index string) IndexQuery {
	if index == BucketIndex {
		return Exact(bucketIndexValue)
	}
	return q
}

func isIntegerValue(v interface{}) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		if t == "" {
			return false
		}
		for _, r := range t {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return false
}

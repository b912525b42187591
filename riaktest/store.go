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
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/model"
)

// DefaultType is the bucket type of buckets addressed without one.
const DefaultType = "default"

// Namespace locates a bucket.
type Namespace struct {
	Type   string
	Bucket string
}

func (ns Namespace) normalize() Namespace {
	if ns.Type == "" {
		ns.Type = DefaultType
	}
	return ns
}

// Content is one value of a key. A key in conflict holds several.
type Content struct {
	Value        []byte
	ContentType  string
	Meta         map[string]string
	Index        map[string][]string
	Links        []model.Link
	LastModified time.Time
	VTag         string
}

// Object is a stored key with its vclock and siblings.
type Object struct {
	VClock   string
	Siblings []Content
}

// Sibling returns the content with the given vtag.
func (o Object) Sibling(vtag string) (Content, bool) {
	for _, c := range o.Siblings {
		if c.VTag == vtag {
			return c, true
		}
	}
	return Content{}, false
}

type bucket struct {
	objects  map[string]Object
	props    model.Props
	counters map[string]int64
}

// Store is an in-memory rendition of the store. It is safe for concurrent use.
type Store struct {
	buckets   map[Namespace]*bucket
	typeProps map[string]model.Props
	lock      sync.Mutex
	now       func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		buckets:   map[Namespace]*bucket{},
		typeProps: map[string]model.Props{},
		now:       time.Now,
	}
}

// SetNow replaces the clock used for last modified times.
func (s *Store) SetNow(now func() time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.now = now
}

func (s *Store) bucket(ns Namespace, create bool) *bucket {
	ns = ns.normalize()
	b, ok := s.buckets[ns]
	if !ok && create {
		b = &bucket{objects: map[string]Object{}, props: model.Props{}, counters: map[string]int64{}}
		s.buckets[ns] = b
	}
	return b
}

func defaultProps(ns Namespace) model.Props {
	return model.Props{
		"name":            ns.Bucket,
		"n_val":           3,
		"allow_mult":      false,
		"last_write_wins": false,
		"r":               "quorum",
		"w":               "quorum",
		"dw":              "quorum",
		"rw":              "quorum",
		"pr":              0,
		"pw":              0,
		"basic_quorum":    false,
		"notfound_ok":     true,
	}
}

// Props returns the effective props of a bucket: the defaults, then the
// props of its type, then its own.
func (s *Store) Props(ns Namespace) model.Props {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.props(ns.normalize())
}

func (s *Store) props(ns Namespace) model.Props {
	props := defaultProps(ns)
	if ns.Type != DefaultType {
		props = props.Merge(s.typeProps[ns.Type])
	}
	if b := s.bucket(ns, false); b != nil {
		props = props.Merge(b.props)
	}
	props["name"] = ns.Bucket
	return props
}

// SetProps merges props into the bucket props.
func (s *Store) SetProps(ns Namespace, props model.Props) {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, true)
	b.props = b.props.Merge(props)
}

// TypeProps returns the props of a bucket type.
func (s *Store) TypeProps(t string) model.Props {
	s.lock.Lock()
	defer s.lock.Unlock()
	return defaultProps(Namespace{}).Merge(s.typeProps[t])
}

// SetTypeProps merges props into the props of a bucket type.
func (s *Store) SetTypeProps(t string, props model.Props) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.typeProps[t] = s.typeProps[t].Merge(props)
}

// Put stores c under key. When the bucket allows siblings and vclock is not
// the current one, c is added as a sibling; otherwise it replaces the value.
func (s *Store) Put(ns Namespace, key string, c Content, vclock string) Object {
	s.lock.Lock()
	defer s.lock.Unlock()
	ns = ns.normalize()
	b := s.bucket(ns, true)
	allowMult := cast.ToBool(s.props(ns)["allow_mult"])

	c.VTag = newVTag()
	c.LastModified = s.now().UTC().Truncate(time.Second)

	obj, exists := b.objects[key]
	if exists && allowMult && vclock != obj.VClock {
		obj.Siblings = append(obj.Siblings, c)
	} else {
		obj.Siblings = []Content{c}
	}
	obj.VClock = newVClock()
	b.objects[key] = obj
	return obj
}

// Get returns the object stored under key.
func (s *Store) Get(ns Namespace, key string) (Object, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, false)
	if b == nil {
		return Object{}, false
	}
	obj, ok := b.objects[key]
	return obj, ok
}

// Delete removes key and reports whether it was stored.
func (s *Store) Delete(ns Namespace, key string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, false)
	if b == nil {
		return false
	}
	if _, ok := b.objects[key]; !ok {
		return false
	}
	delete(b.objects, key)
	return true
}

// Keys returns the sorted keys of a bucket.
func (s *Store) Keys(ns Namespace) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.keys(ns)
}

func (s *Store) keys(ns Namespace) []string {
	b := s.bucket(ns, false)
	if b == nil {
		return []string{}
	}
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Buckets returns the sorted names of the buckets of a type holding at least
// one key.
func (s *Store) Buckets(t string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t == "" {
		t = DefaultType
	}
	names := []string{}
	for ns, b := range s.buckets {
		if ns.Type == t && len(b.objects) > 0 {
			names = append(names, ns.Bucket)
		}
	}
	sort.Strings(names)
	return names
}

// AddCounter adds n to a counter and returns the new value.
func (s *Store) AddCounter(ns Namespace, name string, n int64) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, true)
	b.counters[name] += n
	return b.counters[name]
}

// Counter reads a counter.
func (s *Store) Counter(ns Namespace, name string) (int64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, false)
	if b == nil {
		return 0, false
	}
	v, ok := b.counters[name]
	return v, ok
}

// IndexQuery returns the sorted keys whose index value matches. high is only
// used for ranges. Integer indexes compare numerically.
func (s *Store) IndexQuery(ns Namespace, index, low, high string, isRange bool) []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	match := func(v string) bool {
		if !isRange {
			return v == low
		}
		if strings.HasSuffix(index, "_int") {
			n, lo, hi := cast.ToInt64(v), cast.ToInt64(low), cast.ToInt64(high)
			return n >= lo && n <= hi
		}
		return v >= low && v <= high
	}

	var keys []string
	for _, key := range s.keys(ns) {
		switch index {
		case "$bucket":
			keys = append(keys, key)
			continue
		case "$key":
			if match(key) {
				keys = append(keys, key)
			}
			continue
		}
		obj := s.buckets[ns.normalize()].objects[key]
	siblings:
		for _, c := range obj.Siblings {
			for _, v := range c.Index[index] {
				if match(v) {
					keys = append(keys, key)
					break siblings
				}
			}
		}
	}
	return keys
}

// Each calls fn for every object of a bucket, in key order.
func (s *Store) Each(ns Namespace, fn func(key string, obj Object)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.bucket(ns, false)
	if b == nil {
		return
	}
	for _, key := range s.keys(ns) {
		fn(key, b.objects[key])
	}
}

func newVTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:22]
}

func newVClock() string {
	id := uuid.New()
	return base64.StdEncoding.EncodeToString(append([]byte("vc"), id[:]...))
}

func contentFromMetadata(value []byte, md model.Metadata) Content {
	c := Content{
		Value:       value,
		ContentType: md.ContentType,
		Meta:        md.Meta,
		Links:       md.Links,
		Index:       map[string][]string{},
	}
	for name, iv := range md.Index {
		if len(iv.Bin) > 0 {
			c.Index[name+"_bin"] = append(c.Index[name+"_bin"], iv.Bin...)
		}
		for _, n := range iv.Int {
			c.Index[name+"_int"] = append(c.Index[name+"_int"], strconv.FormatInt(n, 10))
		}
	}
	return c
}

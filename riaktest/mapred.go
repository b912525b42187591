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
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

type mapRedJob struct {
	Inputs  interface{}              `json:"inputs"`
	Query   []map[string]mapRedPhase `json:"query"`
	Timeout int                      `json:"timeout,omitempty"`
}

type mapRedPhase struct {
	Language string      `json:"language"`
	Source   string      `json:"source"`
	Module   string      `json:"module"`
	Function string      `json:"function"`
	Name     string      `json:"name"`
	Bucket   string      `json:"bucket"`
	Tag      string      `json:"tag"`
	Arg      interface{} `json:"arg"`
	Keep     *bool       `json:"keep"`
}

func (p mapRedPhase) function() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Module != "" {
		return p.Module + ":" + p.Function
	}
	return p.Source
}

type objectRef struct {
	ns      Namespace
	key     string
	keyData interface{}
}

type phaseOutput struct {
	phase int
	data  []interface{}
}

func (s *Server) mapReduce(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var job mapRedJob
	if err := json.Unmarshal(data, &job); err != nil {
		writeError(w, http.StatusBadRequest, "failed to unmarshal json")
		return
	}
	if len(job.Query) == 0 {
		writeError(w, http.StatusBadRequest, "query must contain at least one phase")
		return
	}
	refs, err := s.inputRefs(job.Inputs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outputs := s.runPhases(refs, job.Query)

	if r.URL.Query().Get("chunked") != "true" {
		if len(outputs) == 1 {
			writeJSON(w, http.StatusOK, outputs[0].data)
			return
		}
		all := make([]interface{}, 0, len(outputs))
		for _, o := range outputs {
			all = append(all, o.data)
		}
		writeJSON(w, http.StatusOK, all)
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusOK)
	for _, o := range outputs {
		for _, batch := range batchValues(o.data, s.keyBatch) {
			writePart(w, mw, map[string]interface{}{"phase": o.phase, "data": batch})
		}
	}
	mw.Close()
}

func (s *Server) inputRefs(inputs interface{}) ([]objectRef, error) {
	switch in := inputs.(type) {
	case string:
		return s.bucketRefs(Namespace{Bucket: in}), nil
	case []interface{}:
		if ns, ok := typedBucket(in); ok {
			return s.bucketRefs(ns), nil
		}
		refs := make([]objectRef, 0, len(in))
		for _, entry := range in {
			ref, ok := toRef(entry)
			if !ok {
				return nil, badRequest("inputs must be [bucket, key] or [bucket, key, keydata] lists")
			}
			refs = append(refs, ref)
		}
		return refs, nil
	case map[string]interface{}:
		return s.indexRefs(in)
	}
	return nil, badRequest("inputs must be a bucket, a list of objects or an index query")
}

func (s *Server) bucketRefs(ns Namespace) []objectRef {
	keys := s.store.Keys(ns)
	refs := make([]objectRef, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, objectRef{ns: ns, key: k})
	}
	return refs
}

func (s *Server) indexRefs(in map[string]interface{}) ([]objectRef, error) {
	var ns Namespace
	switch b := in["bucket"].(type) {
	case string:
		ns.Bucket = b
	case []interface{}:
		t, ok := typedBucket(b)
		if !ok {
			return nil, badRequest("invalid bucket")
		}
		ns = t
	default:
		return nil, badRequest("index inputs require a bucket")
	}
	index := cast.ToString(in["index"])
	if index == "" {
		return nil, badRequest("index inputs require an index")
	}

	var keys []string
	if key, ok := in["key"]; ok {
		keys = s.store.IndexQuery(ns, index, cast.ToString(key), "", false)
	} else {
		keys = s.store.IndexQuery(ns, index, cast.ToString(in["start"]), cast.ToString(in["end"]), true)
	}
	refs := make([]objectRef, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, objectRef{ns: ns, key: k})
	}
	return refs, nil
}

func typedBucket(in []interface{}) (Namespace, bool) {
	if len(in) != 2 {
		return Namespace{}, false
	}
	t, ok1 := in[0].(string)
	b, ok2 := in[1].(string)
	return Namespace{Type: t, Bucket: b}, ok1 && ok2
}

func toRef(entry interface{}) (objectRef, bool) {
	list, ok := entry.([]interface{})
	if !ok || len(list) < 2 {
		return objectRef{}, false
	}
	key, ok := list[1].(string)
	if !ok {
		return objectRef{}, false
	}
	ref := objectRef{key: key}
	switch b := list[0].(type) {
	case string:
		ref.ns = Namespace{Bucket: b}
	case []interface{}:
		ns, ok := typedBucket(b)
		if !ok {
			return objectRef{}, false
		}
		ref.ns = ns
	default:
		return objectRef{}, false
	}
	if len(list) > 2 {
		ref.keyData = list[2]
	}
	return ref, true
}

// runPhases runs the job and returns the output of the kept phases. The last
// phase is kept unless it says otherwise.
func (s *Server) runPhases(refs []objectRef, query []map[string]mapRedPhase) []phaseOutput {
	var (
		values  []interface{}
		outputs []phaseOutput
	)
	for i, entry := range query {
		for kind, p := range entry {
			switch kind {
			case "map":
				values = s.mapPhase(refs, p)
			case "link":
				values = s.linkPhase(refs, p)
			case "reduce":
				values = reducePhase(values, p)
			}
			keep := i == len(query)-1
			if p.Keep != nil {
				keep = *p.Keep
			}
			if keep {
				outputs = append(outputs, phaseOutput{phase: i, data: values})
			}
		}
		refs = refs[:0]
		for _, v := range values {
			if ref, ok := toRef(v); ok {
				refs = append(refs, ref)
			}
		}
	}
	return outputs
}

func (s *Server) mapPhase(refs []objectRef, p mapRedPhase) []interface{} {
	out := []interface{}{}
	for _, ref := range refs {
		obj, ok := s.store.Get(ref.ns, ref.key)
		if !ok || len(obj.Siblings) == 0 {
			continue
		}
		value := obj.Siblings[0].Value
		switch p.function() {
		case "Riak.mapValuesJson":
			var v interface{}
			if json.Unmarshal(value, &v) == nil {
				out = append(out, v)
			}
		case "Riak.mapValues", "riak_kv_mapreduce:map_object_value":
			out = append(out, string(value))
		default:
			out = append(out, []interface{}{ref.ns.Bucket, ref.key})
		}
	}
	return out
}

func (s *Server) linkPhase(refs []objectRef, p mapRedPhase) []interface{} {
	out := []interface{}{}
	wild := func(want, got string) bool {
		return want == "" || want == "_" || want == got
	}
	for _, ref := range refs {
		obj, ok := s.store.Get(ref.ns, ref.key)
		if !ok || len(obj.Siblings) == 0 {
			continue
		}
		for _, l := range obj.Siblings[0].Links {
			if l.Key != "" && wild(p.Bucket, l.Bucket) && wild(p.Tag, l.Tag) {
				out = append(out, []interface{}{l.Bucket, l.Key, l.Tag})
			}
		}
	}
	return out
}

func reducePhase(values []interface{}, p mapRedPhase) []interface{} {
	switch p.function() {
	case "Riak.reduceSum":
		var sum float64
		for _, v := range values {
			sum += cast.ToFloat64(v)
		}
		return []interface{}{sum}
	case "Riak.reduceSort":
		sorted := append([]interface{}{}, values...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, aErr := cast.ToFloat64E(sorted[i])
			b, bErr := cast.ToFloat64E(sorted[j])
			if aErr == nil && bErr == nil {
				return a < b
			}
			return strings.Compare(cast.ToString(sorted[i]), cast.ToString(sorted[j])) < 0
		})
		return sorted
	case "Riak.reduceMin", "Riak.reduceMax":
		if len(values) == 0 {
			return []interface{}{}
		}
		best := cast.ToFloat64(values[0])
		for _, v := range values[1:] {
			n := cast.ToFloat64(v)
			if p.function() == "Riak.reduceMin" && n < best || p.function() == "Riak.reduceMax" && n > best {
				best = n
			}
		}
		return []interface{}{best}
	}
	return values
}

func batchValues(values []interface{}, size int) [][]interface{} {
	if len(values) == 0 {
		return [][]interface{}{{}}
	}
	var out [][]interface{}
	for len(values) > 0 {
		n := min(size, len(values))
		out = append(out, values[:n])
		values = values[n:]
	}
	return out
}

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
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodename":             "riaktest@127.0.0.1",
		"connected_nodes":      []string{},
		"ring_num_partitions":  64,
		"storage_backend":      "riak_kv_memory_backend",
		"node_requests_total":  s.requests.Load(),
		"riak_kv_version":      "2.2.3",
		"sys_otp_release":      "R16B02_basho10",
		"ring_members":         []string{"riaktest@127.0.0.1"},
		"ring_ownership":       "[{'riaktest@127.0.0.1',64}]",
		"ring_creation_size":   64,
		"pbc_active":           0,
		"vnode_gets_total":     0,
		"read_repairs_total":   0,
		"coord_redirs_total":   0,
		"executing_mappers":    0,
		"memory_total":         0,
		"riak_search_version":  "2.2.3",
		"riak_pipe_version":    "2.2.3",
		"riak_api_version":     "2.2.3",
		"riak_control_version": "2.2.3",
	})
}

// discovery lists the resource roots.
func (s *Server) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"riak_kv_wm_buckets":     "/buckets",
		"riak_kv_wm_index":       "/buckets",
		"riak_kv_wm_keylist":     "/buckets",
		"riak_kv_wm_counter":     "/buckets",
		"riak_kv_wm_link_walker": "/buckets",
		"riak_kv_wm_mapred":      "/mapred",
		"riak_kv_wm_object":      "/buckets",
		"riak_kv_wm_ping":        "/ping",
		"riak_kv_wm_props":       "/buckets",
		"riak_kv_wm_stats":       "/stats",
		"riak_solr_searcher_wm":  "/solr",
	})
}

func (s *Server) listBuckets(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("buckets") != "true" {
		writeError(w, http.StatusBadRequest, "buckets=true required")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"buckets": s.store.Buckets(vars(r)[typeVarKey])})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	ns := namespace(r)
	switch r.URL.Query().Get("keys") {
	case "true":
		writeJSON(w, http.StatusOK, map[string][]string{"keys": s.store.Keys(ns)})
	case "stream":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		keys := s.store.Keys(ns)
		for _, batch := range batches(keys, s.keyBatch) {
			writeChunk(w, map[string][]string{"keys": batch})
		}
		writeChunk(w, map[string][]string{"keys": {}})
	default:
		writeError(w, http.StatusBadRequest, "keys=true or keys=stream required")
	}
}

func (s *Server) queryIndex(w http.ResponseWriter, r *http.Request) {
	v := vars(r)
	ns := namespace(r)
	index := v[indexVarKey]
	low, high := v[valueVarKey], ""
	_, isRange := v[highVarKey]
	if isRange {
		low, high = v[lowVarKey], v[highVarKey]
	}
	if index != "$bucket" && index != "$key" &&
		!strings.HasSuffix(index, "_bin") && !strings.HasSuffix(index, "_int") {
		writeError(w, http.StatusBadRequest, "unknown field type for: "+index)
		return
	}

	q := r.URL.Query()
	keys := s.store.IndexQuery(ns, index, low, high, isRange)
	if c := q.Get("continuation"); c != "" {
		after, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid continuation")
			return
		}
		i := sort.SearchStrings(keys, string(after)+"\x00")
		keys = keys[i:]
	}

	var continuation string
	if max := cast.ToInt(q.Get("max_results")); max > 0 && len(keys) > max {
		keys = keys[:max]
		continuation = base64.StdEncoding.EncodeToString([]byte(keys[max-1]))
	}

	if q.Get("stream") != "true" {
		body := map[string]interface{}{"keys": keys}
		if continuation != "" {
			body["continuation"] = continuation
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusOK)
	for _, batch := range batches(keys, s.keyBatch) {
		writePart(w, mw, map[string][]string{"keys": batch})
	}
	if continuation != "" {
		writePart(w, mw, map[string]string{"continuation": continuation})
	}
	mw.Close()
}

func (s *Server) counter(w http.ResponseWriter, r *http.Request) {
	ns := namespace(r)
	name := vars(r)[counterVarKey]
	if r.Method == http.MethodGet {
		v, ok := s.store.Counter(ns, name)
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeText(w, http.StatusOK, cast.ToString(v))
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	n, err := cast.ToInt64E(strings.TrimSpace(string(data)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse body as an integer")
		return
	}
	v := s.store.AddCounter(ns, name, n)
	if r.URL.Query().Get("returnvalue") == "true" {
		writeText(w, http.StatusOK, cast.ToString(v))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// solr answers field:value and *:* queries over the JSON objects of a bucket.
func (s *Server) solr(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	field, want, ok := strings.Cut(q, ":")
	if !ok {
		writeError(w, http.StatusBadRequest, "q must be field:value")
		return
	}
	all := field == "*" && want == "*"

	docs := []map[string]interface{}{}
	s.store.Each(Namespace{Bucket: vars(r)[bucketVarKey]}, func(key string, obj Object) {
		for _, c := range obj.Siblings {
			var doc map[string]interface{}
			if json.Unmarshal(c.Value, &doc) != nil || doc == nil {
				continue
			}
			if all || matchField(doc[field], want) {
				doc["id"] = key
				docs = append(docs, doc)
				return
			}
		}
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responseHeader": map[string]interface{}{"status": 0, "params": map[string]string{"q": q}},
		"response": map[string]interface{}{
			"numFound": len(docs),
			"start":    0,
			"maxScore": "0.0",
			"docs":     docs,
		},
	})
}

func matchField(v interface{}, want string) bool {
	if v == nil {
		return false
	}
	if strings.HasSuffix(want, "*") {
		return strings.HasPrefix(cast.ToString(v), strings.TrimSuffix(want, "*"))
	}
	return cast.ToString(v) == want
}

func batches(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

// writeChunk writes v as JSON and flushes it as its own chunk.
func writeChunk(w http.ResponseWriter, v interface{}) {
	data, _ := json.Marshal(v)
	w.Write(data)
	flush(w)
}

func writePart(w http.ResponseWriter, mw *multipart.Writer, v interface{}) {
	data, _ := json.Marshal(v)
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "application/json")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return
	}
	io.Copy(pw, bytes.NewReader(data))
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

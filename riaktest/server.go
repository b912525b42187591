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
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/sallust"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	bucketVarKey  = "bucket"
	typeVarKey    = "type"
	keyVarKey     = "key"
	indexVarKey   = "index"
	valueVarKey   = "value"
	lowVarKey     = "low"
	highVarKey    = "high"
	counterVarKey = "counter"
)

// ErrorHeaderKey carries the reason of every error response.
const ErrorHeaderKey = "X-Riaktest-Error"

const defaultKeyBatch = 100

// Server speaks the store's HTTP protocol on top of a Store.
type Server struct {
	store    *Store
	logger   *zap.Logger
	keyBatch int
	handler  http.Handler

	failNext atomic.Int32
	requests atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to a no op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithStore serves an existing store.
func WithStore(st *Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithKeyBatch sets how many keys go in each chunk of a streamed listing.
func WithKeyBatch(n int) Option {
	return func(s *Server) {
		s.keyBatch = n
	}
}

// NewServer builds a server around an empty store unless WithStore is given.
func NewServer(opts ...Option) *Server {
	s := &Server{
		store:    NewStore(),
		logger:   zap.NewNop(),
		keyBatch: defaultKeyBatch,
	}
	for _, o := range opts {
		o(s)
	}
	if s.keyBatch < 1 {
		s.keyBatch = defaultKeyBatch
	}

	s.handler = alice.New(
		alice.Constructor(otelmux.Middleware("riaktest")),
		s.logRequests,
		s.injectFailures,
	).Then(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// FailNext makes the next n requests fail at the connection level.
func (s *Server) FailNext(n int) {
	s.failNext.Store(int32(n))
}

// Requests returns the number of requests received so far, failed ones
// included.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter().UseEncodedPath()

	objects := newObjectHandler(s.store)
	props := newPropsHandler(s.store)

	for _, prefix := range []string{"/buckets/{bucket}", "/types/{type}/buckets/{bucket}"} {
		r.Handle(prefix+"/props", props).Methods(http.MethodGet, http.MethodPut)
		r.HandleFunc(prefix+"/keys", s.listKeys).Methods(http.MethodGet)
		r.Handle(prefix+"/keys", objects).Methods(http.MethodPost)
		r.Handle(prefix+"/keys/{key}", objects).
			Methods(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete)
		r.HandleFunc(prefix+"/index/{index}/{value}", s.queryIndex).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/index/{index}/{low}/{high}", s.queryIndex).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/counters/{counter}", s.counter).Methods(http.MethodGet, http.MethodPost)
	}
	r.Handle("/types/{type}/props", props).Methods(http.MethodGet, http.MethodPut)
	r.HandleFunc("/types/{type}/buckets", s.listBuckets).Methods(http.MethodGet)
	r.HandleFunc("/buckets", s.listBuckets).Methods(http.MethodGet)
	r.HandleFunc("/mapred", s.mapReduce).Methods(http.MethodPost)
	r.HandleFunc("/solr/{bucket}/select", s.solr).Methods(http.MethodGet)
	r.HandleFunc("/ping", s.ping).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/", s.discovery).Methods(http.MethodGet)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		logger := s.logger.With(zap.String("method", r.Method), zap.String("path", r.URL.EscapedPath()))
		logger.Debug("request")
		next.ServeHTTP(w, r.WithContext(sallust.With(r.Context(), logger)))
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.failNext.Load() > 0 && s.failNext.Add(-1) >= 0 {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// vars returns the unescaped route variables.
func vars(r *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range mux.Vars(r) {
		if u, err := url.PathUnescape(v); err == nil {
			v = u
		}
		out[k] = v
	}
	return out
}

func namespace(r *http.Request) Namespace {
	v := vars(r)
	return Namespace{Type: v[typeVarKey], Bucket: v[bucketVarKey]}.normalize()
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(ErrorHeaderKey, message)
	w.WriteHeader(code)
	w.Write([]byte(message + "\n"))
}

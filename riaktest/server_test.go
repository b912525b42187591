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
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/nodiak/model"
)

func do(t *testing.T, ts *httptest.Server, method, path string, header map[string]string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestObjectRoundTrip(t *testing.T) {
	assert := assert.New(t)
	_, ts := Start()
	defer ts.Close()

	resp := do(t, ts, http.MethodPut, "/buckets/b/keys/k", map[string]string{
		"Content-Type":         "application/json",
		"X-Riak-Meta-Owner":    "me",
		"X-Riak-Index-Age_int": "30",
		"Link":                 `</buckets/people/keys/ann>; riaktag="friend"`,
	}, `{"a":1}`)
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(`{"a":1}`, readAll(t, resp))
	md := model.HeadersToMetadata(resp.Header)
	assert.Equal("application/json", md.ContentType)
	assert.NotEmpty(md.VClock)
	assert.NotEmpty(md.LastModified)
	assert.Equal("me", md.Meta["owner"])
	assert.Equal([]int64{30}, md.Index["age"].Int)
	assert.Equal([]model.Link{{Bucket: "people", Key: "ann", Tag: "friend"}}, md.Links)

	resp = do(t, ts, http.MethodHead, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Empty(readAll(t, resp))

	resp = do(t, ts, http.MethodDelete, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusNotFound, resp.StatusCode)
	assert.Equal("not found\n", readAll(t, resp))

	resp = do(t, ts, http.MethodDelete, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestPostAssignsKey(t *testing.T) {
	assert := assert.New(t)
	s, ts := Start()
	defer ts.Close()

	resp := do(t, ts, http.MethodPost, "/types/maps/buckets/b/keys", map[string]string{"Content-Type": "text/plain"}, "hi")
	assert.Equal(http.StatusCreated, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/types/maps/buckets/b/keys/"))

	key := strings.TrimPrefix(loc, "/types/maps/buckets/b/keys/")
	obj, ok := s.Store().Get(Namespace{Type: "maps", Bucket: "b"}, key)
	assert.True(ok)
	assert.Equal([]byte("hi"), obj.Siblings[0].Value)
}

func TestEscapedKeys(t *testing.T) {
	s, ts := Start()
	defer ts.Close()

	resp := do(t, ts, http.MethodPut, "/buckets/b/keys/a%2Fb", nil, "x")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok := s.Store().Get(Namespace{Bucket: "b"}, "a/b")
	assert.True(t, ok)
}

func TestSiblings(t *testing.T) {
	assert := assert.New(t)
	s, ts := Start()
	defer ts.Close()

	ns := Namespace{Bucket: "b"}
	s.Store().SetProps(ns, model.Props{"allow_mult": true})
	first := s.Store().Put(ns, "k", Content{Value: []byte("1"), ContentType: "text/plain"}, "")
	second := s.Store().Put(ns, "k", Content{Value: []byte("2"), ContentType: "text/plain"}, "")

	resp := do(t, ts, http.MethodGet, "/buckets/b/keys/k", nil, "")
	assert.Equal(http.StatusMultipleChoices, resp.StatusCode)
	assert.Equal("Siblings:\n"+first.Siblings[0].VTag+"\n"+second.Siblings[1].VTag+"\n", readAll(t, resp))

	resp = do(t, ts, http.MethodGet, "/buckets/b/keys/k?vtag="+second.Siblings[1].VTag, nil, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("2", readAll(t, resp))

	resp = do(t, ts, http.MethodGet, "/buckets/b/keys/k", map[string]string{"Accept": "multipart/mixed"}, "")
	assert.Equal(http.StatusMultipleChoices, resp.StatusCode)
	assert.Equal(second.VClock, resp.Header.Get("X-Riak-Vclock"))
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal("multipart/mixed", mediaType)

	mr := multipart.NewReader(resp.Body, params["boundary"])
	var values []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, _ := io.ReadAll(p)
		values = append(values, string(data))
		assert.Equal("text/plain", p.Header.Get("Content-Type"))
	}
	assert.Equal([]string{"1", "2"}, values)
}

func TestListKeysStream(t *testing.T) {
	assert := assert.New(t)
	s, ts := Start(WithKeyBatch(2))
	defer ts.Close()

	for _, k := range []string{"a", "b", "c"} {
		s.Store().Put(Namespace{Bucket: "b"}, k, Content{}, "")
	}

	resp := do(t, ts, http.MethodGet, "/buckets/b/keys?keys=stream", nil, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal([]string{"chunked"}, resp.TransferEncoding)

	dec := json.NewDecoder(resp.Body)
	var batches [][]string
	for dec.More() {
		var v struct {
			Keys []string `json:"keys"`
		}
		require.NoError(t, dec.Decode(&v))
		batches = append(batches, v.Keys)
	}
	assert.Equal([][]string{{"a", "b"}, {"c"}, {}}, batches)

	resp = do(t, ts, http.MethodGet, "/buckets/b/keys", nil, "")
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestIndexPaging(t *testing.T) {
	assert := assert.New(t)
	s, ts := Start()
	defer ts.Close()

	for _, k := range []string{"a", "b", "c"} {
		s.Store().Put(Namespace{Bucket: "b"}, k, Content{}, "")
	}

	var page struct {
		Keys         []string `json:"keys"`
		Continuation string   `json:"continuation"`
	}
	resp := do(t, ts, http.MethodGet, "/buckets/b/index/$bucket/_?max_results=2", nil, "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal([]string{"a", "b"}, page.Keys)
	require.NotEmpty(t, page.Continuation)

	resp = do(t, ts, http.MethodGet, "/buckets/b/index/$bucket/_?max_results=2&continuation="+page.Continuation, nil, "")
	page.Continuation = ""
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal([]string{"c"}, page.Keys)
	assert.Empty(page.Continuation)

	resp = do(t, ts, http.MethodGet, "/buckets/b/index/age/1", nil, "")
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestCounterEndpoint(t *testing.T) {
	assert := assert.New(t)
	_, ts := Start()
	defer ts.Close()

	resp := do(t, ts, http.MethodGet, "/buckets/b/counters/c", nil, "")
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/buckets/b/counters/c", nil, "5")
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/buckets/b/counters/c?returnvalue=true", nil, "-2")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("3", readAll(t, resp))

	resp = do(t, ts, http.MethodPost, "/buckets/b/counters/c", nil, "abc")
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestMapReduceEndpoint(t *testing.T) {
	s, ts := Start()
	defer ts.Close()

	ns := Namespace{Bucket: "nums"}
	for k, v := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		s.Store().Put(ns, k, Content{Value: []byte(v), ContentType: "application/json"}, "")
	}

	type testCase struct {
		Description string
		Path        string
		Body        string
		Code        int
		Expected    string
	}

	tcs := []testCase{
		{
			Description: "Map then sum",
			Path:        "/mapred",
			Body:        `{"inputs":"nums","query":[{"map":{"language":"javascript","name":"Riak.mapValuesJson"}},{"reduce":{"language":"javascript","name":"Riak.reduceSum"}}]}`,
			Code:        http.StatusOK,
			Expected:    `[6]`,
		},
		{
			Description: "Kept phases",
			Path:        "/mapred",
			Body:        `{"inputs":[["nums","c"],["nums","a"]],"query":[{"map":{"language":"javascript","name":"Riak.mapValuesJson","keep":true}},{"reduce":{"language":"javascript","name":"Riak.reduceSort"}}]}`,
			Code:        http.StatusOK,
			Expected:    `[[3,1],[1,3]]`,
		},
		{
			Description: "Missing phases",
			Path:        "/mapred",
			Body:        `{"inputs":"nums","query":[]}`,
			Code:        http.StatusBadRequest,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			resp := do(t, ts, http.MethodPost, tc.Path, map[string]string{"Content-Type": "application/json"}, tc.Body)
			assert.Equal(tc.Code, resp.StatusCode)
			if tc.Expected != "" {
				assert.JSONEq(tc.Expected, readAll(t, resp))
			}
		})
	}
}

func TestSolrEndpoint(t *testing.T) {
	assert := assert.New(t)
	s, ts := Start()
	defer ts.Close()

	ns := Namespace{Bucket: "people"}
	s.Store().Put(ns, "ann", Content{Value: []byte(`{"name":"ann","city":"oslo"}`)}, "")
	s.Store().Put(ns, "bob", Content{Value: []byte(`{"name":"bob","city":"rome"}`)}, "")

	resp := do(t, ts, http.MethodGet, "/solr/people/select?wt=json&q=city:rome", nil, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	var body struct {
		Response struct {
			NumFound int                      `json:"numFound"`
			Docs     []map[string]interface{} `json:"docs"`
		} `json:"response"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(1, body.Response.NumFound)
	assert.Equal("bob", body.Response.Docs[0]["id"])
}

func TestFailNext(t *testing.T) {
	s, ts := Start()
	defer ts.Close()

	s.FailNext(1)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/ping", nil)
	require.NoError(t, err)
	_, err = ts.Client().Do(req)
	assert.Error(t, err)

	resp := do(t, ts, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), s.Requests())
}

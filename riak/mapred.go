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
	"github.com/xmidt-org/nodiak/transport"
)

// Phase types.
const (
	MapPhase    = "map"
	ReducePhase = "reduce"
	LinkPhase   = "link"
)

// SourceFunc produces the source text of a phase function, e.g. an Erlang
// fun. It is called once, when the phase is added.
type SourceFunc func() string

// PhaseSpec describes a phase function: either a named function (Module and
// Function, or Name), inline Source, or for link phases Bucket and Tag.
type PhaseSpec struct {
	Language string      `json:"language,omitempty"`
	Source   string      `json:"source,omitempty"`
	Module   string      `json:"module,omitempty"`
	Function string      `json:"function,omitempty"`
	Name     string      `json:"name,omitempty"`
	Bucket   string      `json:"bucket,omitempty"`
	Key      string      `json:"key,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	Arg      interface{} `json:"arg,omitempty"`
	Keep     *bool       `json:"keep,omitempty"`

	// SourceFunc fills Source when set.
	SourceFunc SourceFunc `json:"-"`
}

// Input is one object fed to a job. Data is optional key data passed to the
// first phase.
type Input struct {
	Bucket string
	Key    string
	Data   interface{}
}

// Inputs is the input of a job: a whole bucket, a list of objects or an
// index query.
type Inputs struct {
	value interface{}
	empty bool
}

// BucketInputs feeds every object of a bucket.
func BucketInputs(b *Bucket) Inputs {
	if b.Type != "" {
		return Inputs{value: []string{b.Type, b.Name}}
	}
	return Inputs{value: b.Name}
}

// KeyInputs feeds the listed objects.
func KeyInputs(inputs ...Input) Inputs {
	out := make([][]interface{}, 0, len(inputs))
	for _, in := range inputs {
		entry := []interface{}{in.Bucket, in.Key}
		if in.Data != nil {
			entry = append(entry, in.Data)
		}
		out = append(out, entry)
	}
	return Inputs{value: out, empty: len(out) == 0}
}

// ObjectInputs feeds the given objects. With includeData their data is passed
// along as key data.
func ObjectInputs(includeData bool, objects ...*RObject) Inputs {
	inputs := make([]Input, 0, len(objects))
	for _, o := range objects {
		in := Input{Bucket: o.Bucket.Name, Key: o.Key}
		if includeData {
			in.Data = o.Data
		}
		inputs = append(inputs, in)
	}
	return KeyInputs(inputs...)
}

// IndexInputs feeds the objects matching a secondary index query.
func IndexInputs(b *Bucket, q IndexQuery, index string) Inputs {
	q = q.forIndex(index)
	in := map[string]interface{}{
		"bucket": b.Name,
		"index":  q.IndexName(index),
	}
	if b.Type != "" {
		in["bucket"] = []string{b.Type, b.Name}
	}
	values := q.Values()
	if q.IsRange() {
		in["start"], in["end"] = values[0], values[1]
	} else {
		in["key"] = values[0]
	}
	return Inputs{value: in}
}

// MapReduce is a job under construction. Phases run in the order they are
// added.
type MapReduce struct {
	client *Client
	inputs Inputs
	phases []map[string]PhaseSpec
}

// PhaseResult is one batch of a streamed job.
type PhaseResult struct {
	Phase int
	Data  interface{}
}

func (m *MapReduce) Map(spec PhaseSpec) *MapReduce {
	return m.append(MapPhase, spec)
}

func (m *MapReduce) Reduce(spec PhaseSpec) *MapReduce {
	return m.append(ReducePhase, spec)
}

func (m *MapReduce) Link(spec PhaseSpec) *MapReduce {
	return m.append(LinkPhase, spec)
}

func (m *MapReduce) append(kind string, spec PhaseSpec) *MapReduce {
	if spec.SourceFunc != nil {
		spec.Source = spec.SourceFunc()
		spec.SourceFunc = nil
	}
	m.phases = append(m.phases, map[string]PhaseSpec{kind: spec})
	return m
}

// Job returns the job document that is submitted.
func (m *MapReduce) Job() map[string]interface{} {
	return map[string]interface{}{
		"inputs": m.inputs.value,
		"query":  m.phases,
	}
}

func (m *MapReduce) validate() error {
	if m.inputs.value == nil || m.inputs.empty {
		return ErrNoInputs
	}
	if len(m.phases) == 0 {
		return ErrNoPhases
	}
	return nil
}

func (m *MapReduce) request(options Options) *transport.Request {
	return &transport.Request{
		Method:  http.MethodPost,
		Path:    m.client.resources.MapReduce,
		Options: options,
		Header:  map[string]string{"content-type": "application/json"},
		Body:    m.Job(),
	}
}

// Execute runs the job and returns the result of the phases that keep theirs.
func (m *MapReduce) Execute(ctx context.Context, options Options) (interface{}, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	resp, err := m.client.do(ctx, m.request(options))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Stream runs the job with chunked results. Every batch is tagged with the
// index of the phase that produced it.
func (m *MapReduce) Stream(ctx context.Context, options Options) *transport.Stream[PhaseResult] {
	if err := m.validate(); err != nil {
		return transport.NewStream[PhaseResult](m.client.errorHandler()).Go(func(s *transport.Stream[PhaseResult]) {
			s.Error(err)
		})
	}
	src := m.client.transport.Stream(ctx, m.request(options.with("chunked", "true")))
	return mapStream(m.client, src, func(c transport.Chunk, out *transport.Stream[PhaseResult]) {
		obj, ok := c.Data.(map[string]interface{})
		if !ok {
			return
		}
		out.Value(PhaseResult{Phase: cast.ToInt(obj["phase"]), Data: obj["data"]})
	})
}

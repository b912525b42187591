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

package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	RequestCounter  = "nodiak_requests_total"
	RetryCounter    = "nodiak_request_retries_total"
	RequestDuration = "nodiak_request_duration_seconds"
)

// Labels
const (
	MethodLabel = "method"
	CodeLabel   = "code"
)

// Label Values
const (
	TransportErrorCode = "transport_error"
)

var (
	requestCounterOpts = prometheus.CounterOpts{
		Name: RequestCounter,
		Help: "Counter for the requests sent to the store, by method and response code.",
	}
	retryCounterOpts = prometheus.CounterOpts{
		Name: RetryCounter,
		Help: "Counter for the retries caused by transport level failures.",
	}
	requestDurationOpts = prometheus.HistogramOpts{
		Name:    RequestDuration,
		Help:    "Duration of single physical requests to the store.",
		Buckets: prometheus.DefBuckets,
	}
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(requestCounterOpts, MethodLabel, CodeLabel),
		touchstone.CounterVec(retryCounterOpts, MethodLabel),
		touchstone.HistogramVec(requestDurationOpts, MethodLabel),
	)
}

type Measures struct {
	fx.In
	Requests *prometheus.CounterVec   `name:"nodiak_requests_total"`
	Retries  *prometheus.CounterVec   `name:"nodiak_request_retries_total"`
	Duration *prometheus.HistogramVec `name:"nodiak_request_duration_seconds"`
}

// NewMeasures builds and registers the metrics without an fx container.
func NewMeasures(r prometheus.Registerer) (*Measures, error) {
	m := &Measures{
		Requests: prometheus.NewCounterVec(requestCounterOpts, []string{MethodLabel, CodeLabel}),
		Retries:  prometheus.NewCounterVec(retryCounterOpts, []string{MethodLabel}),
		Duration: prometheus.NewHistogramVec(requestDurationOpts, []string{MethodLabel}),
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Retries, m.Duration} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Measures) observeRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := TransportErrorCode
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.With(prometheus.Labels{MethodLabel: method, CodeLabel: label}).Inc()
	m.Duration.With(prometheus.Labels{MethodLabel: method}).Observe(d.Seconds())
}

func (m *Measures) observeRetry(method string) {
	if m == nil {
		return
	}
	m.Retries.With(prometheus.Labels{MethodLabel: method}).Inc()
}

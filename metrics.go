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

package main

import (
	"github.com/xmidt-org/nodiak/transport"
	"github.com/xmidt-org/touchstone"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/fx"
)

const devServerMetricsName = "servers.devserver.metrics"

// provideMetrics builds the metric registry, the store client metrics and the
// development server instrumentation.
func provideMetrics() fx.Option {
	return fx.Options(
		touchstone.Provide(),
		transport.ProvideMetrics(),
		fx.Provide(
			fx.Annotated{
				Name: devServerMetricsName,
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "devserver",
				),
			},
		),
	)
}

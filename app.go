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
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xmidt-org/nodiak/riak"
	"github.com/xmidt-org/nodiak/transport"
	"github.com/xmidt-org/sallust"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// cli holds what every command shares. client is built lazily, right before
// a command that needs it runs.
type cli struct {
	out    io.Writer
	errOut io.Writer
	format string

	viper    *viper.Viper
	logger   *zap.Logger
	client   *riak.Client
	gatherer prometheus.Gatherer
}

func (c *cli) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.logger == nil {
		return ctx
	}
	return sallust.With(ctx, c.logger)
}

// ClientIn carries the dependencies of the store client.
type ClientIn struct {
	fx.In
	Viper    *viper.Viper
	Logger   *zap.Logger
	Measures transport.Measures
}

func provideClient(in ClientIn) (*riak.Client, error) {
	var config transport.Config
	if err := in.Viper.UnmarshalKey("store", &config); err != nil {
		return nil, err
	}

	// UnmarshalKey skips flags bound below the store key
	v := in.Viper
	config.Host = v.GetString("store.host")
	config.Port = v.GetInt("store.port")
	config.Hosts = v.GetStringSlice("store.hosts")
	config.TLS = v.GetBool("store.tls")

	config.Logger = in.Logger
	config.Measures = &in.Measures
	return riak.NewClient(config, nil)
}

func provideTouchstoneConfig(v *viper.Viper) (touchstone.Config, error) {
	var config touchstone.Config
	err := v.UnmarshalKey("prometheus", &config)
	return config, err
}

// appOptions are the components shared by every fx application of the cli.
func (c *cli) appOptions() fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: c.logger.Named("fx")}
		}),
		fx.Supply(c.logger, c.viper),
		fx.Provide(provideTouchstoneConfig),
		provideMetrics(),
	)
}

// buildClient assembles the store client and the metric registry.
func (c *cli) buildClient() error {
	if c.client != nil {
		return nil
	}
	app := fx.New(
		c.appOptions(),
		fx.Provide(provideClient),
		fx.Populate(&c.client, &c.gatherer),
	)
	return app.Err()
}

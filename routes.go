// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xmidt-org/nodiak/riaktest"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DevServerConfig configures the development server.
type DevServerConfig struct {
	Address        string
	MetricsAddress string
	MetricsPath    string

	// Basic lists the base64 encoded user:password pairs accepted by the
	// server. Empty disables authentication.
	Basic []string

	// KeyBatch is the number of keys per chunk of a streamed listing.
	KeyBatch int
}

type DevServerIn struct {
	fx.In
	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Viper     *viper.Viper
	Gatherer  prometheus.Gatherer
	Metrics   touchhttp.ServerInstrumenter `name:"servers.devserver.metrics"`
}

func provideDevServerConfig(v *viper.Viper) DevServerConfig {
	v.SetDefault("devserver.metricsPath", "/metrics")
	return DevServerConfig{
		Address:        v.GetString("devserver.address"),
		MetricsAddress: v.GetString("devserver.metricsAddress"),
		MetricsPath:    v.GetString("devserver.metricsPath"),
		Basic:          v.GetStringSlice("devserver.basic"),
		KeyBatch:       v.GetInt("devserver.keyBatch"),
	}
}

func newDevHandler(config DevServerConfig, in DevServerIn) (http.Handler, error) {
	chain, err := provideAuthChain(in.Logger.Named("auth"), config.Basic)
	if err != nil {
		return nil, err
	}
	store := riaktest.NewServer(
		riaktest.WithLogger(in.Logger.Named("devserver")),
		riaktest.WithKeyBatch(config.KeyBatch),
	)
	return in.Metrics.Then(chain.Then(store)), nil
}

func newMetricsHandler(config DevServerConfig, in DevServerIn) http.Handler {
	router := mux.NewRouter()
	router.Handle(config.MetricsPath, promhttp.HandlerFor(in.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// appendServer binds address when the application starts and shuts the
// server down when it stops.
func appendServer(lc fx.Lifecycle, logger *zap.Logger, name, address string, handler http.Handler) {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", address)
			if err != nil {
				return err
			}
			logger.Info("server listening", zap.String("server", name), zap.Stringer("address", ln.Addr()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", zap.String("server", name), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}

func startDevServer(config DevServerConfig, in DevServerIn) error {
	handler, err := newDevHandler(config, in)
	if err != nil {
		return err
	}
	appendServer(in.Lifecycle, in.Logger, "devserver", config.Address, handler)
	if config.MetricsAddress != "" {
		appendServer(in.Lifecycle, in.Logger, "metrics", config.MetricsAddress, newMetricsHandler(config, in))
	}
	return nil
}

func (c *cli) devServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory store for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			for flag, key := range map[string]string{
				"listen":         "devserver.address",
				"metrics-listen": "devserver.metricsAddress",
				"key-batch":      "devserver.keyBatch",
			} {
				if err := c.viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
					return err
				}
			}

			app := fx.New(
				c.appOptions(),
				fx.Provide(provideDevServerConfig),
				fx.Invoke(startDevServer),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx := c.context(cmd)
			if err := app.Start(ctx); err != nil {
				return err
			}
			select {
			case <-app.Done():
			case <-ctx.Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
	fs := cmd.Flags()
	fs.String("listen", ":8098", "address of the store server")
	fs.String("metrics-listen", ":9361", "address of the metrics server, empty to disable")
	fs.Int("key-batch", 100, "keys per chunk of a streamed key listing")
	return cmd
}

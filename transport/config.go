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
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"emperror.dev/emperror"
	"github.com/go-playground/validator/v10"
	"github.com/xmidt-org/bascule/acquire"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const (
	DefaultHost        = "localhost"
	DefaultPort        = 8098
	DefaultMaxSockets  = 100
	DefaultMaxAttempts = 3
	DefaultBaseTimeout = 50 * time.Millisecond

	DefaultContentType = "application/json"
	DefaultAccept      = "*/*"
)

// Config contains the data needed to build a Transport.
type Config struct {
	// Host of the store.
	// (Optional) Defaults to localhost.
	Host string `mapstructure:"host"`

	// Port of the store.
	// (Optional) Defaults to 8098.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	// Hosts lists host:port pairs of several nodes of the same cluster. Requests
	// are spread over them and failing nodes are avoided for a while.
	// (Optional) Overrides Host and Port when set.
	Hosts []string `mapstructure:"hosts" validate:"dive,hostname_port"`

	// TLS switches the transport to HTTPS.
	TLS bool `mapstructure:"tls"`

	// TLSConfig is used for HTTPS connections.
	// (Optional) Defaults to the standard library configuration.
	TLSConfig *tls.Config `mapstructure:"-" validate:"-"`

	// MaxSockets caps the number of concurrent connections per host.
	// (Optional) Defaults to 100.
	MaxSockets int `mapstructure:"maxSockets" validate:"gte=0"`

	// Resources overrides individual resource roots.
	// (Optional) Unset roots keep their default.
	Resources Resources `mapstructure:"resources"`

	// Retry controls how transport level failures are retried.
	Retry RetryConfig `mapstructure:"retry"`

	// DefaultHeaders are added to requests that don't set them.
	// (Optional) Defaults to content-type application/json and accept */*.
	DefaultHeaders map[string]string `mapstructure:"defaultHeaders"`

	// ClientID is sent as the store client id header.
	// (Optional) A random id is generated when empty.
	ClientID string `mapstructure:"clientID"`

	// Auth adds auth headers to outgoing requests.
	// (Optional) If not provided, no auth headers are added.
	Auth Auth `mapstructure:"auth" validate:"-"`

	// Codecs maps content types to body codecs.
	// (Optional) Defaults to DefaultCodecs(). Entries given here are added to the defaults.
	Codecs Codecs `mapstructure:"-" validate:"-"`

	// HTTPClient sends the requests.
	// (Optional) Built from MaxSockets and TLSConfig when nil.
	HTTPClient *http.Client `mapstructure:"-" validate:"-"`

	// Executor issues the physical requests.
	// (Optional) Defaults to an HTTP or HTTPS executor depending on TLS.
	Executor Executor `mapstructure:"-" validate:"-"`

	// Measures collects request metrics.
	// (Optional) No metrics are recorded when nil.
	Measures *Measures `mapstructure:"-" validate:"-"`

	// Logger to be used by the transport.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger `mapstructure:"-" validate:"-"`

	// ErrorHandler receives failures of streams whose consumer detached.
	// (Optional) Defaults to logging them.
	ErrorHandler emperror.ErrorHandler `mapstructure:"-" validate:"-"`
}

// RetryConfig controls the retry of transport level failures.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the first attempt.
	// (Optional) Defaults to 3, a negative value disables retries.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// BaseTimeout seeds the delay between attempts.
	// (Optional) Defaults to 50ms.
	BaseTimeout time.Duration `mapstructure:"baseTimeout" validate:"gte=0"`
}

// Auth contains authorization data for requests to the store.
type Auth struct {
	JWT   acquire.RemoteBearerTokenAcquirerOptions `mapstructure:"jwt"`
	Basic string                                   `mapstructure:"basic"`
}

func validateConfig(config *Config) error {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if len(config.Hosts) == 0 {
		config.Hosts = []string{net.JoinHostPort(config.Host, strconv.Itoa(config.Port))}
	}
	if config.MaxSockets == 0 {
		config.MaxSockets = DefaultMaxSockets
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if config.Retry.BaseTimeout == 0 {
		config.Retry.BaseTimeout = DefaultBaseTimeout
	}
	config.Resources.applyDefaults()

	headers := map[string]string{
		"content-type": DefaultContentType,
		"accept":       DefaultAccept,
	}
	// header names are case insensitive, so a user key replaces the default
	// whatever its case
	for k, v := range config.DefaultHeaders {
		headers[strings.ToLower(k)] = v
	}
	config.DefaultHeaders = headers

	codecs := DefaultCodecs()
	for k, v := range config.Codecs {
		codecs[k] = v
	}
	config.Codecs = codecs

	if config.Logger == nil {
		config.Logger = sallust.Default()
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf(errWrappedFmt, ErrInvalidConfig, err.Error())
	}
	return nil
}

func isEmpty(options acquire.RemoteBearerTokenAcquirerOptions) bool {
	return len(options.AuthURL) < 1 || options.Buffer == 0 || options.Timeout == 0
}

func buildTokenAcquirer(auth Auth) (acquire.Acquirer, error) {
	if !isEmpty(auth.JWT) {
		return acquire.NewRemoteBearerTokenAcquirer(auth.JWT)
	} else if len(auth.Basic) > 0 {
		return acquire.NewFixedAuthAcquirer(auth.Basic)
	}
	return &acquire.DefaultAcquirer{}, nil
}

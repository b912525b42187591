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
	"net/http"
	"strings"

	"github.com/justinas/alice"
	"github.com/xmidt-org/bascule/basculechecks"
	"github.com/xmidt-org/bascule/basculehttp"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// SetLogger puts a request scoped logger in the request context. The
// credentials of the Authorization header are never logged, only its type.
func SetLogger(logger *zap.Logger) alice.Constructor {
	return func(delegate http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				fields := []zap.Field{
					zap.String("requestURL", r.URL.EscapedPath()),
					zap.String("method", r.Method),
				}
				if str := r.Header.Get("Authorization"); str != "" {
					fields = append(fields, zap.String("authorizationType", strings.Split(str, " ")[0]))
				}
				ctx := sallust.With(r.Context(), logger.With(fields...))
				delegate.ServeHTTP(w, r.WithContext(ctx))
			})
	}
}

// provideAuthChain builds the middleware guarding the development server.
// basic lists base64 encoded user:password pairs; when empty every request
// is let through.
func provideAuthChain(logger *zap.Logger, basic []string) (alice.Chain, error) {
	chain := alice.New(SetLogger(logger))
	if len(basic) == 0 {
		return chain, nil
	}

	basicTokenFactory, err := basculehttp.NewBasicTokenFactoryFromList(basic)
	if err != nil {
		return chain, err
	}
	logger.Debug("basic auth enabled", zap.Int("users", len(basicTokenFactory)))

	authConstructor := basculehttp.NewConstructor(
		basculehttp.WithTokenFactory("Basic", basicTokenFactory),
	)
	authEnforcer := basculehttp.NewEnforcer(
		basculehttp.WithRules("Basic", basculechecks.AllowAll()),
	)
	return chain.Append(authConstructor, authEnforcer), nil
}

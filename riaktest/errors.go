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
	"context"
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
)

// StatusError is an error response with a fixed status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

func badRequest(message string) error {
	return &StatusError{Code: http.StatusBadRequest, Message: message}
}

func notFound() error {
	return &StatusError{Code: http.StatusNotFound, Message: "not found"}
}

func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	code := http.StatusInternalServerError
	if sc, ok := err.(kithttp.StatusCoder); ok {
		code = sc.StatusCode()
	}
	writeError(w, code, err.Error())
}

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
	"errors"
	"fmt"
)

// Validation errors, returned before any request is sent.
var (
	ErrNoKeys        = errors.New("at least one key is required")
	ErrNoObjects     = errors.New("at least one object is required")
	ErrMissingKey    = errors.New("object has no key")
	ErrInvalidAmount = errors.New("counter amount must be a non zero integer")
	ErrNoPhases      = errors.New("map reduce job has no phases")
	ErrNoInputs      = errors.New("map reduce job has no inputs")
	ErrEmptyIndex    = errors.New("index name is required")
)

var (
	ErrNoLocation         = errors.New("create response carried no location")
	ErrUnexpectedResponse = errors.New("unexpected response body")
	ErrNoSiblings         = errors.New("conflicted object without siblings")
	ErrNoWinner           = errors.New("resolver picked no sibling")
)

const errWrappedFmt = "%w: %s"

// ItemError is the failure of one item of a batch operation.
type ItemError struct {
	Key string

	// Object is set for batch writes and deletes.
	Object *RObject

	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("key %q: %v", e.Key, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

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
	"errors"
	"testing"
	"time"

	"emperror.dev/emperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCollect(t *testing.T) {
	var (
		assert = assert.New(t)
		first  = errors.New("first")
		second = errors.New("second")
	)
	values, err := NewStream[int](nil).Go(func(s *Stream[int]) {
		s.Value(1)
		s.Error(first)
		s.Value(2)
		s.Error(second)
	}).Collect()

	assert.Equal([]int{1, 2}, values)
	assert.ErrorIs(err, first)
	assert.ErrorIs(err, second)
}

func TestStreamDetach(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
		late    = errors.New("late failure")
		handled = make(chan error, 1)
		done    = make(chan struct{})
	)
	s := NewStream[string](emperror.ErrorHandlerFunc(func(err error) {
		handled <- err
	}))
	s.Go(func(s *Stream[string]) {
		defer close(done)
		s.Value("first")
		assert.False(s.Error(late))
		assert.False(s.Value("dropped"))
	})

	e, ok := <-s.Events()
	require.True(ok)
	assert.Equal("first", e.Value)
	s.Detach()

	select {
	case err := <-handled:
		assert.Equal(late, err)
	case <-time.After(5 * time.Second):
		t.Fatal("late error never reached the handler")
	}
	<-done
}

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
	"sync"

	"emperror.dev/emperror"
	"emperror.dev/errors"
)

// Event is one item delivered by a Stream. Exactly one of Value or Err is
// meaningful.
type Event[T any] struct {
	Value T
	Err   error
}

// Stream delivers the events of a long running operation. The handle exists
// before any request is issued, so a consumer ranging over Events never misses
// an event. The channel is closed after the last event.
//
// A stream can't be cancelled once started. A consumer that is no longer
// interested calls Detach; the operation then runs to completion in the
// background and its remaining errors go to the error handler.
type Stream[T any] struct {
	events     chan Event[T]
	detached   chan struct{}
	detachOnce sync.Once
	closeOnce  sync.Once
	handler    emperror.ErrorHandler
}

// NewStream creates a stream whose late errors go to handler. A nil handler
// discards them.
func NewStream[T any](handler emperror.ErrorHandler) *Stream[T] {
	if handler == nil {
		handler = emperror.ErrorHandlerFunc(func(error) {})
	}
	return &Stream[T]{
		events:   make(chan Event[T]),
		detached: make(chan struct{}),
		handler:  handler,
	}
}

// Events returns the channel of events.
func (s *Stream[T]) Events() <-chan Event[T] {
	return s.events
}

// Detach stops delivery. Pending and future events are dropped.
func (s *Stream[T]) Detach() {
	s.detachOnce.Do(func() {
		close(s.detached)
	})
}

// Send delivers e, blocking until the consumer takes it. It returns false once
// the consumer has detached, in which case an error event is handed to the
// error handler instead.
func (s *Stream[T]) Send(e Event[T]) bool {
	select {
	case <-s.detached:
		if e.Err != nil {
			s.handler.Handle(e.Err)
		}
		return false
	default:
	}

	select {
	case s.events <- e:
		return true
	case <-s.detached:
		if e.Err != nil {
			s.handler.Handle(e.Err)
		}
		return false
	}
}

// Value sends a value event.
func (s *Stream[T]) Value(v T) bool {
	return s.Send(Event[T]{Value: v})
}

// Error sends an error event.
func (s *Stream[T]) Error(err error) bool {
	return s.Send(Event[T]{Err: err})
}

// Close ends the stream. Only the producer calls it.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

// Collect drains the stream. It returns every value and the combination of
// every error event.
func (s *Stream[T]) Collect() ([]T, error) {
	var (
		values []T
		errs   []error
	)
	for e := range s.events {
		if e.Err != nil {
			errs = append(errs, e.Err)
			continue
		}
		values = append(values, e.Value)
	}
	return values, errors.Combine(errs...)
}

// Go runs producer in its own goroutine and closes the stream when it
// returns. It returns s so construction and start read as one expression.
func (s *Stream[T]) Go(producer func(s *Stream[T])) *Stream[T] {
	go func() {
		defer s.Close()
		producer(s)
	}()
	return s
}

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
	"context"
	"sync"

	"emperror.dev/emperror"
	"emperror.dev/errors"
	"github.com/xmidt-org/nodiak/transport"
)

// joinMany runs fn for every item concurrently and waits for all of them.
// One failure never stops the others. Successes keep the input order and the
// failures come back combined as *ItemError values.
func joinMany[T, R any](ctx context.Context, items []T, key func(T) string, fn func(context.Context, T) (R, error)) ([]R, error) {
	var (
		wg      sync.WaitGroup
		results = make([]R, len(items))
		errs    = make([]error, len(items))
	)
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			results[i], errs[i] = fn(ctx, item)
		}(i, item)
	}
	wg.Wait()

	var (
		out    = make([]R, 0, len(items))
		failed []error
	)
	for i := range items {
		if errs[i] != nil {
			failed = append(failed, itemError(key(items[i]), errs[i]))
			continue
		}
		out = append(out, results[i])
	}
	return out, errors.Combine(failed...)
}

// streamMany is the streamed form of joinMany: results are sent as they
// complete and the stream ends once every item is done. An empty item list
// is reported as the single error event empty, since the handle is already
// returned.
func streamMany[T, R any](ctx context.Context, handler emperror.ErrorHandler, items []T, empty error, key func(T) string, fn func(context.Context, T) (R, error)) *transport.Stream[R] {
	return transport.NewStream[R](handler).Go(func(s *transport.Stream[R]) {
		if len(items) == 0 {
			s.Error(empty)
			return
		}
		var wg sync.WaitGroup
		for _, item := range items {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				r, err := fn(ctx, item)
				if err != nil {
					s.Error(itemError(key(item), err))
					return
				}
				s.Value(r)
			}(item)
		}
		wg.Wait()
	})
}

func itemError(key string, err error) error {
	var ie *ItemError
	if errors.As(err, &ie) {
		return err
	}
	return &ItemError{Key: key, Err: err}
}

// ItemErrors unpacks the per item failures of a batch operation.
func ItemErrors(err error) []*ItemError {
	var out []*ItemError
	for _, e := range errors.GetErrors(err) {
		var ie *ItemError
		if errors.As(e, &ie) {
			out = append(out, ie)
		}
	}
	return out
}

// dedup drops repeated strings, keeping the first occurrence.
func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

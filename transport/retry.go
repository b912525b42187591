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
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Delay is the wait before retry n (1-based): floor((base/n)^n) with base in
// milliseconds. The first retries come quickly, later ones back off sharply.
func Delay(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	ms := float64(base) / float64(time.Millisecond)
	d := math.Floor(math.Pow(ms/float64(n), float64(n)))
	if d > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d) * time.Millisecond
}

// attemptBackOff implements backoff.BackOff with Delay.
type attemptBackOff struct {
	base    time.Duration
	attempt int
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	return Delay(b.base, b.attempt)
}

func (b *attemptBackOff) Reset() {
	b.attempt = 0
}

func (r RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	retries := r.MaxAttempts
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(&attemptBackOff{base: r.BaseTimeout}, uint64(retries)),
		ctx,
	)
}

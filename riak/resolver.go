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

// Resolver picks the object to keep among conflicting siblings. It is only
// called with at least one sibling. Returning nil fails the read with
// ErrNoWinner.
type Resolver func(siblings []*RObject) *RObject

// LastWriteWins keeps the sibling modified last. A sibling without a
// timestamp is older than any sibling with one, and ties keep the first
// sibling encountered.
func LastWriteWins(siblings []*RObject) *RObject {
	if len(siblings) == 0 {
		return nil
	}
	winner := siblings[0]
	best, hasBest := winner.Metadata.LastModifiedTime()
	for _, s := range siblings[1:] {
		t, ok := s.Metadata.LastModifiedTime()
		if !ok {
			continue
		}
		if !hasBest || t.After(best) {
			winner, best, hasBest = s, t, true
		}
	}
	return winner
}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xmidt-org/nodiak/model"
)

func TestLastWriteWins(t *testing.T) {
	at := func(name, lastModified string) *RObject {
		return &RObject{Key: name, Metadata: model.Metadata{LastModified: lastModified}}
	}
	older := "Mon, 01 Mar 2021 10:00:00 GMT"
	newer := "Mon, 01 Mar 2021 10:00:05 GMT"

	type testCase struct {
		Description string
		Siblings    []*RObject
		Expected    string
	}

	tcs := []testCase{
		{
			Description: "Newest wins",
			Siblings:    []*RObject{at("a", older), at("b", newer)},
			Expected:    "b",
		},
		{
			Description: "Newest first",
			Siblings:    []*RObject{at("a", newer), at("b", older)},
			Expected:    "a",
		},
		{
			Description: "Tie keeps the first",
			Siblings:    []*RObject{at("a", newer), at("b", newer)},
			Expected:    "a",
		},
		{
			Description: "Missing timestamp loses",
			Siblings:    []*RObject{at("a", ""), at("b", older)},
			Expected:    "b",
		},
		{
			Description: "Invalid timestamp loses",
			Siblings:    []*RObject{at("a", older), at("b", "yesterday")},
			Expected:    "a",
		},
		{
			Description: "Single sibling",
			Siblings:    []*RObject{at("a", "")},
			Expected:    "a",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.Equal(t, tc.Expected, LastWriteWins(tc.Siblings).Key)
		})
	}

	assert.Nil(t, LastWriteWins(nil))
}

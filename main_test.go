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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/nodiak/riak"
	"github.com/xmidt-org/nodiak/riaktest"
	"github.com/xmidt-org/nodiak/transport"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*riaktest.Server, *riak.Client) {
	server, ts := riaktest.Start(riaktest.WithKeyBatch(2))
	t.Cleanup(ts.Close)
	client, err := riak.NewClient(riaktest.Config(ts), nil)
	require.NoError(t, err)
	return server, client
}

func runCLI(client *riak.Client, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	c := &cli{
		out:    &out,
		errOut: &errOut,
		viper:  viper.New(),
		logger: zap.NewNop(),
		client: client,
	}
	cmd := newRootCommand(c)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPingCommand(t *testing.T) {
	_, client := newTestClient(t)
	out, _, err := runCLI(client, "ping")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
}

func TestPutAndGetCommands(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	_, client := newTestClient(t)

	_, _, err := runCLI(client, "put", "numbers", "one", "--data", `{"n":1}`, "--index", "rank=1", "--meta", "owner=me", "--link", "numbers:two:next")
	require.NoError(err)

	out, errOut, err := runCLI(client, "get", "numbers", "one", "missing", "-o", "json")
	require.NoError(err)
	assert.Contains(errOut, "missing")

	var views []objectView
	require.NoError(json.Unmarshal([]byte(out), &views))
	require.Len(views, 1)
	assert.Equal("one", views[0].Key)
	assert.Equal(map[string]interface{}{"n": float64(1)}, views[0].Data)
	assert.Equal("me", views[0].Meta["owner"])
	require.Len(views[0].Links, 1)
	assert.Equal("next", views[0].Links[0].Tag)

	out, _, err = runCLI(client, "index", "numbers", "rank", "0", "5", "-o", "json")
	require.NoError(err)
	var keys []string
	require.NoError(json.Unmarshal([]byte(out), &keys))
	assert.Equal([]string{"one"}, keys)
}

func TestGetCommandAllMissing(t *testing.T) {
	_, client := newTestClient(t)
	_, errOut, err := runCLI(client, "get", "numbers", "nope")
	failed := riak.ItemErrors(err)
	require.Len(t, failed, 1)
	assert.True(t, transport.IsNotFound(failed[0]))
	assert.Contains(t, errOut, "nope")
}

func TestKeysAndDeleteCommands(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	_, client := newTestClient(t)

	ctx := context.Background()
	b := client.Bucket("letters")
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(b.Objects.New(k, k).Save(ctx))
	}

	out, _, err := runCLI(client, "keys", "letters", "--stream")
	require.NoError(err)
	lines := strings.Fields(out)
	assert.ElementsMatch([]string{"a", "b", "c"}, lines)

	out, _, err = runCLI(client, "delete", "letters", "a", "b")
	require.NoError(err)
	assert.ElementsMatch([]string{"a", "b"}, strings.Fields(out))

	out, _, err = runCLI(client, "keys", "letters", "-o", "yaml")
	require.NoError(err)
	assert.Equal("- c\n", out)
}

func TestCounterCommand(t *testing.T) {
	_, client := newTestClient(t)

	out, _, err := runCLI(client, "counter", "stats", "hits", "--add", "5")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, _, err = runCLI(client, "counter", "stats", "hits", "--subtract", "2")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, _, err = runCLI(client, "counter", "stats", "hits")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestPropsCommand(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	_, client := newTestClient(t)

	_, _, err := runCLI(client, "props", "things", "--set", "n_val=5", "--set", "allow_mult=true")
	require.NoError(err)

	out, _, err := runCLI(client, "props", "things", "-o", "json")
	require.NoError(err)
	var props map[string]interface{}
	require.NoError(json.Unmarshal([]byte(out), &props))
	assert.Equal(float64(5), props["n_val"])
	assert.Equal(true, props["allow_mult"])

	_, _, err = runCLI(client, "props")
	assert.Error(err)
}

func TestMapredCommand(t *testing.T) {
	require := require.New(t)
	_, client := newTestClient(t)

	ctx := context.Background()
	b := client.Bucket("numbers")
	for k, v := range map[string]int{"a": 1, "b": 2, "c": 3} {
		require.NoError(b.Objects.New(k, v).Save(ctx))
	}

	out, _, err := runCLI(client, "mapred", "numbers",
		"--phase", "map:Riak.mapValuesJson",
		"--phase", "reduce:Riak.reduceSum",
		"-o", "json")
	require.NoError(err)
	var result []float64
	require.NoError(json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []float64{6}, result)

	_, _, err = runCLI(client, "mapred", "numbers", "--phase", "fold:x")
	assert.ErrorIs(t, err, errInvalidPhase)
}

func TestCommandErrors(t *testing.T) {
	_, client := newTestClient(t)

	type testCase struct {
		Description string
		Args        []string
		ExpectedErr error
	}

	tcs := []testCase{
		{
			Description: "Bad meta",
			Args:        []string{"put", "b", "k", "--meta", "novalue"},
			ExpectedErr: errInvalidPair,
		},
		{
			Description: "Bad link",
			Args:        []string{"put", "b", "k", "--link", "justbucket"},
			ExpectedErr: errInvalidLink,
		},
		{
			Description: "Unknown format",
			Args:        []string{"stats", "-o", "xml"},
			ExpectedErr: errUnknownFormat,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			_, _, err := runCLI(client, tc.Args...)
			assert.ErrorIs(t, err, tc.ExpectedErr)
		})
	}
}

func TestIndexValue(t *testing.T) {
	type testCase struct {
		Description string
		Input       string
		Expected    interface{}
	}

	tcs := []testCase{
		{Description: "Digits", Input: "42", Expected: int64(42)},
		{Description: "Leading zeros", Input: "010", Expected: int64(10)},
		{Description: "Text", Input: "blue", Expected: "blue"},
		{Description: "Signed", Input: "-3", Expected: "-3"},
		{Description: "Empty", Input: "", Expected: ""},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.Equal(t, tc.Expected, indexValue(tc.Input))
		})
	}
}

func TestPropValue(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(3, propValue("3"))
	assert.Equal(true, propValue("true"))
	assert.Equal("quorum", propValue("quorum"))
	assert.Equal("", propValue(""))
}

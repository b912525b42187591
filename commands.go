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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/riak"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

var (
	errInvalidPair  = errors.New("expected name=value")
	errInvalidPhase = errors.New("expected map:function, reduce:function or link:bucket[:tag]")
	errInvalidLink  = errors.New("expected bucket:key[:tag]")
)

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           applicationName,
		Short:         "Command line client for the key value store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			if printVersion, _ := fs.GetBool("version"); printVersion {
				return nil
			}
			c.format, _ = fs.GetString("output")
			if c.viper != nil {
				return nil
			}
			v, logger, err := setup(fs)
			if err != nil {
				return err
			}
			c.viper, c.logger = v, logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if printVersion, _ := cmd.Flags().GetBool("version"); printVersion {
				printVersionInfo()
				return nil
			}
			return cmd.Help()
		},
	}
	setupFlagSet(root.PersistentFlags())

	root.AddCommand(
		c.pingCommand(),
		c.statsCommand(),
		c.bucketsCommand(),
		c.keysCommand(),
		c.getCommand(),
		c.putCommand(),
		c.deleteCommand(),
		c.propsCommand(),
		c.indexCommand(),
		c.searchCommand(),
		c.counterCommand(),
		c.mapredCommand(),
		c.devServerCommand(),
	)
	return root
}

// withClient wraps a command body that talks to the store.
func (c *cli) withClient(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.buildClient(); err != nil {
			return err
		}
		err := run(cmd, args)
		if err != nil && c.logger != nil {
			c.logger.Debug("command failed", zap.String("command", cmd.Name()), zap.Error(err))
		}
		return err
	}
}

func (c *cli) bucket(cmd *cobra.Command, name string) *riak.Bucket {
	b := c.client.Bucket(name)
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		b.OfType(t)
	}
	return b
}

func addTypeFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "", "bucket type")
}

func (c *cli) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the store answers",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			pong, err := c.client.Ping(c.context(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, pong)
			return nil
		}),
	}
}

func (c *cli) statsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the node statistics",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			var (
				m   map[string]interface{}
				err error
			)
			if resources, _ := cmd.Flags().GetBool("resources"); resources {
				m, err = c.client.Resources(c.context(cmd))
			} else {
				m, err = c.client.Stats(c.context(cmd))
			}
			if err != nil {
				return err
			}
			return c.renderMap(m)
		}),
	}
	cmd.Flags().Bool("resources", false, "list the resource roots instead")
	return cmd
}

func (c *cli) bucketsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "List buckets",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			var (
				buckets []string
				err     error
			)
			if t, _ := cmd.Flags().GetString("type"); t != "" {
				buckets, err = c.client.BucketType(t).Buckets(c.context(cmd))
			} else {
				buckets, err = c.client.Buckets(c.context(cmd))
			}
			if err != nil {
				return err
			}
			return c.renderList("Bucket", buckets)
		}),
	}
	addTypeFlag(cmd)
	return cmd
}

func (c *cli) keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys <bucket>",
		Short: "List the keys of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			b := c.bucket(cmd, args[0])
			if stream, _ := cmd.Flags().GetBool("stream"); !stream {
				keys, err := b.ListKeys(c.context(cmd))
				if err != nil {
					return err
				}
				return c.renderList("Key", keys)
			}
			keys := b.Keys(c.context(cmd))
			defer keys.Detach()
			for e := range keys.Events() {
				if e.Err != nil {
					return e.Err
				}
				for _, k := range e.Value {
					fmt.Fprintln(c.out, k)
				}
			}
			return nil
		}),
	}
	addTypeFlag(cmd)
	cmd.Flags().Bool("stream", false, "print keys as the store sends them")
	return cmd
}

func (c *cli) getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <bucket> <key>...",
		Short: "Fetch objects",
		Args:  cobra.MinimumNArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			b := c.bucket(cmd, args[0])
			b.SiblingsSync, _ = cmd.Flags().GetBool("sync")
			objects, err := b.Objects.Get(c.context(cmd), args[1:], nil)
			for _, ie := range riak.ItemErrors(err) {
				fmt.Fprintf(c.errOut, "%s: %v\n", ie.Key, ie.Err)
			}
			if rerr := c.renderObjects(objects); rerr != nil {
				return rerr
			}
			if len(objects) == 0 {
				return err
			}
			return nil
		}),
	}
	addTypeFlag(cmd)
	cmd.Flags().Bool("sync", false, "fetch siblings with a single multipart request")
	return cmd
}

func (c *cli) putCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <bucket> [key]",
		Short: "Store an object; without a key the store assigns one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			b := c.bucket(cmd, args[0])

			var key string
			if len(args) > 1 {
				key = args[1]
			}
			data, _ := fs.GetString("data")
			if data == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				data = string(raw)
			}

			obj := b.Objects.New(key, []byte(data))
			obj.Metadata.ContentType, _ = fs.GetString("content-type")

			meta, _ := fs.GetStringArray("meta")
			for _, m := range meta {
				name, value, err := splitPair(m)
				if err != nil {
					return err
				}
				obj.AddMeta(name, value)
			}
			indexes, _ := fs.GetStringArray("index")
			for _, i := range indexes {
				name, value, err := splitPair(i)
				if err != nil {
					return err
				}
				if err := obj.AddToIndex(name, indexValue(value)); err != nil {
					return err
				}
			}
			links, _ := fs.GetStringArray("link")
			for _, l := range links {
				parts := strings.Split(l, ":")
				if len(parts) < 2 || len(parts) > 3 {
					return fmt.Errorf("%w: %s", errInvalidLink, l)
				}
				parts = append(parts, "")
				obj.AddLink(parts[0], parts[1], parts[2])
			}
			if returnBody, _ := fs.GetBool("returnbody"); returnBody {
				obj.Options = riak.Options{"returnbody": "true"}
			}

			if err := obj.Save(c.context(cmd)); err != nil {
				return err
			}
			return c.renderObjects([]*riak.RObject{obj})
		}),
	}
	addTypeFlag(cmd)
	fs := cmd.Flags()
	fs.String("data", "", "object value, - reads it from stdin")
	fs.String("content-type", "application/json", "content type of the value")
	fs.StringArray("meta", nil, "user metadata as name=value, repeatable")
	fs.StringArray("index", nil, "secondary index as name=value, repeatable. Digit only values go to the integer index.")
	fs.StringArray("link", nil, "link as bucket:key[:tag], repeatable")
	fs.Bool("returnbody", false, "read the stored object back")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <bucket> <key>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			b := c.bucket(cmd, args[0])
			objects := make([]*riak.RObject, 0, len(args)-1)
			for _, k := range args[1:] {
				objects = append(objects, b.Objects.New(k, nil))
			}
			deleted, err := b.Objects.Delete(c.context(cmd), objects)
			for _, o := range deleted {
				fmt.Fprintln(c.out, o.Key)
			}
			return err
		}),
	}
	addTypeFlag(cmd)
	return cmd
}

func (c *cli) propsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "props [bucket]",
		Short: "Show or change bucket properties, or bucket type properties without a bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			sets, _ := fs.GetStringArray("set")
			replace, _ := fs.GetBool("replace")
			changes := model.Props{}
			for _, s := range sets {
				name, value, err := splitPair(s)
				if err != nil {
					return err
				}
				changes[name] = propValue(value)
			}

			var (
				props model.Props
				err   error
			)
			t, _ := fs.GetString("type")
			switch {
			case len(args) == 0 && t == "":
				return errors.New("a bucket or a bucket type is required")
			case len(args) == 0 && len(changes) == 0:
				props, err = c.client.BucketType(t).GetProps(c.context(cmd))
			case len(args) == 0:
				props, err = c.client.BucketType(t).SaveProps(c.context(cmd), changes, !replace)
			case len(changes) == 0:
				props, err = c.bucket(cmd, args[0]).GetProps(c.context(cmd))
			default:
				b := c.bucket(cmd, args[0])
				b.Props = changes
				props, err = b.SaveProps(c.context(cmd), !replace)
			}
			if err != nil {
				return err
			}
			return c.renderMap(props)
		}),
	}
	addTypeFlag(cmd)
	cmd.Flags().StringArray("set", nil, "property as name=value, repeatable")
	cmd.Flags().Bool("replace", false, "replace the stored properties instead of merging")
	return cmd
}

func (c *cli) indexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <bucket> <index> <value> [high]",
		Short: "Query a secondary index, by value or by range",
		Args:  cobra.RangeArgs(3, 4),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			b := c.bucket(cmd, args[0])
			q := riak.Exact(indexValue(args[2]))
			if len(args) == 4 {
				q = riak.Range(indexValue(args[2]), indexValue(args[3]))
			}
			var opts riak.IndexOptions
			opts.MaxResults, _ = fs.GetInt("max-results")
			opts.Continuation, _ = fs.GetString("continuation")

			if stream, _ := fs.GetBool("stream"); stream {
				results := b.Search.TwoIStream(c.context(cmd), q, args[1], opts)
				defer results.Detach()
				for e := range results.Events() {
					if e.Err != nil {
						return e.Err
					}
					for _, k := range e.Value.Keys {
						fmt.Fprintln(c.out, k)
					}
					if e.Value.Continuation != "" {
						fmt.Fprintf(c.errOut, "continuation: %s\n", e.Value.Continuation)
					}
				}
				return nil
			}

			result, err := b.Search.TwoI(c.context(cmd), q, args[1], opts)
			if err != nil {
				return err
			}
			if result.Continuation != "" {
				fmt.Fprintf(c.errOut, "continuation: %s\n", result.Continuation)
			}
			return c.renderList("Key", result.Keys)
		}),
	}
	addTypeFlag(cmd)
	fs := cmd.Flags()
	fs.Int("max-results", 0, "page size")
	fs.String("continuation", "", "resume a paged query")
	fs.Bool("stream", false, "stream the results")
	return cmd
}

func (c *cli) searchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <bucket> <query>",
		Short: "Run a full text query",
		Args:  cobra.ExactArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			b := c.bucket(cmd, args[0])
			query := map[string]string{"q": args[1]}
			if objects, _ := cmd.Flags().GetBool("objects"); objects {
				found, err := b.Search.SolrObjects(c.context(cmd), query)
				if err != nil {
					return err
				}
				return c.renderObjects(found)
			}
			keys, err := b.Search.SolrKeys(c.context(cmd), query)
			if err != nil {
				return err
			}
			return c.renderList("Key", keys)
		}),
	}
	cmd.Flags().Bool("objects", false, "fetch the matching objects")
	return cmd
}

func (c *cli) counterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter <bucket> <name>",
		Short: "Read or change a counter",
		Args:  cobra.ExactArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			counter := c.bucket(cmd, args[0]).Counter(args[1])
			var (
				v   int64
				err error
			)
			switch {
			case cmd.Flags().Changed("add"):
				n, _ := cmd.Flags().GetInt64("add")
				v, err = counter.Add(c.context(cmd), n)
			case cmd.Flags().Changed("subtract"):
				n, _ := cmd.Flags().GetInt64("subtract")
				v, err = counter.Subtract(c.context(cmd), n)
			default:
				v, err = counter.Value(c.context(cmd))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, v)
			return nil
		}),
	}
	addTypeFlag(cmd)
	cmd.Flags().Int64("add", 0, "amount to add")
	cmd.Flags().Int64("subtract", 0, "amount to subtract")
	return cmd
}

func (c *cli) mapredCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapred <bucket>",
		Short: "Run a map reduce job over a bucket",
		Long: `Phases run in the order given, e.g.

	nodiak mapred numbers --phase map:Riak.mapValuesJson --phase reduce:Riak.reduceSum

Functions in module:function form are erlang functions.`,
		Args: cobra.ExactArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			job := c.client.MapReduce(riak.BucketInputs(c.bucket(cmd, args[0])))
			phases, _ := fs.GetStringArray("phase")
			for _, p := range phases {
				if err := addPhase(job, p); err != nil {
					return err
				}
			}

			if stream, _ := fs.GetBool("stream"); stream {
				results := job.Stream(c.context(cmd), nil)
				defer results.Detach()
				for e := range results.Events() {
					if e.Err != nil {
						return e.Err
					}
					fmt.Fprintf(c.out, "%d\t%s\n", e.Value.Phase, compact(e.Value.Data))
				}
				return nil
			}

			result, err := job.Execute(c.context(cmd), nil)
			if err != nil {
				return err
			}
			values := cast.ToSlice(result)
			rows := make([]table.Row, 0, len(values))
			for _, v := range values {
				rows = append(rows, table.Row{compact(v)})
			}
			return c.render(result, table.Row{"Result"}, rows)
		}),
	}
	addTypeFlag(cmd)
	cmd.Flags().StringArray("phase", nil, "phase as map:function, reduce:function or link:bucket[:tag], repeatable")
	cmd.Flags().Bool("stream", false, "stream phase results")
	return cmd
}

func addPhase(job *riak.MapReduce, phase string) error {
	kind, rest, ok := strings.Cut(phase, ":")
	if !ok || rest == "" {
		return fmt.Errorf("%w: %s", errInvalidPhase, phase)
	}
	if kind == riak.LinkPhase {
		bucket, tag, _ := strings.Cut(rest, ":")
		job.Link(riak.PhaseSpec{Bucket: bucket, Tag: tag})
		return nil
	}

	spec := riak.PhaseSpec{Language: "javascript", Name: rest}
	if module, function, erlang := strings.Cut(rest, ":"); erlang {
		spec = riak.PhaseSpec{Language: "erlang", Module: module, Function: function}
	}
	switch kind {
	case riak.MapPhase:
		job.Map(spec)
	case riak.ReducePhase:
		job.Reduce(spec)
	default:
		return fmt.Errorf("%w: %s", errInvalidPhase, phase)
	}
	return nil
}

func splitPair(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("%w: %s", errInvalidPair, s)
	}
	return name, value, nil
}

// indexValue turns digit only values into integers.
func indexValue(s string) interface{} {
	if strings.Trim(s, "0123456789") != "" {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// propValue reads a property value as a YAML scalar, so true, 3 and quorum
// keep their natural types.
func propValue(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}

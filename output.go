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
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cast"
	"github.com/xmidt-org/nodiak/model"
	"github.com/xmidt-org/nodiak/riak"
	"gopkg.in/yaml.v2"
)

var errUnknownFormat = errors.New("unknown output format")

type objectView struct {
	Bucket       string                       `json:"bucket" yaml:"bucket"`
	Key          string                       `json:"key" yaml:"key"`
	ContentType  string                       `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	VClock       string                       `json:"vclock,omitempty" yaml:"vclock,omitempty"`
	LastModified string                       `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	Siblings     int                          `json:"siblings,omitempty" yaml:"siblings,omitempty"`
	Meta         map[string]string            `json:"meta,omitempty" yaml:"meta,omitempty"`
	Index        map[string]model.IndexValues `json:"index,omitempty" yaml:"index,omitempty"`
	Links        []model.Link                 `json:"links,omitempty" yaml:"links,omitempty"`
	Data         interface{}                  `json:"data" yaml:"data"`
}

func newObjectView(o *riak.RObject) objectView {
	data := o.Data
	if b, ok := data.([]byte); ok {
		data = string(b)
	}
	return objectView{
		Bucket:       o.Bucket.Name,
		Key:          o.Key,
		ContentType:  o.Metadata.ContentType,
		VClock:       o.Metadata.VClock,
		LastModified: o.Metadata.LastModified,
		Siblings:     len(o.Siblings),
		Meta:         o.Metadata.Meta,
		Index:        o.Metadata.Index,
		Links:        o.Metadata.Links,
		Data:         data,
	}
}

// render writes v in the selected format. Tables are built from header and
// rows; the other formats serialize v itself.
func (c *cli) render(v interface{}, header table.Row, rows []table.Row) error {
	switch c.format {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = c.out.Write(data)
		return err
	case "table", "":
		tw := table.NewWriter()
		tw.SetOutputMirror(c.out)
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(header)
		tw.AppendRows(rows)
		tw.Render()
		return nil
	}
	return fmt.Errorf("%w: %s", errUnknownFormat, c.format)
}

func (c *cli) renderList(name string, values []string) error {
	rows := make([]table.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, table.Row{v})
	}
	return c.render(values, table.Row{name}, rows)
}

func (c *cli) renderMap(m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, table.Row{k, compact(m[k])})
	}
	return c.render(m, table.Row{"Name", "Value"}, rows)
}

func (c *cli) renderObjects(objects []*riak.RObject) error {
	views := make([]objectView, 0, len(objects))
	rows := make([]table.Row, 0, len(objects))
	for _, o := range objects {
		v := newObjectView(o)
		views = append(views, v)
		rows = append(rows, table.Row{v.Key, v.ContentType, v.LastModified, v.Siblings, compact(v.Data)})
	}
	return c.render(views, table.Row{"Key", "Content Type", "Last Modified", "Siblings", "Data"}, rows)
}

// compact renders a value on one line.
func compact(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(t)
		if err == nil {
			return string(data)
		}
	}
	return cast.ToString(v)
}

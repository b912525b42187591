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

// Resources is the table of resource roots. Every root can be overridden per
// client.
type Resources struct {
	Ping      string `mapstructure:"ping"`
	Stats     string `mapstructure:"stats"`
	Discovery string `mapstructure:"discovery"`

	// Buckets is the bucket index root, also used for props.
	Buckets string `mapstructure:"buckets"`
	Keys    string `mapstructure:"keys"`
	Index   string `mapstructure:"index"`

	Search    string `mapstructure:"search"`
	MapReduce string `mapstructure:"mapreduce"`
	Counters  string `mapstructure:"counters"`
	Types     string `mapstructure:"types"`

	// Legacy is the pre-bucket-index object root.
	Legacy string `mapstructure:"legacy"`
}

// DefaultResources returns the roots of a stock installation.
func DefaultResources() Resources {
	return Resources{
		Ping:      "/ping",
		Stats:     "/stats",
		Discovery: "/",
		Buckets:   "/buckets",
		Keys:      "/buckets",
		Index:     "/buckets",
		Search:    "/solr",
		MapReduce: "/mapred",
		Counters:  "/buckets",
		Types:     "/types",
		Legacy:    "/riak",
	}
}

func (r *Resources) applyDefaults() {
	d := DefaultResources()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&r.Ping, d.Ping)
	fill(&r.Stats, d.Stats)
	fill(&r.Discovery, d.Discovery)
	fill(&r.Buckets, d.Buckets)
	fill(&r.Keys, d.Keys)
	fill(&r.Index, d.Index)
	fill(&r.Search, d.Search)
	fill(&r.MapReduce, d.MapReduce)
	fill(&r.Counters, d.Counters)
	fill(&r.Types, d.Types)
	fill(&r.Legacy, d.Legacy)
}

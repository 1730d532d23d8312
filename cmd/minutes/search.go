// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/minutes"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/search"
	"github.com/poiesic/minutes/storage"
	"github.com/urfave/cli/v2"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run a hybrid search over an owner's fact clusters",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "owner",
				Aliases:  []string{"o"},
				Usage:    "Owner whose clusters are searched",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "org",
				Usage:    "Organization the caller belongs to (repeatable)",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of results (0 uses search.top_k)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print the intermediate results of each search stage",
			},
		},
		Action: func(c *cli.Context) error {
			query := joinArgs(c)
			if query == "" {
				return errors.New("search needs a query")
			}

			return withDatabase(c, func(db *minutes.Database) error {
				searcher, err := db.NewSearcher()
				if err != nil {
					return err
				}

				var monitor search.SearchMonitor
				if c.Bool("verbose") {
					monitor = &printMonitor{w: c.App.ErrWriter}
				}
				results, err := searcher.HybridSearchWithMonitor(c.Context, query,
					c.String("owner"), c.StringSlice("org"), c.Int("top-k"), monitor)
				if err != nil {
					return err
				}

				printResults(c.App.Writer, results)
				return nil
			})
		},
	}
}

func printResults(w io.Writer, results []*core.RetrievalResult) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(w, "%d: [%0.3f vector=%0.3f keyword=%0.3f] document %d (%s)\n",
			i, hit.Score, hit.VectorScore, hit.KeywordScore,
			hit.Cluster.DocumentID, strings.Join(hit.Cluster.Organizations, ", "))
		fmt.Fprintln(w, hit.Cluster.Text)
	}
}

// printMonitor writes each search stage to w.
type printMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*printMonitor)(nil)

func (m *printMonitor) Start(query, owner string, orgs []string) {
	fmt.Fprintf(m.w, "query %q owner=%s orgs=%v\n", query, owner, orgs)
}

func (m *printMonitor) AfterVectorSearch(hits []*storage.ScoredCluster) {
	fmt.Fprintf(m.w, "vector search: %d hits\n", len(hits))
	for _, hit := range hits {
		fmt.Fprintf(m.w, "  cluster %d score=%0.3f\n", hit.Cluster.Id, hit.Score)
	}
}

func (m *printMonitor) AfterKeywordSearch(hits []*storage.ScoredCluster, maxScore float32) {
	fmt.Fprintf(m.w, "keyword search: %d hits (max %0.3f)\n", len(hits), maxScore)
	for _, hit := range hits {
		fmt.Fprintf(m.w, "  cluster %d score=%0.3f\n", hit.Cluster.Id, hit.Score)
	}
}

func (m *printMonitor) Fused(result *core.RetrievalResult) {
	fmt.Fprintf(m.w, "fused cluster %d: %0.3f\n", result.Cluster.Id, result.Score)
}

func (m *printMonitor) Finish(results []*core.RetrievalResult) {
	fmt.Fprintf(m.w, "%d results\n", len(results))
}

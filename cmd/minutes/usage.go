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
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/poiesic/minutes"
	"github.com/poiesic/minutes/core"
	"github.com/urfave/cli/v2"
)

func usageCommand() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Summarize model usage and cost for an owner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "owner",
				Aliases:  []string{"o"},
				Usage:    "Owner to report on",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only count calls made within this window",
				Value: 30 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				since := time.Now().Add(-c.Duration("since"))
				records, err := db.Usage().GetUsage(c.Context, c.String("owner"), since)
				if err != nil {
					return err
				}
				return printUsage(c.App.Writer, summarizeUsage(records))
			})
		},
	}
}

type usageKey struct {
	Model string
	Task  string
}

type usageLine struct {
	usageKey
	Calls            int
	Inputs           int
	PromptTokens     int
	CompletionTokens int
	Took             time.Duration
	Cost             float64
}

// summarizeUsage totals records per model and task, ordered by model then
// task.
func summarizeUsage(records []*core.UsageRecord) []*usageLine {
	byKey := make(map[usageKey]*usageLine)
	for _, r := range records {
		key := usageKey{Model: r.Model, Task: r.Task}
		line, ok := byKey[key]
		if !ok {
			line = &usageLine{usageKey: key}
			byKey[key] = line
		}
		line.Calls++
		line.Inputs += r.Inputs
		line.PromptTokens += r.PromptTokens
		line.CompletionTokens += r.CompletionTokens
		line.Took += r.Took
		line.Cost += r.Cost
	}

	lines := make([]*usageLine, 0, len(byKey))
	for _, line := range byKey {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Model != lines[j].Model {
			return lines[i].Model < lines[j].Model
		}
		return lines[i].Task < lines[j].Task
	})
	return lines
}

func printUsage(w io.Writer, lines []*usageLine) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTASK\tCALLS\tINPUTS\tPROMPT\tCOMPLETION\tTIME\tCOST")

	var total float64
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%.6f\n",
			l.Model, l.Task, l.Calls, l.Inputs, l.PromptTokens, l.CompletionTokens,
			l.Took.Round(time.Millisecond), l.Cost)
		total += l.Cost
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t\t\t\t\t%.6f\n", total)
	return tw.Flush()
}

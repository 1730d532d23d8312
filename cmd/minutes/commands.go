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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/poiesic/minutes"
	"github.com/poiesic/minutes/clustering"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/extraction"
	"github.com/urfave/cli/v2"
)

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register a meeting-minutes document",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "owner",
				Aliases:  []string{"o"},
				Usage:    "Owner of the document",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Source identifier (defaults to the file name)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("add takes exactly one path")
			}
			path, err := filepath.Abs(c.Args().First())
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			sourceID := c.String("id")
			if sourceID == "" {
				sourceID = filepath.Base(path)
			}

			return withDatabase(c, func(db *minutes.Database) error {
				doc, err := db.Documents().UpsertDocument(c.Context, &core.Document{
					Owner:         c.String("owner"),
					SourceID:      sourceID,
					SourceURI:     path,
					SourceVersion: fileVersion(info),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\n", doc.Id, doc.Owner, doc.SourceID)
				return nil
			})
		},
	}
}

// fileVersion changes whenever the file is rewritten.
func fileVersion(info os.FileInfo) string {
	return strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 36)
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow the change feed and keep chunks, facts and clusters current",
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				o, err := db.NewOrchestrator(nil)
				if err != nil {
					return err
				}
				defer o.Close()

				err = o.Run(c.Context)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func chunkCommand() *cli.Command {
	return &cli.Command{
		Name:  "chunk",
		Usage: "Chunk every fetched document that has not been chunked",
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				n, err := db.Chunker().ChunkPending(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Chunked %d documents\n", n)
				return nil
			})
		},
	}
}

func forceFlag(usage string) cli.Flag {
	return &cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: usage}
}

func progressPrinter(c *cli.Context, unit string) func(processed, total int) {
	return func(processed, total int) {
		fmt.Fprintf(c.App.ErrWriter, "\r%s: %d/%d", unit, processed, total)
		if processed == total {
			fmt.Fprintln(c.App.ErrWriter)
		}
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract and embed facts of chunks that lack them",
		Flags: []cli.Flag{forceFlag("Re-extract every chunk")},
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				result, err := db.Extractor().Sweep(c.Context, extraction.SweepOptions{
					Force:    c.Bool("force"),
					Progress: progressPrinter(c, "chunks"),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Scanned %d, extracted %d, embedded %d, failed %d\n",
					result.Scanned, result.Extracted, result.Embedded, result.Failed)
				return nil
			})
		},
	}
}

func clusterCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Cluster documents without clusters and drop orphaned clusters",
		Flags: []cli.Flag{forceFlag("Delete all clusters and rebuild every document")},
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				result, err := db.ClusterEngine().Sweep(c.Context, clustering.SweepOptions{
					Force:    c.Bool("force"),
					Progress: progressPrinter(c, "documents"),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Clustered %d, skipped %d, orphans %d, failed %d\n",
					result.Clustered, result.Skipped, result.Orphans, result.Failed)
				return nil
			})
		},
	}
}

func resyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "resync",
		Usage: "Delete all clusters, then re-extract and re-cluster everything",
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(db *minutes.Database) error {
				result, err := db.Resync(c.Context, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Chunked %d documents, extracted %d chunks, clustered %d documents\n",
					result.Chunked, result.Extraction.Extracted, result.Clustering.Clustered)
				return nil
			})
		},
	}
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Recompute fact and cluster embeddings with the configured embedding model",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch (overrides reembed.batch_size)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if n := c.Int("batch-size"); n > 0 {
				cfg.Reembed.BatchSize = n
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			r, err := db.NewReembedder(c.App.ErrWriter)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DBPath)
			fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", cfg.AI.EmbeddingModel)

			result, err := r.Run(c.Context)
			if err != nil {
				return fmt.Errorf("reembedding failed: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Reembedded %d chunks and %d clusters\n", result.Chunks, result.Clusters)
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return cfg.Write(c.App.Writer)
		},
	}
}

func joinArgs(c *cli.Context) string {
	return strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
}

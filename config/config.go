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

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/chunking"
	"github.com/poiesic/minutes/clustering"
	"github.com/poiesic/minutes/extraction"
	"github.com/poiesic/minutes/ingestion"
	"github.com/poiesic/minutes/reembed"
	"github.com/poiesic/minutes/search"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey = "MINUTES_API_KEY"
	EnvDBPath = "MINUTES_DB"
	EnvAIHost = "MINUTES_AI_HOST"
)

// DefaultDBPath is the store location used when nothing else is configured.
const DefaultDBPath = "minutes.db"

// Config is the root application configuration.
type Config struct {
	DBPath     string            `yaml:"db_path"`
	AI         ai.Config         `yaml:"ai"`
	Chunking   chunking.Config   `yaml:"chunking"`
	Extraction extraction.Config `yaml:"extraction"`
	Clustering clustering.Config `yaml:"clustering"`
	Search     search.Config     `yaml:"search"`
	Ingestion  ingestion.Config  `yaml:"ingestion"`
	Reembed    reembed.Config    `yaml:"reembed"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DBPath:     DefaultDBPath,
		AI:         *ai.DefaultConfig(),
		Chunking:   chunking.DefaultConfig(),
		Extraction: extraction.DefaultConfig(),
		Clustering: clustering.DefaultConfig(),
		Search:     search.DefaultConfig(),
		Ingestion:  ingestion.DefaultConfig(),
		Reembed:    *reembed.DefaultConfig(),
	}
}

// LoadEnv populates the environment from .env files. Missing files are
// ignored and variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the YAML file at path over the defaults, applies the
// environment and validates the result. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings with the MINUTES_* environment variables.
func (c *Config) ApplyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.AI.APIKey = key
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		c.DBPath = path
	}
	if host := os.Getenv(EnvAIHost); host != "" {
		ai.WithHost(host)(&c.AI)
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	return errors.Join(
		c.AI.Validate(),
		c.Chunking.Validate(),
		c.Extraction.Validate(),
		c.Clustering.Validate(),
		c.Search.Validate(),
		c.Ingestion.Validate(),
		c.Reembed.Validate(),
	)
}

// Write encodes the configuration as YAML. The API key is never written.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

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

package ingestion

import (
	"errors"
	"time"
)

// DefaultProcessor is the checkpoint name of the orchestrator's feed
// position.
const DefaultProcessor = "change-feed"

// Config holds orchestrator settings.
type Config struct {
	// DebounceDelay is the quiet period after the last embedding update of
	// a document before it is re-clustered.
	// Default: 30s
	DebounceDelay time.Duration `yaml:"debounce_delay"`

	// RestartDelay is the pause before a failed subscription is
	// re-established.
	// Default: 5s
	RestartDelay time.Duration `yaml:"restart_delay"`

	// Workers is the number of chunks extracted concurrently.
	// Default: 4
	Workers int `yaml:"workers"`

	// Processor names the checkpoint holding the feed position.
	// Default: "change-feed"
	Processor string `yaml:"processor"`
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 30 * time.Second,
		RestartDelay:  5 * time.Second,
		Workers:       4,
		Processor:     DefaultProcessor,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.DebounceDelay <= 0 {
		return errors.New("ingestion config: DebounceDelay must be positive")
	}
	if c.RestartDelay < 0 {
		return errors.New("ingestion config: RestartDelay cannot be negative")
	}
	if c.Workers <= 0 {
		return errors.New("ingestion config: Workers must be positive")
	}
	if c.Processor == "" {
		return errors.New("ingestion config: Processor cannot be empty")
	}
	return nil
}

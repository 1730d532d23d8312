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

package extraction

import (
	"errors"
	"time"
)

// Config controls retries and sweep parallelism.
type Config struct {
	// MaxAttempts bounds the model calls made for one chunk.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay between attempts, doubled after each
	// failure. Zero retries immediately.
	// Default: 0
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Workers is the number of chunks processed concurrently by Sweep.
	// Default: 4
	Workers int `yaml:"workers"`

	// BatchSize is the number of chunks read per page while sweeping.
	// Default: 100
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns the default extraction settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		RetryDelay:  0,
		Workers:     4,
		BatchSize:   100,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("extraction config: MaxAttempts must be positive")
	}
	if c.RetryDelay < 0 {
		return errors.New("extraction config: RetryDelay cannot be negative")
	}
	if c.Workers <= 0 {
		return errors.New("extraction config: Workers must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("extraction config: BatchSize must be positive")
	}
	return nil
}

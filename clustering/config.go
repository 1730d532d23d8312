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

package clustering

import "errors"

// Config holds the grouping thresholds.
type Config struct {
	// DistanceThreshold is the largest average cosine distance at which two
	// groups are still merged.
	// Default: 0.5
	DistanceThreshold float64 `yaml:"distance_threshold"`

	// MaxClusterSize is the largest number of facts a cluster may hold.
	// Default: 10
	MaxClusterSize int `yaml:"max_cluster_size"`

	// MaxIterations bounds each k-means run.
	// Default: 100
	MaxIterations int `yaml:"max_iterations"`

	// Seed makes k-means seeding reproducible.
	// Default: 1
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the default grouping thresholds.
func DefaultConfig() Config {
	return Config{
		DistanceThreshold: 0.5,
		MaxClusterSize:    10,
		MaxIterations:     100,
		Seed:              1,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.DistanceThreshold < 0 || c.DistanceThreshold > 2 {
		return errors.New("clustering config: DistanceThreshold must be within [0, 2]")
	}
	if c.MaxClusterSize <= 0 {
		return errors.New("clustering config: MaxClusterSize must be positive")
	}
	if c.MaxIterations <= 0 {
		return errors.New("clustering config: MaxIterations must be positive")
	}
	return nil
}

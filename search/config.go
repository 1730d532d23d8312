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

package search

import "errors"

// Config holds the retrieval settings.
type Config struct {
	// VectorWeight and KeywordWeight weigh the two signals in the fused
	// score. Their sum must not exceed 1.
	// Default: 0.7 and 0.3
	VectorWeight  float32 `yaml:"vector_weight"`
	KeywordWeight float32 `yaml:"keyword_weight"`

	// NumCandidates is the candidate pool of each search.
	// Default: 100
	NumCandidates int `yaml:"num_candidates"`

	// TopK is the number of results returned when the caller asks for
	// zero or fewer.
	// Default: 5
	TopK int `yaml:"top_k"`

	// SortByScore orders results by fused score instead of vector order.
	// Default: false
	SortByScore bool `yaml:"sort_by_score"`
}

// DefaultConfig returns the default retrieval settings.
func DefaultConfig() Config {
	return Config{
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		NumCandidates: 100,
		TopK:          5,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.VectorWeight < 0 || c.KeywordWeight < 0 {
		return errors.New("search config: weights cannot be negative")
	}
	if c.VectorWeight+c.KeywordWeight > 1 {
		return errors.New("search config: weights must not sum above 1")
	}
	if c.NumCandidates <= 0 {
		return errors.New("search config: NumCandidates must be positive")
	}
	if c.TopK <= 0 {
		return errors.New("search config: TopK must be positive")
	}
	return nil
}

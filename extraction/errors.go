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

import "errors"

var (
	// ErrInvalidFactSheet is the base error for replies that fail validation.
	ErrInvalidFactSheet = errors.New("invalid fact sheet")

	// ErrMalformedJSON is returned when a reply is not a JSON object.
	ErrMalformedJSON = errors.New("reply is not valid JSON")

	// ErrMissingSummary is returned when the required summary object is absent.
	ErrMissingSummary = errors.New("summary is required")

	// ErrMissingMisc is returned when the required summary.misc array is absent.
	ErrMissingMisc = errors.New("summary.misc is required")

	// ErrNotAnArray is returned when a fact sheet field is not an array.
	ErrNotAnArray = errors.New("field is not an array")

	// ErrNonStringItem is returned when an array holds something other than strings.
	ErrNonStringItem = errors.New("array item is not a string")

	// ErrExtractionFailed is returned when every extraction attempt failed.
	ErrExtractionFailed = errors.New("fact extraction failed")

	// ErrChunkRepositoryRequired is returned when no chunk repository is given.
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")

	// ErrAIProviderRequired is returned when no AI provider is given.
	ErrAIProviderRequired = errors.New("AI provider is required")
)

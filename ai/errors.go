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

package ai

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when the retry count is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrUnknownModel is returned when a configured model name is missing
	// from the model table.
	ErrUnknownModel = errors.New("model not found in model table")

	// ErrWrongModelKind is returned when a chat model is configured as an
	// embedding model or vice versa.
	ErrWrongModelKind = errors.New("model has the wrong kind")

	// ErrEmptyResponse is returned when a model returns no choices.
	ErrEmptyResponse = errors.New("model returned no choices")
)

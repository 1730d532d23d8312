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

package chunking

import "errors"

var (
	// ErrDocumentHasNoContent is returned when a document has not been
	// fetched yet. It is not retryable.
	ErrDocumentHasNoContent = errors.New("document has no content")

	// ErrDocumentRepositoryRequired is returned when no document repository is given.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrChunkRepositoryRequired is returned when no chunk repository is given.
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")
)

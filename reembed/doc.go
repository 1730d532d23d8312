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

// Package reembed recomputes stored embeddings after the embedding model
// changes.
//
// Chunk fact embeddings are refreshed in batches, grouped by owner so usage
// is attributed correctly. Cluster vectors are refreshed one document at a
// time. Both passes retry failed embedding calls with exponential backoff
// and report progress to a writer.
package reembed

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

// Package chunking splits fetched meeting-minutes documents into dated
// chunks and reconciles them with the chunks already stored.
//
// A section header qualifies as a chunk boundary when its text contains a
// date such as "May 6, 2024" and it links to a calendar event. Each chunk
// covers one qualifying header and the sibling elements up to the next
// one. Chunks are identified by the checksum of their rendered markdown,
// so re-chunking unchanged content inserts and deletes nothing.
package chunking

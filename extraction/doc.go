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

// Package extraction turns chunks of meeting minutes into facts.
//
// The Extractor prompts a chat model for a fact sheet (people,
// organizations and a categorized summary), validates the reply, flattens
// the summary into an ordered fact list and stores it on the chunk. It then
// embeds every fact and stores the vectors aligned with the facts.
//
// Model calls are retried a bounded number of times. Malformed or invalid
// replies count as failed attempts. A chunk whose retries are exhausted
// keeps no facts and is picked up again by the next Sweep.
package extraction

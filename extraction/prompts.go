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
	"fmt"
	"strings"

	"github.com/poiesic/minutes/core"
)

const exampleSheet = `{
    "people": ["John Doe", "Jane Doe", "Bruce Wayne"],
    "organizations": ["Acme Inc.", "MongoDB"],
    "summary": {
        "people": [
            "John Doe (Acme Inc.) is a software engineer with 5 years of experience.",
            "Jane Doe is a product manager with a background in marketing."
        ],
        "relationships": [
            "John Doe (Acme Inc.) works for Acme Inc.",
            "Jane Doe (Acme Inc.) is the product owner of the MongoDB project.",
            "John Doe (Acme Inc.) reports to Bob Ross, but Jane Doe is the functional manager of John Doe."
        ],
        "timeline": [
            "From 2024-03-07: Acme Inc is planning a go-live in 6 months.",
            "From 2024-05-05: The architecture needs to be finalized by end of summer."
        ],
        "tasks": [
            "TODO from 2024-01-05: John Doe (Acme Inc.) will come back with a list of requirements for the new product."
        ],
        "misc": [
            "Acme Inc. is a software company that specializes in cloud-based solutions.",
            "John Doe (Acme Inc.) suggests evaluating MongoDB Atlas as a back-end system."
        ]
    }
}`

// SystemPrompt instructs the model to summarize one chunk of minutes into
// a fact sheet.
var SystemPrompt = `You're a summarization assistant. For the meeting minutes provided by USER, summarize the following things in your own words, with a focus on readability and explicit knowledge:

- Participants with their full names
- All information about people learned in this meeting: their backgrounds and skills, positions and roles, stances and views
- Relationships: any connections between people, companies or groups of people. NO OTHER INFO HERE
- Timelines and tasks. ALWAYS preface them with the meeting date whenever points in time are mentioned. Each provided document has a date
- All miscellaneous information, including company background, team set-up, anything related to technology or business
- Captured tasks and to do's, prefaced with "TODO from <date>:"

Reply with a JSON object shaped like this example:
` + exampleSheet + `

"summary" and "summary.misc" are required. Every other array may be omitted. Every array item must be a string.
Follow the shape strictly and don't introduce additional properties.`

// BuildContext renders the user message for a chunk.
func BuildContext(chunk *core.Chunk) string {
	var b strings.Builder
	b.WriteString("Meeting minutes:\n")
	if !chunk.Date.IsZero() {
		fmt.Fprintf(&b, "Meeting date: %s\n", chunk.Date.Format("2006-01-02"))
	}
	if len(chunk.People) > 0 {
		fmt.Fprintf(&b, "Known people: %s\n", strings.Join(chunk.People, ", "))
	}
	if len(chunk.Organizations) > 0 {
		fmt.Fprintf(&b, "Known organizations: %s\n", strings.Join(chunk.Organizations, ", "))
	}
	b.WriteString("\n")
	b.WriteString(chunk.Markdown)
	b.WriteString(`
-------------
Extract facts from the meeting minutes according to your instructions and follow the specified JSON shape.
Try and extract a high number of facts, not leaving out ANY information.
Reply with the JSON object only, with no preamble. Don't quote the JSON object.`)
	return b.String()
}

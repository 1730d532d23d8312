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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Summary holds the categorized facts of a fact sheet.
type Summary struct {
	People        []string `json:"people,omitempty"`
	Relationships []string `json:"relationships,omitempty"`
	Timeline      []string `json:"timeline,omitempty"`
	Tasks         []string `json:"tasks,omitempty"`
	Misc          []string `json:"misc"`
}

// FactSheet is the validated reply of the extraction prompt.
type FactSheet struct {
	People        []string `json:"people,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Summary       Summary  `json:"summary"`
}

// Facts flattens the summary in category order: people, relationships,
// timeline, tasks, misc. Every item is kept as written.
func (f *FactSheet) Facts() []string {
	categories := [][]string{
		f.Summary.People,
		f.Summary.Relationships,
		f.Summary.Timeline,
		f.Summary.Tasks,
		f.Summary.Misc,
	}
	facts := []string{}
	for _, category := range categories {
		facts = append(facts, category...)
	}
	return facts
}

type rawSummary struct {
	People        json.RawMessage `json:"people"`
	Relationships json.RawMessage `json:"relationships"`
	Timeline      json.RawMessage `json:"timeline"`
	Tasks         json.RawMessage `json:"tasks"`
	Misc          json.RawMessage `json:"misc"`
}

type rawSheet struct {
	People        json.RawMessage `json:"people"`
	Organizations json.RawMessage `json:"organizations"`
	Summary       *rawSummary     `json:"summary"`
}

// ParseFactSheet decodes and validates a model reply. Markdown code fences
// around the object are ignored, and common key quoting mistakes are
// repaired before giving up on malformed JSON. Unknown keys are ignored.
func ParseFactSheet(reply string) (*FactSheet, error) {
	text := stripCodeFence(reply)

	var raw rawSheet
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		if repairErr := json.Unmarshal([]byte(repairJSON(text)), &raw); repairErr != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrInvalidFactSheet, ErrMalformedJSON, err)
		}
	}

	if raw.Summary == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFactSheet, ErrMissingSummary)
	}
	if isAbsent(raw.Summary.Misc) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFactSheet, ErrMissingMisc)
	}

	sheet := &FactSheet{}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *[]string
	}{
		{"people", raw.People, &sheet.People},
		{"organizations", raw.Organizations, &sheet.Organizations},
		{"summary.people", raw.Summary.People, &sheet.Summary.People},
		{"summary.relationships", raw.Summary.Relationships, &sheet.Summary.Relationships},
		{"summary.timeline", raw.Summary.Timeline, &sheet.Summary.Timeline},
		{"summary.tasks", raw.Summary.Tasks, &sheet.Summary.Tasks},
		{"summary.misc", raw.Summary.Misc, &sheet.Summary.Misc},
	}
	for _, f := range fields {
		values, err := decodeStrings(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFactSheet, f.name, err)
		}
		*f.dst = values
	}
	if sheet.Summary.Misc == nil {
		sheet.Summary.Misc = []string{}
	}
	return sheet, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeStrings decodes an optional array of strings. Absent and null
// fields decode to nil.
func decodeStrings(raw json.RawMessage) ([]string, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ErrNotAnArray
	}

	values := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil || isAbsent(item) {
			return nil, fmt.Errorf("%w: item %d", ErrNonStringItem, i)
		}
		values = append(values, s)
	}
	return values, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

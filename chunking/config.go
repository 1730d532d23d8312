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

import (
	"errors"
	"regexp"
)

// DateLayout parses the date token found in section headers.
const DateLayout = "Jan 2, 2006"

var dateToken = regexp.MustCompile(`[A-Z][a-z]{2} \d{1,2}, \d{4}`)

// Config controls how section headers are recognized.
type Config struct {
	// HeaderTag is the element that starts a section.
	// Default: "h2"
	HeaderTag string `yaml:"header_tag"`

	// CalendarLinkMarker must appear in a header link's href for the
	// header to qualify.
	// Default: "www.google.com/calendar/event"
	CalendarLinkMarker string `yaml:"calendar_link_marker"`
}

// DefaultConfig returns the configuration for Google Docs meeting notes.
func DefaultConfig() Config {
	return Config{
		HeaderTag:          "h2",
		CalendarLinkMarker: "www.google.com/calendar/event",
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.HeaderTag == "" {
		return errors.New("chunking config: HeaderTag is required")
	}
	if c.CalendarLinkMarker == "" {
		return errors.New("chunking config: CalendarLinkMarker is required")
	}
	return nil
}

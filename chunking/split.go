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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/minutes/core"
	"golang.org/x/net/html"
)

var newlineRuns = regexp.MustCompile(`\n+`)

type section struct {
	header       *goquery.Selection
	date         time.Time
	calendarLink string
}

// Split computes the chunks of a document without touching the store.
// Sections whose rendered markdown is identical collapse onto the first
// one, so checksums are unique within the result.
func (c *Chunker) Split(doc *core.Document) ([]*core.Chunk, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if !doc.HasContent() {
		return nil, ErrDocumentHasNoContent
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %d: %w", doc.Id, err)
	}

	var sections []section
	dom.Find(c.config.HeaderTag).Each(func(_ int, header *goquery.Selection) {
		if s, ok := c.qualify(header); ok {
			sections = append(sections, s)
		}
	})

	chunks := make([]*core.Chunk, 0, len(sections))
	seen := make(map[string]bool, len(sections))
	for i, s := range sections {
		var body *goquery.Selection
		if i+1 < len(sections) {
			body = s.header.NextUntilSelection(sections[i+1].header)
		} else {
			body = s.header.NextAll()
		}

		markup, err := sectionHTML(s.header, body)
		if err != nil {
			return nil, err
		}
		markdown, err := c.render(doc.Title, markup)
		if err != nil {
			return nil, err
		}

		checksum := core.Checksum(markdown)
		if seen[checksum] {
			continue
		}
		seen[checksum] = true

		chunks = append(chunks, &core.Chunk{
			DocumentID:   doc.Id,
			Owner:        doc.Owner,
			Title:        doc.Title,
			HTML:         markup,
			Markdown:     markdown,
			Checksum:     checksum,
			Date:         s.date,
			CalendarLink: s.calendarLink,
		})
	}
	return chunks, nil
}

// qualify reports whether header starts a chunk: it must carry a date
// token and a calendar event link.
func (c *Chunker) qualify(header *goquery.Selection) (section, bool) {
	token := dateToken.FindString(header.Text())
	if token == "" {
		return section{}, false
	}
	date, err := time.Parse(DateLayout, token)
	if err != nil {
		return section{}, false
	}

	var link string
	header.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, c.config.CalendarLinkMarker) {
			link = href
			return false
		}
		return true
	})
	if link == "" {
		return section{}, false
	}

	return section{header: header, date: date, calendarLink: link}, true
}

// sectionHTML wraps the header and the nodes following it in a document
// of their own.
func sectionHTML(header, body *goquery.Selection) (string, error) {
	var b strings.Builder
	b.WriteString("<html><body>")

	nodes := append([]*html.Node{header.Get(0)}, body.Nodes...)
	for _, node := range nodes {
		if err := html.Render(&b, node); err != nil {
			return "", fmt.Errorf("failed to render section: %w", err)
		}
	}

	b.WriteString("</body></html>")
	return b.String(), nil
}

// render converts section HTML to markdown, collapses newline runs and
// prefixes the document title.
func (c *Chunker) render(title, markup string) (string, error) {
	markdown, err := c.converter.ConvertString(markup)
	if err != nil {
		return "", fmt.Errorf("failed to convert section to markdown: %w", err)
	}
	markdown = newlineRuns.ReplaceAllString(markdown, "\n")
	return fmt.Sprintf("Document title: %s \n\n%s", title, markdown), nil
}

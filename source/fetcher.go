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

package source

import (
	"context"
	"errors"

	"github.com/poiesic/minutes/core"
)

var (
	// ErrEmptyURI is returned when a document has no source URI.
	ErrEmptyURI = errors.New("document has no source uri")

	// ErrUnsupportedScheme is returned for URIs other than plain paths and
	// file:// URLs.
	ErrUnsupportedScheme = errors.New("unsupported source uri scheme")
)

// Content is the rendered form of a document.
type Content struct {
	Title    string
	HTML     string
	Markdown string
}

// Fetcher retrieves the current content of a document from its source.
type Fetcher interface {
	Fetch(ctx context.Context, doc *core.Document) (*Content, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, doc *core.Document) (*Content, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, doc *core.Document) (*Content, error) {
	return f(ctx, doc)
}

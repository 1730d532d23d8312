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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/minutes/core"
)

// FileFetcher reads HTML exports from the local filesystem. The document's
// SourceURI is either a path or a file:// URL.
type FileFetcher struct {
	converter *md.Converter
	logger    *slog.Logger
}

// NewFileFetcher creates a FileFetcher. A nil logger means slog.Default().
func NewFileFetcher(logger *slog.Logger) *FileFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileFetcher{
		converter: md.NewConverter("", true, nil).Remove("script", "style", "noscript"),
		logger:    logger.With("component", "file-fetcher"),
	}
}

// Fetch reads and renders the document's file.
func (f *FileFetcher) Fetch(ctx context.Context, doc *core.Document) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := ResolvePath(doc.SourceURI)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	title := strings.TrimSpace(dom.Find("title").First().Text())
	if title == "" {
		title = doc.Title
	}
	if title == "" {
		title = titleFromFilename(path)
	}

	markdown := f.converter.Convert(dom.Find("body"))

	f.logger.Debug("fetched document", "path", path, "title", title, "bytes", len(data))
	return &Content{
		Title:    title,
		HTML:     string(data),
		Markdown: markdown,
	}, nil
}

// Version returns a string that changes whenever the file at uri changes.
func Version(uri string) (string, error) {
	path, err := ResolvePath(uri)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}

// ResolvePath converts a source URI into a filesystem path.
func ResolvePath(uri string) (string, error) {
	if uri == "" {
		return "", ErrEmptyURI
	}
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid source uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	return u.Path, nil
}

func titleFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ReplaceAll(name, "-", " ")
}

// Package outline extracts a document's table of contents for the explanation prompt.
package outline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Provider returns the outline titles of the open document.
type Provider interface {
	Outline(ctx context.Context) ([]string, error)
}

// Static is a fixed outline.
type Static []string

// Outline returns the fixed titles.
func (s Static) Outline(_ context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// FileProvider reads the outline from a document on disk.
type FileProvider struct {
	// Path is the document path.
	Path string
}

// markdownExtensions lists file suffixes parsed as markdown.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
}

// Outline reads the file and returns its top-level heading titles. Documents
// that are not markdown have no outline.
func (p FileProvider) Outline(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !markdownExtensions[strings.ToLower(filepath.Ext(p.Path))] {
		return []string{}, nil
	}
	return Markdown(source), nil
}

// Markdown returns the titles of the shallowest heading level in source.
func Markdown(source []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	type heading struct {
		level int
		title string
	}
	var headings []heading
	topLevel := 0
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title := strings.TrimSpace(inlineText(h, source))
		if title != "" {
			headings = append(headings, heading{level: h.Level, title: title})
			if topLevel == 0 || h.Level < topLevel {
				topLevel = h.Level
			}
		}
		return ast.WalkSkipChildren, nil
	})

	titles := make([]string, 0, len(headings))
	for _, h := range headings {
		if h.level == topLevel {
			titles = append(titles, h.title)
		}
	}
	return titles
}

// inlineText concatenates the literal text under node.
func inlineText(node ast.Node, source []byte) string {
	var builder strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch typed := child.(type) {
		case *ast.Text:
			builder.Write(typed.Segment.Value(source))
			if typed.SoftLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(typed.Value)
		default:
			builder.WriteString(inlineText(child, source))
		}
	}
	return builder.String()
}

// Package document parses post files: a YAML front-matter block between "---" lines,
// followed by a Markdown body.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// ParseError reports a malformed front-matter block.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed front-matter: %v", e.Err)
	}
	return fmt.Sprintf("malformed front-matter in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errUnterminated = errors.New("front-matter block is not terminated")

// Document is one parsed post file.
type Document struct {
	Meta     *Metadata
	RawBody  string
	Rendered string
	Title    string
	Snippet  string
}

// Parser splits and renders post files. It holds no per-document state.
type Parser struct {
	markdown MarkdownRenderer
}

func NewParser(markdown MarkdownRenderer) *Parser {
	return &Parser{markdown: markdown}
}

// Parse splits data into front-matter and body and renders the body.
// A file without a leading "---" line is all body with empty metadata.
func (p *Parser) Parse(data []byte) (*Document, error) {
	front, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	meta, err := decodeMetadata(front)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	doc := &Document{
		Meta:    meta,
		RawBody: body,
	}
	if title, ok := meta.String("title"); ok {
		doc.Title = title
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return doc, nil
	}

	result, err := p.markdown.Render([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}
	doc.Rendered = string(result.HTMLContent)
	doc.Snippet = result.Snippet
	if doc.Title == "" {
		doc.Title = result.Title
	}

	return doc, nil
}

func splitFrontMatter(data []byte) (front []byte, body string, err error) {
	text := strings.TrimPrefix(string(data), "\ufeff")

	first, rest, found := strings.Cut(text, "\n")
	if strings.TrimRight(first, "\r \t") != delimiter {
		return nil, text, nil
	}
	if !found {
		return nil, "", errUnterminated
	}

	offset := 0
	for {
		line, remaining, more := strings.Cut(rest[offset:], "\n")
		if strings.TrimRight(line, "\r \t") == delimiter {
			return []byte(rest[:offset]), remaining, nil
		}
		if !more {
			return nil, "", errUnterminated
		}
		offset += len(line) + 1
	}
}

func decodeMetadata(front []byte) (*Metadata, error) {
	if len(bytes.TrimSpace(front)) == 0 {
		return NewMetadata(), nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(front, &root); err != nil {
		return nil, err
	}

	if root.Kind == 0 {
		return NewMetadata(), nil
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("unexpected YAML node kind %d", root.Kind)
	}

	mapping := root.Content[0]
	if mapping.Kind == yaml.ScalarNode && mapping.Tag == "!!null" {
		return NewMetadata(), nil
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("front-matter must be a mapping, got %s", mapping.Tag)
	}

	return &Metadata{node: mapping}, nil
}

// Encode writes meta and the trimmed raw body back in front-matter form.
// Rendered content is never part of the output.
func Encode(meta *Metadata, rawBody string) ([]byte, error) {
	front, err := meta.marshal()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(front)
	buf.WriteString(delimiter + "\n")
	if body := strings.TrimSpace(rawBody); body != "" {
		buf.WriteString(body)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

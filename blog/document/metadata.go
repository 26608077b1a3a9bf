package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// dateLayouts are tried in order when reading the date field.
// Values without a zone are interpreted as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
}

// Metadata is an ordered front-matter mapping.
// It keeps the parsed yaml.Node so that unknown keys, their order and comments survive a
// load and rewrite unchanged.
type Metadata struct {
	node *yaml.Node
}

// NewMetadata returns an empty mapping.
func NewMetadata() *Metadata {
	return &Metadata{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

func (m *Metadata) lookup(key string) *yaml.Node {
	for i := 0; i+1 < len(m.node.Content); i += 2 {
		if m.node.Content[i].Value == key {
			return resolveAlias(m.node.Content[i+1])
		}
	}
	return nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// Keys returns the mapping keys in document order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.node.Content)/2)
	for i := 0; i+1 < len(m.node.Content); i += 2 {
		keys = append(keys, m.node.Content[i].Value)
	}
	return keys
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	return len(m.node.Content) / 2
}

// String returns a scalar value verbatim. Non-scalar or empty values report false.
func (m *Metadata) String(key string) (string, bool) {
	n := m.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	value := strings.TrimSpace(n.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Bool returns a boolean value. Anything that does not decode as a bool reports false.
func (m *Metadata) Bool(key string) (bool, bool) {
	n := m.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode {
		return false, false
	}
	var b bool
	if err := n.Decode(&b); err != nil {
		parsed, perr := strconv.ParseBool(strings.TrimSpace(n.Value))
		if perr != nil {
			return false, false
		}
		return parsed, true
	}
	return b, true
}

// Time parses a timestamp value using the accepted layouts.
func (m *Metadata) Time(key string) (time.Time, bool) {
	value, ok := m.String(key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Strings flattens a scalar or an arbitrarily nested sequence into its scalar values.
func (m *Metadata) Strings(key string) []string {
	n := m.lookup(key)
	if n == nil {
		return nil
	}
	var out []string
	flattenScalars(n, &out)
	return out
}

func flattenScalars(n *yaml.Node, out *[]string) {
	n = resolveAlias(n)
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return
		}
		if v := strings.TrimSpace(n.Value); v != "" {
			*out = append(*out, v)
		}
	case yaml.SequenceNode:
		for _, child := range n.Content {
			flattenScalars(child, out)
		}
	}
}

// Set replaces the value of key in place, or appends key when it is missing.
func (m *Metadata) Set(key string, value any) error {
	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("failed to encode front-matter value for %q: %w", key, err)
	}

	for i := 0; i+1 < len(m.node.Content); i += 2 {
		if m.node.Content[i].Value == key {
			// keep comments attached to the old value
			valueNode.LineComment = m.node.Content[i+1].LineComment
			m.node.Content[i+1] = &valueNode
			return nil
		}
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.node.Content = append(m.node.Content, keyNode, &valueNode)
	return nil
}

// Fields decodes the whole mapping into plain Go values.
func (m *Metadata) Fields() (map[string]any, error) {
	fields := make(map[string]any, m.Len())
	if m.Len() == 0 {
		return fields, nil
	}
	if err := m.node.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode front-matter: %w", err)
	}
	return fields, nil
}

// marshal renders the mapping as YAML with two-space indentation.
func (m *Metadata) marshal() ([]byte, error) {
	if m.Len() == 0 {
		return nil, nil
	}

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.node); err != nil {
		return nil, fmt.Errorf("failed to encode front-matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode front-matter: %w", err)
	}
	return []byte(buf.String()), nil
}

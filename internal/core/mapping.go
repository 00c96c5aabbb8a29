package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MappingEntry pairs a source column with its field spec.
type MappingEntry struct {
	Column string
	Spec   FieldSpec
}

// FieldMapping is an integration's column configuration in declaration
// order. It decodes from a JSON or YAML object and keeps the key order.
type FieldMapping []MappingEntry

// Columns returns the configured source column names.
func (m FieldMapping) Columns() []string {
	cols := make([]string, len(m))
	for i, e := range m {
		cols[i] = e.Column
	}
	return cols
}

// Lookup returns the spec configured for column.
func (m FieldMapping) Lookup(column string) (FieldSpec, bool) {
	for _, e := range m {
		if e.Column == column {
			return e.Spec, true
		}
	}
	return FieldSpec{}, false
}

// MarshalJSON writes the mapping as an object, preserving order.
func (m FieldMapping) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Column)
		if err != nil {
			return nil, err
		}
		spec, err := json.Marshal(e.Spec)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", e.Column, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of column -> spec, preserving order.
func (m *FieldMapping) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode field mapping: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode field mapping: expected object, got %v", tok)
	}

	var out FieldMapping
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode field mapping: %w", err)
		}
		column, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode field mapping: expected column name, got %v", tok)
		}
		if seen[column] {
			return fmt.Errorf("decode field mapping: duplicate column %q", column)
		}
		seen[column] = true

		var spec FieldSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("decode field %q: %w", column, err)
		}
		out = append(out, MappingEntry{Column: column, Spec: spec})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode field mapping: %w", err)
	}

	*m = out
	return nil
}

// UnmarshalYAML reads a mapping node of column -> spec, preserving order.
func (m *FieldMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: field mapping must be a mapping", node.Line)
	}

	out := make(FieldMapping, 0, len(node.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate column %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var spec FieldSpec
		if err := value.Decode(&spec); err != nil {
			return fmt.Errorf("line %d: field %q: %w", value.Line, key.Value, err)
		}
		out = append(out, MappingEntry{Column: key.Value, Spec: spec})
	}

	*m = out
	return nil
}

// Package schema defines field mappings and the validated, immutable Schema
// a searcher is opened with.
package schema

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
)

// FieldType decides how a field is tokenized and which index structure
// stores it.
type FieldType int

const (
	TextAnalyzed FieldType = iota
	StringExact
	Integer
)

func (t FieldType) String() string {
	switch t {
	case TextAnalyzed:
		return "text"
	case StringExact:
		return "string"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType accepts the canonical names plus a few common aliases
// ("keyword", "long", "i64").
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string_analyzed", "textanalyzed":
		return TextAnalyzed, nil
	case "string", "keyword", "exact", "stringexact":
		return StringExact, nil
	case "integer", "int", "long", "i64", "int64":
		return Integer, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest, "unknown field type %q", s)
	}
}

// Indexed reports whether values of this type go to the postings store.
func (t FieldType) Indexed() bool {
	return t == TextAnalyzed || t == StringExact
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FieldMapping binds a field name to its type. Stored fields keep their
// values in the snapshot so search results can project them.
type FieldMapping struct {
	Name   string    `json:"name" yaml:"name"`
	Type   FieldType `json:"type" yaml:"type"`
	Stored bool      `json:"stored" yaml:"stored"`
}

// Schema is an ordered set of field mappings with unique, non-empty names.
// It is immutable once built.
type Schema struct {
	fields []FieldMapping
	byName map[string]int
}

// New validates mappings and builds a Schema.
func New(mappings []FieldMapping) (*Schema, error) {
	if len(mappings) == 0 {
		return nil, apperrors.New(apperrors.ErrSchema, http.StatusBadRequest, "schema has no fields")
	}
	s := &Schema{
		fields: make([]FieldMapping, 0, len(mappings)),
		byName: make(map[string]int, len(mappings)),
	}
	for i, m := range mappings {
		if strings.TrimSpace(m.Name) == "" {
			return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest, "field %d has an empty name", i)
		}
		if _, dup := s.byName[m.Name]; dup {
			return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest, "duplicate field name %q", m.Name)
		}
		if m.Type < TextAnalyzed || m.Type > Integer {
			return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest, "field %q has invalid type %d", m.Name, int(m.Type))
		}
		s.byName[m.Name] = len(s.fields)
		s.fields = append(s.fields, m)
	}
	return s, nil
}

// Field returns the mapping for name.
func (s *Schema) Field(name string) (FieldMapping, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return FieldMapping{}, false
	}
	return s.fields[idx], true
}

// Lookup is Field with the engine's error taxonomy applied.
func (s *Schema) Lookup(name string) (FieldMapping, error) {
	m, ok := s.Field(name)
	if !ok {
		return FieldMapping{}, apperrors.Newf(apperrors.ErrUnknownField, http.StatusBadRequest, "field %q is not in the schema", name)
	}
	return m, nil
}

// Fields returns a copy of the mappings in declaration order.
func (s *Schema) Fields() []FieldMapping {
	out := make([]FieldMapping, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldsOfType returns the names of every field of type t, in declaration
// order.
func (s *Schema) FieldsOfType(t FieldType) []string {
	var names []string
	for _, f := range s.fields {
		if f.Type == t {
			names = append(names, f.Name)
		}
	}
	return names
}

// Equal reports whether two schemas declare the same fields in the same
// order.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

func (s *Schema) UnmarshalJSON(b []byte) error {
	var mappings []FieldMapping
	if err := json.Unmarshal(b, &mappings); err != nil {
		return fmt.Errorf("decoding schema: %w", err)
	}
	built, err := New(mappings)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

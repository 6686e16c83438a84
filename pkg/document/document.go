// Package document holds the typed document model accepted by the engine:
// an external int64 id plus an ordered list of typed field values.
package document

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// Field is one typed value of a document. Text carries the value of text and
// string fields; Int carries the value of integer fields.
type Field struct {
	Name string
	Type schema.FieldType
	Text string
	Int  int64
}

func Text(name, value string) Field {
	return Field{Name: name, Type: schema.TextAnalyzed, Text: value}
}

func String(name, value string) Field {
	return Field{Name: name, Type: schema.StringExact, Text: value}
}

func Int(name string, value int64) Field {
	return Field{Name: name, Type: schema.Integer, Int: value}
}

// Parse builds a Field from its textual form, the way foreign callers
// describe fields as (name, value, type) string triples.
func Parse(name, value, typeName string) (Field, error) {
	t, err := schema.ParseFieldType(typeName)
	if err != nil {
		return Field{}, err
	}
	if t != schema.Integer {
		return Field{Name: name, Type: t, Text: value}, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Field{}, apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
			"field %q: %q is not a 64-bit integer", name, value)
	}
	return Int(name, v), nil
}

// String renders the value the way it would be written back to a caller.
func (f Field) String() string {
	if f.Type == schema.Integer {
		return strconv.FormatInt(f.Int, 10)
	}
	return f.Text
}

type fieldJSON struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	var value any = f.Text
	if f.Type == schema.Integer {
		value = f.Int
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fieldJSON{Name: f.Name, Type: f.Type.String(), Value: raw})
}

func (f *Field) UnmarshalJSON(b []byte) error {
	var fj fieldJSON
	if err := json.Unmarshal(b, &fj); err != nil {
		return fmt.Errorf("decoding field: %w", err)
	}
	t, err := schema.ParseFieldType(fj.Type)
	if err != nil {
		return err
	}
	if t == schema.Integer {
		var n json.Number
		if err := json.Unmarshal(fj.Value, &n); err != nil {
			var s string
			if err := json.Unmarshal(fj.Value, &s); err != nil {
				return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
					"field %q: value is not an integer", fj.Name)
			}
			n = json.Number(s)
		}
		v, err := n.Int64()
		if err != nil {
			return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
				"field %q: %s is not a 64-bit integer", fj.Name, n)
		}
		*f = Int(fj.Name, v)
		return nil
	}
	var s string
	if err := json.Unmarshal(fj.Value, &s); err != nil {
		return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
			"field %q: value is not a string", fj.Name)
	}
	*f = Field{Name: fj.Name, Type: t, Text: s}
	return nil
}

// Document is a caller-identified set of fields. The id is never reassigned
// by the engine.
type Document struct {
	ID     int64   `json:"id"`
	Fields []Field `json:"fields"`
}

func New(id int64, fields ...Field) Document {
	return Document{ID: id, Fields: fields}
}

// Validate checks every field against s. It never mutates the document.
func (d Document) Validate(s *schema.Schema) error {
	for _, f := range d.Fields {
		m, err := s.Lookup(f.Name)
		if err != nil {
			return fmt.Errorf("document %d: %w", d.ID, err)
		}
		if m.Type != f.Type {
			return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
				"document %d: field %q is declared %s, got %s", d.ID, f.Name, m.Type, f.Type)
		}
		// Stored fields round-trip through JSON, which cannot carry invalid UTF-8.
		if f.Type != schema.Integer && !utf8.ValidString(f.Text) {
			return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
				"document %d: field %q is not valid UTF-8", d.ID, f.Name)
		}
	}
	return nil
}

// Get returns every value of the named field, in document order.
func (d Document) Get(name string) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// Project keeps only the fields accepted by keep. The result shares no
// backing array with d.
func (d Document) Project(keep func(name string) bool) Document {
	out := Document{ID: d.ID}
	for _, f := range d.Fields {
		if keep(f.Name) {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

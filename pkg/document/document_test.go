package document

import (
	"encoding/json"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "isbn", Type: schema.StringExact},
		{Name: "year", Type: schema.Integer},
	})
	require.NoError(t, err)
	return s
}

func TestValidate(t *testing.T) {
	s := testSchema(t)

	ok := New(1, Text("title", "The Old Man and the Sea"), Int("year", 1952))
	require.NoError(t, ok.Validate(s))

	unknown := New(2, Text("author", "Hemingway"))
	assert.ErrorIs(t, unknown.Validate(s), apperrors.ErrUnknownField)

	mismatch := New(3, Text("year", "1952"))
	assert.ErrorIs(t, mismatch.Validate(s), apperrors.ErrFieldTypeMismatch)
}

func TestValidateRejectsInvalidUTF8(t *testing.T) {
	s := testSchema(t)

	assert.ErrorIs(t, New(4, String("isbn", "a\xffb")).Validate(s), apperrors.ErrFieldTypeMismatch)
	assert.ErrorIs(t, New(5, Text("title", "caf\xc3")).Validate(s), apperrors.ErrFieldTypeMismatch)
	assert.NoError(t, New(6, String("isbn", "café"), Text("title", "naïve")).Validate(s))
}

func TestParse(t *testing.T) {
	f, err := Parse("year", "1818", "Long")
	require.NoError(t, err)
	assert.Equal(t, Int("year", 1818), f)

	_, err = Parse("year", "eighteen", "Long")
	assert.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)

	f, err = Parse("isbn", "978-0", "string")
	require.NoError(t, err)
	assert.Equal(t, schema.StringExact, f.Type)
}

func TestFieldJSON(t *testing.T) {
	doc := New(7, Text("title", "Frankenstein"), Int("year", 1818))
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, doc, decoded)

	var quoted Field
	require.NoError(t, json.Unmarshal([]byte(`{"name":"year","type":"long","value":"42"}`), &quoted))
	assert.Equal(t, int64(42), quoted.Int)

	var bad Field
	err = json.Unmarshal([]byte(`{"name":"year","type":"long","value":"x"}`), &bad)
	assert.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)
}

func TestProject(t *testing.T) {
	doc := New(1, Text("title", "a"), String("isbn", "b"), Text("title", "c"))
	got := doc.Project(func(name string) bool { return name == "title" })
	assert.Equal(t, []Field{Text("title", "a"), Text("title", "c")}, got.Fields)
	assert.Len(t, doc.Get("title"), 2)
}

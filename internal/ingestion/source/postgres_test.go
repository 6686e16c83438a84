package source

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

func bookSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "genre", Type: schema.StringExact},
		{Name: "year", Type: schema.Integer},
	})
	require.NoError(t, err)
	return s
}

func TestSelectStatement(t *testing.T) {
	assert.Equal(t,
		`SELECT "book_id", "title", "genre", "year" FROM "library"."books" WHERE "book_id" > $1 ORDER BY "book_id" LIMIT $2`,
		selectStatement(bookSchema(t), "library.books", "book_id"))
}

func TestToDocumentSkipsNulls(t *testing.T) {
	s := bookSchema(t)
	doc := toDocument(7, s.Fields(), []any{
		&sql.NullString{String: "The Sea Wolf", Valid: true},
		&sql.NullString{},
		&sql.NullInt64{Int64: 1904, Valid: true},
	})
	assert.Equal(t, document.New(7, document.Text("title", "The Sea Wolf"), document.Int("year", 1904)), doc)
	require.NoError(t, doc.Validate(s))

	doc = toDocument(8, s.Fields(), []any{
		&sql.NullString{},
		&sql.NullString{String: "novel", Valid: true},
		&sql.NullInt64{},
	})
	assert.Equal(t, document.New(8, document.String("genre", "novel")), doc)
}

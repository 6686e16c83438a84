package schema

import (
	"encoding/json"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadMappings(t *testing.T) {
	tests := []struct {
		name     string
		mappings []FieldMapping
	}{
		{"empty", nil},
		{"empty name", []FieldMapping{{Name: "", Type: TextAnalyzed}}},
		{"blank name", []FieldMapping{{Name: "  ", Type: TextAnalyzed}}},
		{"duplicate", []FieldMapping{{Name: "title", Type: TextAnalyzed}, {Name: "title", Type: StringExact}}},
		{"bad type", []FieldMapping{{Name: "title", Type: FieldType(9)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mappings)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSchema)
		})
	}
}

func TestLookup(t *testing.T) {
	s, err := New([]FieldMapping{
		{Name: "title", Type: TextAnalyzed, Stored: true},
		{Name: "tag", Type: StringExact},
		{Name: "year", Type: Integer},
	})
	require.NoError(t, err)

	m, err := s.Lookup("year")
	require.NoError(t, err)
	assert.Equal(t, Integer, m.Type)

	_, err = s.Lookup("missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)

	assert.Equal(t, []string{"title"}, s.FieldsOfType(TextAnalyzed))
}

func TestJSONRoundTripKeepsEquality(t *testing.T) {
	s, err := New([]FieldMapping{
		{Name: "title", Type: TextAnalyzed, Stored: true},
		{Name: "year", Type: Integer},
	})
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"title","type":"text","stored":true},{"name":"year","type":"integer","stored":false}]`, string(data))

	var decoded Schema
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, s.Equal(&decoded))
}

func TestParseFieldTypeAliases(t *testing.T) {
	for in, want := range map[string]FieldType{
		"text": TextAnalyzed, "String": StringExact, "keyword": StringExact,
		"Long": Integer, "i64": Integer,
	} {
		got, err := ParseFieldType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFieldType("double")
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}

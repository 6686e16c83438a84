package searcher

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// TermQuery builds the query matching text in field. Text fields analyze
// text: one term gives a term query, several give a MUST of term queries.
// String fields match text exactly. Integer fields match the value text
// parses to.
func (s *Searcher) TermQuery(field, text string) (query.Node, error) {
	m, err := s.engine.Schema().Lookup(field)
	if err != nil {
		return nil, err
	}
	switch m.Type {
	case schema.TextAnalyzed:
		terms := tokenizer.Terms(s.engine.Analyzer(), text)
		switch len(terms) {
		case 0:
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"%q has no searchable terms", text)
		case 1:
			return &query.Term{Field: field, Text: terms[0]}, nil
		}
		leaves := make([]query.Node, len(terms))
		for i, t := range terms {
			leaves[i] = &query.Term{Field: field, Text: t}
		}
		return query.All(leaves...), nil
	case schema.StringExact:
		return &query.Term{Field: field, Text: text}, nil
	case schema.Integer:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
				"field %q is an integer field and %q is not an integer", field, text)
		}
		return &query.NumericRange{Field: field, Lower: query.Include(v), Upper: query.Include(v)}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest, "field %q has type %s", field, m.Type)
	}
}

// RangeQuery builds a lexicographic range over the terms of a text or
// string field. Bounds are compared byte-wise against index terms as is.
func (s *Searcher) RangeQuery(field string, lower, upper query.Bound[string]) (query.Node, error) {
	q := &query.LexicalRange{Field: field, Lower: lower, Upper: upper}
	if err := query.Validate(q, s.engine.Schema()); err != nil {
		return nil, err
	}
	return q, nil
}

// RangeQueryLong builds a numeric range over an integer field.
func (s *Searcher) RangeQueryLong(field string, lower, upper query.Bound[int64]) (query.Node, error) {
	q := &query.NumericRange{Field: field, Lower: lower, Upper: upper}
	if err := query.Validate(q, s.engine.Schema()); err != nil {
		return nil, err
	}
	return q, nil
}

// textQuery is the SHOULD of every (field, term) pair Search matches.
func (s *Searcher) textQuery(text string, fields []string) (*query.Boolean, error) {
	sc := s.engine.Schema()
	if fields == nil {
		fields = sc.FieldsOfType(schema.TextAnalyzed)
	}
	list := query.NewOccurList()
	for _, field := range fields {
		m, err := sc.Lookup(field)
		if err != nil {
			return nil, err
		}
		switch m.Type {
		case schema.TextAnalyzed:
			for _, t := range tokenizer.Terms(s.engine.Analyzer(), text) {
				list.Append(query.NewOccurEntry(query.Should, &query.Term{Field: field, Text: t}))
			}
		case schema.StringExact:
			list.Append(query.NewOccurEntry(query.Should, &query.Term{Field: field, Text: text}))
		default:
			return nil, apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
				"cannot run a text search on %s field %q", m.Type, field)
		}
	}
	return query.NewBoolean(list)
}

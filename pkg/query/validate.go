package query

import (
	"fmt"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// Validate checks every leaf of q against s: the field must exist and its
// declared type must suit the leaf kind.
func Validate(q Node, s *schema.Schema) error {
	switch n := q.(type) {
	case *Term:
		return checkField(s, n.Field, "term", schema.TextAnalyzed, schema.StringExact)
	case *LexicalRange:
		return checkField(s, n.Field, "range", schema.TextAnalyzed, schema.StringExact)
	case *NumericRange:
		return checkField(s, n.Field, "numeric range", schema.Integer)
	case *Boolean:
		for i, c := range n.Clauses {
			if c.Query == nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "clause %d has no query", i)
			}
			if err := Validate(c.Query, s); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "nil query")
	default:
		panic(fmt.Sprintf("query: unhandled node %T", q))
	}
}

func checkField(s *schema.Schema, field, kind string, allowed ...schema.FieldType) error {
	m, err := s.Lookup(field)
	if err != nil {
		return err
	}
	for _, t := range allowed {
		if m.Type == t {
			return nil
		}
	}
	return apperrors.Newf(apperrors.ErrFieldTypeMismatch, http.StatusBadRequest,
		"%s query on %s field %q", kind, m.Type, field)
}

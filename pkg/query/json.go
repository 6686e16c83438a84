package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
)

// The wire form of an AST is a single-key object per node:
//
//	{"term":       {"field": "title", "text": "sea"}}
//	{"range":      {"field": "isbn", "lower": {"kind": "included", "value": "a"}, "upper": {"kind": "unbounded"}}}
//	{"range_long": {"field": "year", "lower": {"kind": "excluded", "value": 1002}}}
//	{"bool":       [{"occur": "must", "query": {...}}, ...]}
//
// An omitted bound is unbounded.

type nodeJSON struct {
	Term      *termJSON          `json:"term,omitempty"`
	Range     *rangeJSON[string] `json:"range,omitempty"`
	RangeLong *rangeJSON[int64]  `json:"range_long,omitempty"`
	Bool      *[]clauseJSON      `json:"bool,omitempty"`
}

type termJSON struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

type boundJSON[T int64 | string] struct {
	Kind  string `json:"kind"`
	Value T      `json:"value,omitempty"`
}

type rangeJSON[T int64 | string] struct {
	Field string        `json:"field"`
	Lower *boundJSON[T] `json:"lower,omitempty"`
	Upper *boundJSON[T] `json:"upper,omitempty"`
}

type clauseJSON struct {
	Occur string          `json:"occur"`
	Query json.RawMessage `json:"query"`
}

// Decode parses the wire form of a query.
func Decode(data []byte) (Node, error) {
	var nj nodeJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding query: %v", err)
	}
	set := 0
	for _, present := range []bool{nj.Term != nil, nj.Range != nil, nj.RangeLong != nil, nj.Bool != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			`query must have exactly one of "term", "range", "range_long", "bool"`)
	}
	switch {
	case nj.Term != nil:
		return &Term{Field: nj.Term.Field, Text: nj.Term.Text}, nil
	case nj.Range != nil:
		lower, err := decodeBound(nj.Range.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := decodeBound(nj.Range.Upper)
		if err != nil {
			return nil, err
		}
		return &LexicalRange{Field: nj.Range.Field, Lower: lower, Upper: upper}, nil
	case nj.RangeLong != nil:
		lower, err := decodeBound(nj.RangeLong.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := decodeBound(nj.RangeLong.Upper)
		if err != nil {
			return nil, err
		}
		return &NumericRange{Field: nj.RangeLong.Field, Lower: lower, Upper: upper}, nil
	default:
		list := NewOccurList()
		for i, c := range *nj.Bool {
			occur, err := ParseOccur(c.Occur)
			if err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			sub, err := Decode(c.Query)
			if err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			list.Append(NewOccurEntry(occur, sub))
		}
		return NewBoolean(list)
	}
}

func decodeBound[T int64 | string](b *boundJSON[T]) (Bound[T], error) {
	if b == nil {
		return Bound[T]{Kind: Unbounded}, nil
	}
	switch strings.ToLower(b.Kind) {
	case "", "unbounded":
		return Bound[T]{Kind: Unbounded}, nil
	case "included", "inclusive":
		return Bound[T]{Kind: Included, Value: b.Value}, nil
	case "excluded", "exclusive":
		return Bound[T]{Kind: Excluded, Value: b.Value}, nil
	default:
		return Bound[T]{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown bound kind %q", b.Kind)
	}
}

// Encode renders q in its wire form.
func Encode(q Node) ([]byte, error) {
	nj, err := toJSON(q)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nj)
}

func toJSON(q Node) (*nodeJSON, error) {
	switch n := q.(type) {
	case *Term:
		return &nodeJSON{Term: &termJSON{Field: n.Field, Text: n.Text}}, nil
	case *LexicalRange:
		return &nodeJSON{Range: &rangeJSON[string]{
			Field: n.Field, Lower: encodeBound(n.Lower), Upper: encodeBound(n.Upper),
		}}, nil
	case *NumericRange:
		return &nodeJSON{RangeLong: &rangeJSON[int64]{
			Field: n.Field, Lower: encodeBound(n.Lower), Upper: encodeBound(n.Upper),
		}}, nil
	case *Boolean:
		clauses := make([]clauseJSON, 0, len(n.Clauses))
		for _, c := range n.Clauses {
			sub, err := Encode(c.Query)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clauseJSON{Occur: c.Occur.String(), Query: sub})
		}
		return &nodeJSON{Bool: &clauses}, nil
	default:
		return nil, fmt.Errorf("encoding query: unsupported node %T", q)
	}
}

func encodeBound[T int64 | string](b Bound[T]) *boundJSON[T] {
	if b.Kind == Unbounded {
		return nil
	}
	return &boundJSON[T]{Kind: b.Kind.String(), Value: b.Value}
}

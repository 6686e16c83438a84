// Package query defines the query AST evaluated by the executor: term
// leaves, numeric and lexicographic range leaves, and boolean combinations
// of sub-queries tagged with an Occur.
//
// Node is a closed union. Only the types in this package implement it, and
// evaluators switch over them exhaustively.
package query

import (
	"fmt"
	"strings"
)

// Node is any query AST node: *Term, *NumericRange, *LexicalRange or
// *Boolean.
type Node interface {
	fmt.Stringer
	node()
}

// Term matches documents whose field contains the exact index term.
type Term struct {
	Field string
	Text  string
}

// NumericRange matches integer field values inside [Lower, Upper] under
// the bounds' inclusivity.
type NumericRange struct {
	Field string
	Lower Bound[int64]
	Upper Bound[int64]
}

// LexicalRange matches text or string field terms whose bytes sort inside
// [Lower, Upper].
type LexicalRange struct {
	Field string
	Lower Bound[string]
	Upper Bound[string]
}

// Boolean combines clauses under MUST / SHOULD / MUST_NOT semantics.
type Boolean struct {
	Clauses []OccurEntry
}

func (*Term) node()         {}
func (*NumericRange) node() {}
func (*LexicalRange) node() {}
func (*Boolean) node()      {}

func (q *Term) String() string {
	return fmt.Sprintf("%s:%q", q.Field, q.Text)
}

func (q *NumericRange) String() string {
	return fmt.Sprintf("%s:%s", q.Field, formatRange(q.Lower, q.Upper))
}

func (q *LexicalRange) String() string {
	return fmt.Sprintf("%s:%s", q.Field, formatRange(q.Lower, q.Upper))
}

func (q *Boolean) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.Occur.prefix() + c.Query.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func formatRange[T int64 | string](lower, upper Bound[T]) string {
	var b strings.Builder
	switch lower.Kind {
	case Included:
		fmt.Fprintf(&b, "[%v", lower.Value)
	case Excluded:
		fmt.Fprintf(&b, "{%v", lower.Value)
	default:
		b.WriteString("{*")
	}
	b.WriteString(" TO ")
	switch upper.Kind {
	case Included:
		fmt.Fprintf(&b, "%v]", upper.Value)
	case Excluded:
		fmt.Fprintf(&b, "%v}", upper.Value)
	default:
		b.WriteString("*}")
	}
	return b.String()
}

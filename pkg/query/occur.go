package query

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
)

// Occur is the role a clause plays inside a Boolean query.
type Occur int

const (
	Must Occur = iota
	Should
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "must"
	case Should:
		return "should"
	case MustNot:
		return "must_not"
	default:
		return fmt.Sprintf("Occur(%d)", int(o))
	}
}

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

func ParseOccur(s string) (Occur, error) {
	switch strings.ToLower(s) {
	case "must":
		return Must, nil
	case "should":
		return Should, nil
	case "must_not", "mustnot", "not":
		return MustNot, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown occur %q", s)
	}
}

// OccurEntry is one (sub-query, occur) clause.
type OccurEntry struct {
	Occur Occur
	Query Node
}

func NewOccurEntry(occur Occur, q Node) OccurEntry {
	return OccurEntry{Occur: occur, Query: q}
}

// OccurList is the ordered clause collection a Boolean query is built from.
type OccurList struct {
	entries []OccurEntry
}

func NewOccurList() *OccurList {
	return &OccurList{}
}

// Append adds entry at the end and returns the list for chaining.
func (l *OccurList) Append(entry OccurEntry) *OccurList {
	l.entries = append(l.entries, entry)
	return l
}

func (l *OccurList) Len() int { return len(l.entries) }

// NewBoolean snapshots the list's current clauses into a Boolean node. Later
// appends to the list do not affect the returned node.
func NewBoolean(list *OccurList) (*Boolean, error) {
	if list == nil {
		return &Boolean{}, nil
	}
	clauses := make([]OccurEntry, len(list.entries))
	copy(clauses, list.entries)
	for i, c := range clauses {
		if c.Query == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "clause %d has no query", i)
		}
		if c.Occur < Must || c.Occur > MustNot {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "clause %d has invalid occur %d", i, int(c.Occur))
		}
	}
	return &Boolean{Clauses: clauses}, nil
}

// All builds a Boolean requiring every query.
func All(queries ...Node) *Boolean {
	b := &Boolean{Clauses: make([]OccurEntry, len(queries))}
	for i, q := range queries {
		b.Clauses[i] = OccurEntry{Occur: Must, Query: q}
	}
	return b
}

// Any builds a Boolean matching documents that satisfy at least one query.
func Any(queries ...Node) *Boolean {
	b := &Boolean{Clauses: make([]OccurEntry, len(queries))}
	for i, q := range queries {
		b.Clauses[i] = OccurEntry{Occur: Should, Query: q}
	}
	return b
}

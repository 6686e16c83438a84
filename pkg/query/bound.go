package query

import "cmp"

type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

func (k BoundKind) String() string {
	switch k {
	case Included:
		return "included"
	case Excluded:
		return "excluded"
	default:
		return "unbounded"
	}
}

// Bound is one edge of a range. Value is ignored when Kind is Unbounded.
type Bound[T cmp.Ordered] struct {
	Kind  BoundKind
	Value T
}

func Include[T cmp.Ordered](v T) Bound[T] { return Bound[T]{Kind: Included, Value: v} }

func Exclude[T cmp.Ordered](v T) Bound[T] { return Bound[T]{Kind: Excluded, Value: v} }

func Open[T cmp.Ordered]() Bound[T] { return Bound[T]{Kind: Unbounded} }

// AboveLower reports whether v satisfies b taken as a lower bound.
func (b Bound[T]) AboveLower(v T) bool {
	switch b.Kind {
	case Included:
		return v >= b.Value
	case Excluded:
		return v > b.Value
	default:
		return true
	}
}

// BelowUpper reports whether v satisfies b taken as an upper bound.
func (b Bound[T]) BelowUpper(v T) bool {
	switch b.Kind {
	case Included:
		return v <= b.Value
	case Excluded:
		return v < b.Value
	default:
		return true
	}
}

// Empty reports whether no value can satisfy both bounds.
func Empty[T cmp.Ordered](lower, upper Bound[T]) bool {
	if lower.Kind == Unbounded || upper.Kind == Unbounded {
		return false
	}
	switch c := cmp.Compare(lower.Value, upper.Value); {
	case c > 0:
		return true
	case c == 0:
		return lower.Kind == Excluded || upper.Kind == Excluded
	default:
		return false
	}
}

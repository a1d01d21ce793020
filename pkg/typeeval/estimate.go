// Package typeeval estimates the runtime types a variable may hold without
// regard to control flow. Estimates form a join-semilattice over type ranges.
package typeeval

import (
	"sort"
	"strings"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// RangeKind says which types a TypeRange matches.
type RangeKind int

const (
	// Exact matches only the identical type.
	Exact RangeKind = iota
	// Subtype matches the type and all of its subtypes.
	Subtype
)

func (k RangeKind) String() string {
	if k == Exact {
		return "exact"
	}
	return "subtype"
}

// TypeRange is a set of classes described by a bound and a kind.
type TypeRange struct {
	Type *program.Class
	Kind RangeKind
}

func (r TypeRange) String() string {
	if r.Kind == Exact {
		return r.Type.Name
	}
	return "? extends " + r.Type.Name
}

// Covers reports whether the concrete type c falls in the range.
func (r TypeRange) Covers(c *program.Class) bool {
	if r.Kind == Exact {
		return r.Type == c
	}
	return c.IsSubtypeOf(r.Type)
}

// Subsumes reports whether every type matched by other is matched by r.
func (r TypeRange) Subsumes(other TypeRange) bool {
	if r.Kind == Exact {
		return other.Kind == Exact && other.Type == r.Type
	}
	return other.Type.IsSubtypeOf(r.Type)
}

// Estimate is a set of type ranges. The zero value is Bottom.
type Estimate struct {
	ranges []TypeRange
}

// Bottom carries no type information.
var Bottom = Estimate{}

// Of builds an estimate from a single range.
func Of(c *program.Class, kind RangeKind) Estimate {
	return Estimate{ranges: []TypeRange{{Type: c, Kind: kind}}}
}

// Ranges returns the ranges of the estimate.
func (e Estimate) Ranges() []TypeRange {
	return e.ranges
}

// IsBottom reports whether the estimate carries no information.
func (e Estimate) IsBottom() bool {
	return len(e.ranges) == 0
}

// Join returns the least upper bound of e and other: the union of both range
// sets with every range subsumed by the other side dropped.
func (e Estimate) Join(other Estimate) Estimate {
	if other.IsBottom() {
		return e
	}
	if e.IsBottom() {
		return other
	}

	var ranges []TypeRange
	for _, r := range e.ranges {
		if !subsumedBy(r, other.ranges) {
			ranges = append(ranges, r)
		}
	}
	for _, r := range other.ranges {
		if !subsumedBy(r, ranges) && !containsRange(e.ranges, r) {
			ranges = append(ranges, r)
		}
	}
	return Estimate{ranges: ranges}
}

// subsumedBy reports whether some range in set strictly covers r. Equal
// ranges do not count so that joining an estimate with itself keeps it.
func subsumedBy(r TypeRange, set []TypeRange) bool {
	for _, s := range set {
		if s != r && s.Subsumes(r) {
			return true
		}
	}
	return false
}

func containsRange(set []TypeRange, r TypeRange) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}

// Covers reports whether any range covers the concrete type c.
func (e Estimate) Covers(c *program.Class) bool {
	for _, r := range e.ranges {
		if r.Covers(c) {
			return true
		}
	}
	return false
}

// Equal compares estimates as sets.
func (e Estimate) Equal(other Estimate) bool {
	if len(e.ranges) != len(other.ranges) {
		return false
	}
	for _, r := range e.ranges {
		if !containsRange(other.ranges, r) {
			return false
		}
	}
	return true
}

func (e Estimate) String() string {
	if e.IsBottom() {
		return "⊥"
	}
	parts := make([]string, len(e.ranges))
	for i, r := range e.ranges {
		parts[i] = r.String()
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

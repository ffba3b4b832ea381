// Package sortlat implements the sort lattice: sorts grouped into
// connected components, subsort testing via bit-sets, and the kind
// (error-sort) at index 0 of each component.
//
// Lifecycle mirrors the teacher's DagBuilder.Build shape (mutate while
// open, freeze into dense indices once closed, see DESIGN.md): a
// Component accepts new sorts and subsort declarations while Open, then
// Close assigns dense indices and computes leq_sorts bit-sets.
package sortlat

import (
	"fmt"

	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/natset"
)

// Sort identifies a sort within its Component once the component is closed.
type Sort struct {
	Name      ident.Atom
	Index     int // dense index within its Component; 0 is the kind.
	Component *Component
	leqSorts  *natset.NatSet // all sorts at or below this one, by index
}

// LeqSorts returns the bit-set of sorts at or below this sort.
func (s *Sort) LeqSorts() *natset.NatSet { return s.leqSorts }

// Component groups mutually comparable sorts and exposes sort-by-index.
// Index 0 is always the kind (error sort) of the component.
type Component struct {
	sorts    []*Sort
	subsorts map[int][]int // child index -> parent indices declared directly
	closed   bool
	fastTest int // small sort-index range threshold for the fast leq path
}

// NewComponent creates an open component. The kind occupies index 0.
func NewComponent(kindName ident.Atom) *Component {
	c := &Component{subsorts: make(map[int][]int)}
	kind := &Sort{Name: kindName, Index: 0, Component: c}
	c.sorts = append(c.sorts, kind)
	return c
}

// DeclareSort adds a new sort to an open component and returns its index.
func (c *Component) DeclareSort(name ident.Atom) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("sortlat: component closed, cannot declare sort")
	}
	idx := len(c.sorts)
	c.sorts = append(c.sorts, &Sort{Name: name, Index: idx, Component: c})
	return idx, nil
}

// DeclareSubsort records that child <= parent (child is a subsort of parent).
func (c *Component) DeclareSubsort(child, parent int) error {
	if c.closed {
		return fmt.Errorf("sortlat: component closed, cannot declare subsort")
	}
	if child < 0 || child >= len(c.sorts) || parent < 0 || parent >= len(c.sorts) {
		return fmt.Errorf("sortlat: subsort index out of range")
	}
	c.subsorts[child] = append(c.subsorts[child], parent)
	return nil
}

// Close computes each sort's leq_sorts bit-set by transitive closure over
// the declared direct subsort edges (plus reflexivity), then freezes the
// component.
func (c *Component) Close() {
	if c.closed {
		return
	}
	n := len(c.sorts)
	for i := 0; i < n; i++ {
		c.sorts[i].leqSorts = natset.New(n)
		c.sorts[i].leqSorts.Set(i) // reflexive: a sort is <= itself
	}

	// Transitive closure: repeat until no new (child, ancestor) pair is
	// added, mirroring the teacher's maxIterations-bounded fixed-point
	// passes (dag/optimizer.go) generalized to an unbounded closure over a
	// DAG of subsort edges (guaranteed acyclic by construction).
	changed := true
	for changed {
		changed = false
		for child, parents := range c.subsorts {
			for _, parent := range parents {
				before := c.sorts[parent].leqSorts.Cardinality()
				c.sorts[parent].leqSorts.Union(c.sorts[child].leqSorts)
				if c.sorts[parent].leqSorts.Cardinality() != before {
					changed = true
				}
			}
		}
	}

	c.fastTest = n
	c.closed = true
}

// Kind returns the component's error sort (index 0).
func (c *Component) Kind() *Sort { return c.sorts[0] }

// SortByIndex returns the sort at the given dense index.
func (c *Component) SortByIndex(i int) *Sort { return c.sorts[i] }

// Len returns the number of sorts in the component.
func (c *Component) Len() int { return len(c.sorts) }

// Leq decides a <= b. Below fastTest (every sort index fits the component's
// own sort count, which it always does) this degenerates to a direct
// bit-set probe; fastTest exists so callers can special-case very small
// components without probing the bit-set at all.
func Leq(a, b *Sort) bool {
	if a.Component != b.Component {
		return false
	}
	if a.Index < b.Component.fastTest && a.Index == b.Index {
		return true
	}
	return b.leqSorts.Test(a.Index)
}

// IsKind reports whether s is its component's error sort.
func (s *Sort) IsKind() bool { return s.Index == 0 }

// Package subst implements the substitution machine: a dense, reusable
// variable-index-to-DAG-node mapping, plus the LocalBindings value type
// used by assert/retract/subtract (spec.md §4.5, supplemented from
// original_source/src/local_bindings.rs per SPEC_FULL.md §9).
//
// Grounded on the teacher's matcher/context.go EventContext: a cached,
// lazily-filled lookup generalized here from "field path -> cached value"
// to "variable index -> bound node", with the same reuse-in-place
// discipline instead of allocating a fresh map per match attempt.
package subst

import "github.com/dagterm/rewrite/internal/dagnode"

// Substitution is a dense, reusable variable-index -> DagNode mapping.
// Capacity never shrinks during a module's lifetime (spec.md §4.5
// invariant): a match attempt clears only the first N slots it needs via
// ClearFirstN rather than reallocating.
type Substitution struct {
	bindings []*dagnode.DagNode
}

// New creates a Substitution with the given fixed capacity (the module's
// announced minimum substitution size).
func New(capacity int) *Substitution {
	return &Substitution{bindings: make([]*dagnode.DagNode, capacity)}
}

// Bind writes a binding at index i, growing capacity if necessary (a
// module's announced minimum can be exceeded by an individual pre-equation
// with more local variables; growth only ever happens during compilation,
// never mid-match).
func (s *Substitution) Bind(i int, node *dagnode.DagNode) {
	if i >= len(s.bindings) {
		grown := make([]*dagnode.DagNode, i+1)
		copy(grown, s.bindings)
		s.bindings = grown
	}
	s.bindings[i] = node
}

// Value reads the binding at index i, or nil if unbound.
func (s *Substitution) Value(i int) *dagnode.DagNode {
	if i < 0 || i >= len(s.bindings) {
		return nil
	}
	return s.bindings[i]
}

// IsBound reports whether index i currently holds a binding.
func (s *Substitution) IsBound(i int) bool { return s.Value(i) != nil }

// ClearFirstN resets the first n slots to unbound — the cheap reset used
// before each equation's match attempt, sized to the equation's
// protected-variable count (spec.md §4.9).
func (s *Substitution) ClearFirstN(n int) {
	if n > len(s.bindings) {
		n = len(s.bindings)
	}
	for i := 0; i < n; i++ {
		s.bindings[i] = nil
	}
}

// Capacity returns the number of addressable variable-index slots.
func (s *Substitution) Capacity() int { return len(s.bindings) }

// Clone returns an independent copy with the same bindings — used to
// snapshot a substitution before a rewindable condition fragment.
func (s *Substitution) Clone() *Substitution {
	cp := &Substitution{bindings: make([]*dagnode.DagNode, len(s.bindings))}
	copy(cp.bindings, s.bindings)
	return cp
}

// RestoreFrom overwrites this substitution's bindings with snapshot's,
// used to backtrack a rewindable condition fragment.
func (s *Substitution) RestoreFrom(snapshot *Substitution) {
	if len(snapshot.bindings) > len(s.bindings) {
		s.bindings = make([]*dagnode.DagNode, len(snapshot.bindings))
	}
	for i := range s.bindings {
		if i < len(snapshot.bindings) {
			s.bindings[i] = snapshot.bindings[i]
		} else {
			s.bindings[i] = nil
		}
	}
}

// LocalBinding is one variable-index/node pair, as recorded in the
// original's local_bindings.rs.
type LocalBinding struct {
	Index int
	Node  *dagnode.DagNode
}

// LocalBindings is an ordered list of LocalBinding, the unit Assert pushes
// into a Substitution and Retract removes.
type LocalBindings []LocalBinding

// Subtract returns the bindings present in s but not in other, as an
// ordered LocalBindings list (spec.md §4.5).
func (s *Substitution) Subtract(other *Substitution) LocalBindings {
	var out LocalBindings
	for i, node := range s.bindings {
		if node == nil {
			continue
		}
		if i >= len(other.bindings) || other.bindings[i] != node {
			out = append(out, LocalBinding{Index: i, Node: node})
		}
	}
	return out
}

// Assert pushes every binding in lb into s.
func (s *Substitution) Assert(lb LocalBindings) {
	for _, b := range lb {
		s.Bind(b.Index, b.Node)
	}
}

// Retract removes every binding in lb from s (setting those indices back
// to unbound), used when a match fails and the caller backs out.
func (s *Substitution) Retract(lb LocalBindings) {
	for _, b := range lb {
		if b.Index < len(s.bindings) {
			s.bindings[b.Index] = nil
		}
	}
}

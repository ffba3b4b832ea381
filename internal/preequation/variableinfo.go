package preequation

import (
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/natset"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// VariableInfo is the "index_variables" step of spec.md §4.3: it assigns a
// dense VarIndex to every distinct variable name occurring anywhere in a
// pre-equation (LHS first, then RHS, then condition), and classifies each
// index as LHS-bound or not. A variable with no LHS occurrence is unbound:
// legitimate on a rule's LHS (external meta-apply can supply it) but an
// error on a membership axiom, matching spec.md §7's Bad-pre-equation
// disposition.
type VariableInfo struct {
	index map[ident.Atom]int
	names []ident.Atom

	// boundOnLHS records, by index, whether the variable had at least one
	// occurrence in the LHS term before RHS/condition scanning began.
	boundOnLHS *natset.NatSet

	// unbound collects indices first seen outside the LHS: present in the
	// RHS or condition with no LHS occurrence.
	unbound *natset.NatSet

	// conditionOnly collects indices whose only occurrences (so far) are
	// inside condition fragments, neither LHS nor RHS.
	conditionOnly *natset.NatSet
}

// NewVariableInfo returns an empty VariableInfo ready to index one
// pre-equation's variables.
func NewVariableInfo() *VariableInfo {
	return &VariableInfo{
		index:         make(map[ident.Atom]int),
		boundOnLHS:    natset.New(0),
		unbound:       natset.New(0),
		conditionOnly: natset.New(0),
	}
}

// Count returns the number of distinct variables indexed so far — the
// required minimum substitution capacity for this pre-equation.
func (vi *VariableInfo) Count() int { return len(vi.names) }

// Unbound returns the bit-set of variable indices with no LHS occurrence.
func (vi *VariableInfo) Unbound() *natset.NatSet { return vi.unbound }

// NameOf returns the interned name originally assigned to index i.
func (vi *VariableInfo) NameOf(i int) ident.Atom { return vi.names[i] }

func (vi *VariableInfo) indexOf(name ident.Atom) (idx int, firstSeen bool) {
	if idx, ok := vi.index[name]; ok {
		return idx, false
	}
	idx = len(vi.names)
	vi.index[name] = idx
	vi.names = append(vi.names, name)
	return idx, true
}

// IndexLHS walks an LHS pattern, assigning VarIndex to every variable
// occurrence (first occurrence allocates a fresh index; repeats reuse it)
// and marking each as LHS-bound. Must run before Normalize, since
// Term.Normalize computes occursBelow from VarIndex.
func (vi *VariableInfo) IndexLHS(t *term.Term) {
	switch t.Theory {
	case symbol.TheoryVariable:
		idx, _ := vi.indexOf(t.VarName)
		t.VarIndex = idx
		vi.boundOnLHS.Set(idx)
	case symbol.TheoryFree:
		for _, c := range t.Children {
			vi.IndexLHS(c)
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		for _, c := range t.ACU {
			vi.IndexLHS(c.Term)
		}
	}
}

// IndexRHS walks an RHS term the same way as IndexLHS, but any
// first-seen variable here (not present on the LHS) is recorded as
// unbound rather than LHS-bound — spec.md §7's Bad-pre-equation case.
func (vi *VariableInfo) IndexRHS(t *term.Term) {
	vi.indexNonLHS(t, vi.unbound)
}

// IndexCondition walks a condition-fragment term the same way; a
// first-seen variable here that never appears in the LHS is both
// unbound and condition-only.
func (vi *VariableInfo) IndexCondition(t *term.Term) {
	vi.indexNonLHS(t, vi.conditionOnly)
}

func (vi *VariableInfo) indexNonLHS(t *term.Term, firstSeenSet *natset.NatSet) {
	switch t.Theory {
	case symbol.TheoryVariable:
		idx, firstSeen := vi.indexOf(t.VarName)
		t.VarIndex = idx
		if firstSeen && !vi.boundOnLHS.Test(idx) {
			vi.unbound.Set(idx)
			firstSeenSet.Set(idx)
		}
	case symbol.TheoryFree:
		for _, c := range t.Children {
			vi.indexNonLHS(c, firstSeenSet)
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		for _, c := range t.ACU {
			vi.indexNonLHS(c.Term, firstSeenSet)
		}
	}
}

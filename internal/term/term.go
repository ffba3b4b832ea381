// Package term implements the pattern/source term model: a single tagged
// struct per spec.md §9's "deep virtual hierarchy" rearchitecture note,
// generalizing the teacher's NodeType{Type string, optional pointer
// fields...} pattern (dag/types.go) from a detection-DAG node kind to a
// term's structural theory (free / AC / ACU / variable).
package term

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/natset"
	"github.com/dagterm/rewrite/internal/symbol"
)

// Flags are per-term compiled properties (spec.md §3: "a flag set —
// stable, eager-context, honors-ground-out-match").
type Flags uint8

const (
	FlagStable Flags = 1 << iota
	FlagEagerContext
	FlagHonorsGroundOutMatch
)

// variableHashTag separates a variable's hash space from symbol hashes,
// which are themselves interned-name hashes and could otherwise collide
// with a variable name sharing the same source string.
const variableHashTag uint64 = 0x7661725f686173

// ACUChild is one (term, multiplicity) pair of an AC/ACU term's multiset.
type ACUChild struct {
	Term         *Term
	Multiplicity int
}

// Term is the pattern/source form of spec.md §3. Exactly one of the
// (Children, ACUChildren, variable fields) group is populated, selected by
// Theory.
type Term struct {
	Theory   symbol.Theory
	Sym      *symbol.Symbol // nil iff Theory == TheoryVariable
	Children []*Term        // populated iff Theory == TheoryFree
	ACU      []ACUChild     // populated iff Theory == TheoryAC/TheoryACU

	VarName      ident.Atom // populated iff Theory == TheoryVariable
	VarIndex     int        // dense index assigned by index_variables; -1 until then
	DeclaredSort int        // variable's declared sort index; unused otherwise

	Flags Flags

	hash        uint64
	hashValid   bool
	occursBelow *natset.NatSet // variable indices occurring in this subterm
	saveIndex   int            // construction index assigned during compile_rhs; -1 if unassigned
}

// NewFree builds a free-theory term.
func NewFree(sym *symbol.Symbol, children []*Term) *Term {
	return &Term{Theory: symbol.TheoryFree, Sym: sym, Children: children, saveIndex: -1}
}

// NewACU builds an AC or ACU term from an already-grouped multiset. Callers
// that have raw duplicate children should call Normalize afterward to merge
// them and recompute multiplicities.
func NewACU(theory symbol.Theory, sym *symbol.Symbol, children []ACUChild) *Term {
	return &Term{Theory: theory, Sym: sym, ACU: children, saveIndex: -1}
}

// NewVariable builds a variable term with an interned name and declared sort.
func NewVariable(name ident.Atom, declaredSort int) *Term {
	return &Term{Theory: symbol.TheoryVariable, VarName: name, VarIndex: -1, DeclaredSort: declaredSort, saveIndex: -1}
}

// IsVariable reports whether this term is a variable occurrence.
func (t *Term) IsVariable() bool { return t.Theory == symbol.TheoryVariable }

// IsGround reports whether no variable occurs anywhere below this term.
// Valid only after Normalize has computed OccursBelow.
func (t *Term) IsGround() bool {
	return t.occursBelow == nil || t.occursBelow.IsEmpty()
}

// OccursBelow returns the bit-set of variable indices occurring in this
// subterm. Valid only after Normalize and index_variables have run.
func (t *Term) OccursBelow() *natset.NatSet { return t.occursBelow }

// SaveIndex returns the construction index assigned during compile_rhs, or
// -1 if none has been assigned yet.
func (t *Term) SaveIndex() int { return t.saveIndex }

// SetSaveIndex records the construction index chosen for this term by the
// RHS term-bag allocator.
func (t *Term) SetSaveIndex(i int) { t.saveIndex = i }

// Hash returns the term's semantic hash (spec.md §3/§8 hash stability):
// a pure function of the top symbol and the hashes of its children (for
// AC/ACU, of the multiset of children). Stable after Normalize.
func (t *Term) Hash() uint64 {
	if t.hashValid {
		return t.hash
	}
	var h uint64
	switch t.Theory {
	case symbol.TheoryVariable:
		h = ident.Mix(variableHashTag, uint64(t.VarName))
	case symbol.TheoryFree:
		h = t.Sym.Hash()
		for _, c := range t.Children {
			h = ident.Mix(h, c.Hash())
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		h = t.Sym.Hash()
		for _, c := range t.ACU {
			childContribution := ident.Mix(c.Term.Hash(), uint64(c.Multiplicity))
			h = ident.MixUnordered(h, childContribution)
		}
	}
	t.hash = h
	t.hashValid = true
	return h
}

// invalidate clears the cached hash, forcing recomputation on next Hash().
func (t *Term) invalidate() {
	t.hashValid = false
}

// Normalize recursively normalizes children, then — for AC/ACU terms —
// flattens nested same-top-symbol occurrences, merges equal children
// accumulating multiplicity, and sorts children by hash (spec.md §4.3,
// §8 "order independence of AC/ACU"). It also recomputes occursBelow.
// Normalize returns t for chaining; it mutates in place.
func (t *Term) Normalize() *Term {
	switch t.Theory {
	case symbol.TheoryVariable:
		t.occursBelow = natset.New(t.VarIndex + 1)
		if t.VarIndex >= 0 {
			t.occursBelow.Set(t.VarIndex)
		}

	case symbol.TheoryFree:
		below := natset.New(0)
		for _, c := range t.Children {
			c.Normalize()
			if c.occursBelow != nil {
				below.Union(c.occursBelow)
			}
		}
		t.occursBelow = below

	case symbol.TheoryAC, symbol.TheoryACU:
		flat := make([]ACUChild, 0, len(t.ACU))
		for _, c := range t.ACU {
			c.Term.Normalize()
			if c.Term.Theory == t.Theory && c.Term.Sym == t.Sym {
				// Flatten: a nested occurrence of the same AC/ACU symbol
				// contributes its own children, multiplicities scaled by
				// this occurrence's multiplicity.
				for _, nested := range c.Term.ACU {
					flat = append(flat, ACUChild{Term: nested.Term, Multiplicity: nested.Multiplicity * c.Multiplicity})
				}
			} else {
				flat = append(flat, c)
			}
		}

		merged := mergeByHash(flat)
		sort.Slice(merged, func(i, j int) bool { return merged[i].Term.Hash() < merged[j].Term.Hash() })
		t.ACU = merged

		below := natset.New(0)
		for _, c := range t.ACU {
			if c.Term.occursBelow != nil {
				below.Union(c.Term.occursBelow)
			}
		}
		t.occursBelow = below
	}
	t.invalidate()
	t.Hash()
	return t
}

// mergeByHash combines ACUChild entries whose terms share a hash and are
// structurally equal, summing their multiplicities.
func mergeByHash(children []ACUChild) []ACUChild {
	byHash := make(map[uint64][]ACUChild)
	order := make([]uint64, 0, len(children))
	for _, c := range children {
		h := c.Term.Hash()
		if _, seen := byHash[h]; !seen {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], c)
	}
	out := make([]ACUChild, 0, len(children))
	for _, h := range order {
		group := byHash[h]
		merged := group[0]
		for _, extra := range group[1:] {
			if Equal(merged.Term, extra.Term) {
				merged.Multiplicity += extra.Multiplicity
			} else {
				// Genuine hash collision between distinct terms: keep both.
				out = append(out, extra)
			}
		}
		out = append(out, merged)
	}
	return out
}

// Equal reports structural equality up to theory-specific reordering: two
// normalized terms are Equal iff their hashes match and their shapes match
// recursively (AC/ACU children already canonically ordered by Normalize).
func Equal(a, b *Term) bool {
	if a == b {
		return true
	}
	if a.Hash() != b.Hash() || a.Theory != b.Theory {
		return false
	}
	switch a.Theory {
	case symbol.TheoryVariable:
		return a.VarName == b.VarName
	case symbol.TheoryFree:
		if a.Sym != b.Sym || len(a.Children) != len(b.Children) {
			return false
		}
		for i := range a.Children {
			if !Equal(a.Children[i], b.Children[i]) {
				return false
			}
		}
		return true
	case symbol.TheoryAC, symbol.TheoryACU:
		if a.Sym != b.Sym || len(a.ACU) != len(b.ACU) {
			return false
		}
		for i := range a.ACU {
			if a.ACU[i].Multiplicity != b.ACU[i].Multiplicity || !Equal(a.ACU[i].Term, b.ACU[i].Term) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a debug form, used by tests and the graph-dump format's
// pattern-side diagnostics.
func (t *Term) String() string {
	switch t.Theory {
	case symbol.TheoryVariable:
		return fmt.Sprintf("#%d", t.VarName)
	case symbol.TheoryFree:
		parts := make([]string, len(t.Children))
		for i, c := range t.Children {
			parts[i] = c.String()
		}
		if len(parts) == 0 {
			return fmt.Sprintf("sym%d", t.Sym.ID)
		}
		return fmt.Sprintf("sym%d(%s)", t.Sym.ID, strings.Join(parts, ", "))
	case symbol.TheoryAC, symbol.TheoryACU:
		parts := make([]string, len(t.ACU))
		for i, c := range t.ACU {
			parts[i] = fmt.Sprintf("%s*%d", c.Term.String(), c.Multiplicity)
		}
		return fmt.Sprintf("sym%d{%s}", t.Sym.ID, strings.Join(parts, ", "))
	}
	return "?"
}

// ComputeSize estimates construction cost for compile_rhs's "descending
// compute_size" ordering (spec.md §4.6): the number of non-shared nodes
// this subterm would add if built fresh.
func (t *Term) ComputeSize() int {
	switch t.Theory {
	case symbol.TheoryVariable:
		return 0
	case symbol.TheoryFree:
		size := 1
		for _, c := range t.Children {
			size += c.ComputeSize()
		}
		return size
	case symbol.TheoryAC, symbol.TheoryACU:
		size := 1
		for _, c := range t.ACU {
			size += c.Term.ComputeSize() * c.Multiplicity
		}
		return size
	}
	return 0
}

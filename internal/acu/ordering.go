package acu

import (
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// OrderingValue is the three-vs-four-way comparator result the original's
// src/ordering_value.rs carries through binary_search_by_term, so that an
// "unknown" comparison (one side only partially determined) is
// distinguishable from a proven Equal/Less/Greater (SPEC_FULL.md §9,
// list of supplemented features).
type OrderingValue int

const (
	Less OrderingValue = iota
	Equal
	Greater
	Unknown
)

// compareNodes gives the total order subject children are kept in
// (spec.md §5: "subject children are always ordered by top-symbol hash;
// ties are broken by recursive argument comparison"). Both sides here are
// fully-built dag nodes, so the comparison is always decided, never
// Unknown — Unknown is reserved for comparisons against a pattern side
// that is not yet fully grounded (see groundHash below).
func compareNodes(a, b *dagnode.DagNode) OrderingValue {
	if a == b {
		return Equal
	}
	ah, bh := a.Hash(), b.Hash()
	if ah < bh {
		return Less
	}
	if ah > bh {
		return Greater
	}
	if dagnode.EqualShape(a, b) {
		return Equal
	}
	// Genuine hash collision between distinct nodes: broken by comparing
	// symbol identity, then recursively by child order, to keep the
	// subject vector's ordering a strict total order even in this rare
	// case.
	if a.Sym != nil && b.Sym != nil && a.Sym.Hash() != b.Sym.Hash() {
		if a.Sym.Hash() < b.Sym.Hash() {
			return Less
		}
		return Greater
	}
	return compareChildren(a, b)
}

func compareChildren(a, b *dagnode.DagNode) OrderingValue {
	switch {
	case len(a.Children) > 0 || len(b.Children) > 0:
		n := len(a.Children)
		if len(b.Children) < n {
			n = len(b.Children)
		}
		for i := 0; i < n; i++ {
			if ord := compareNodes(a.Children[i], b.Children[i]); ord != Equal {
				return ord
			}
		}
		return compareInt(len(a.Children), len(b.Children))
	case len(a.ACU) > 0 || len(b.ACU) > 0:
		n := len(a.ACU)
		if len(b.ACU) < n {
			n = len(b.ACU)
		}
		for i := 0; i < n; i++ {
			if ord := compareNodes(a.ACU[i].Node, b.ACU[i].Node); ord != Equal {
				return ord
			}
			if ord := compareInt(a.ACU[i].Multiplicity, b.ACU[i].Multiplicity); ord != Equal {
				return ord
			}
		}
		return compareInt(len(a.ACU), len(b.ACU))
	default:
		return compareInt(int(a.VarName), int(b.VarName))
	}
}

func compareInt(a, b int) OrderingValue {
	if a < b {
		return Less
	}
	if a > b {
		return Greater
	}
	return Equal
}

// binarySearchByTerm locates key within children (kept sorted ascending by
// Hash() per spec.md §4.3's ACU Normalize contract), returning the index
// of an equal child and Equal, or the insertion point and the ordering
// relative to that insertion point (spec.md §4.7).
func binarySearchByTerm(children []dagnode.ACUChild, key *dagnode.DagNode) (int, OrderingValue) {
	lo, hi := 0, len(children)
	kh := key.Hash()
	for lo < hi {
		mid := (lo + hi) / 2
		mh := children[mid].Node.Hash()
		switch {
		case kh < mh:
			hi = mid
		case kh > mh:
			lo = mid + 1
		default:
			// Hash tie: scan the equal-hash run for a structural match.
			for i := mid; i >= 0 && children[i].Node.Hash() == kh; i-- {
				if dagnode.EqualShape(children[i].Node, key) {
					return i, Equal
				}
			}
			for i := mid + 1; i < len(children) && children[i].Node.Hash() == kh; i++ {
				if dagnode.EqualShape(children[i].Node, key) {
					return i, Equal
				}
			}
			return mid, Unknown
		}
	}
	if lo >= len(children) {
		return lo, Greater
	}
	return lo, Less
}

// groundHash computes the hash a pattern subterm would have if every
// variable occurring in it is replaced by its currently-bound subject
// node, returning ok=false if some variable is still unbound (the alien
// has not grounded out yet and no hash can be computed).
func groundHash(t *term.Term, boundHash func(varIndex int) (uint64, bool)) (uint64, bool) {
	switch t.Theory {
	case symbol.TheoryVariable:
		return boundHash(t.VarIndex)
	case symbol.TheoryFree:
		h := t.Sym.Hash()
		for _, c := range t.Children {
			ch, ok := groundHash(c, boundHash)
			if !ok {
				return 0, false
			}
			h = ident.Mix(h, ch)
		}
		return h, true
	default: // AC/ACU
		h := t.Sym.Hash()
		for _, c := range t.ACU {
			ch, ok := groundHash(c.Term, boundHash)
			if !ok {
				return 0, false
			}
			h = ident.MixUnordered(h, ident.Mix(ch, uint64(c.Multiplicity)))
		}
		return h, true
	}
}

// findFirstPotentialMatch returns the smallest index in children whose
// subdag could equal a grounded-out pattern alien with the given hash:
// the leftmost position at or after which an equal hash could appear
// (spec.md §4.7), used to seed the forward scan of step 4.
func findFirstPotentialMatch(children []dagnode.ACUChild, targetHash uint64) int {
	lo, hi := 0, len(children)
	for lo < hi {
		mid := (lo + hi) / 2
		if children[mid].Node.Hash() < targetHash {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

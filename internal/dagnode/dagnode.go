// Package dagnode implements the runtime DAG data model: structural
// sharing via a hash-cons set keyed on semantic hash, the mutable flag
// bitfield that freezes after canonicalization, and the copy family used
// to implement in-place equation rewriting (spec.md §4.4).
package dagnode

import (
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// Flags are the mutable per-node bits of spec.md §3: "reduced (equation-
// normalized), copied (for copy-chains during rewrite), unrewritable,
// unstackable, ground, hash-valid". A node marked Reduced and Ground is
// never rewritten further (spec.md §3 invariant).
type Flags uint16

const (
	FlagReduced Flags = 1 << iota
	FlagCopied
	FlagUnrewritable
	FlagUnstackable
	FlagGround
	FlagHashValid
	FlagCanonical
)

// ACUChild is one (node, multiplicity) pair of an AC/ACU dag node's multiset.
type ACUChild struct {
	Node         *DagNode
	Multiplicity int
}

// DagNode is the runtime form of a Term (spec.md §3).
type DagNode struct {
	Sym       *symbol.Symbol
	Theory    symbol.Theory
	Children  []*DagNode // populated iff Theory == TheoryFree
	ACU       []ACUChild // populated iff Theory == TheoryAC/TheoryACU
	VarName   ident.Atom // populated iff Theory == TheoryVariable
	SortIndex int

	Flags Flags
	hash  uint64

	// forward is set on a node marked FlagCopied: copy_eager_upto_reduced
	// clones a shared node at most once per copy pass by consulting this
	// pointer before cloning again.
	forward *DagNode
}

func (n *DagNode) has(f Flags) bool  { return n.Flags&f != 0 }
func (n *DagNode) set(f Flags)       { n.Flags |= f }
func (n *DagNode) clear(f Flags)     { n.Flags &^= f }

// IsReduced reports whether the node is equation-normalized.
func (n *DagNode) IsReduced() bool { return n.has(FlagReduced) }

// IsGround reports whether no variable occurs below this node.
func (n *DagNode) IsGround() bool { return n.has(FlagGround) }

// MarkReduced sets the reduced flag; a node that is also Ground is never
// rewritten again (spec.md §3 invariant), enforced by callers checking
// IsReduced()&&IsGround() before attempting apply_replace.
func (n *DagNode) MarkReduced() { n.set(FlagReduced) }

// Hash returns the node's semantic hash, the identity used by the
// hash-cons set for structural sharing.
func (n *DagNode) Hash() uint64 {
	if n.has(FlagHashValid) {
		return n.hash
	}
	var h uint64
	switch n.Theory {
	case symbol.TheoryVariable:
		h = ident.Mix(0x7661725f686173, uint64(n.VarName))
	case symbol.TheoryFree:
		h = n.Sym.Hash()
		for _, c := range n.Children {
			h = ident.Mix(h, c.Hash())
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		h = n.Sym.Hash()
		for _, c := range n.ACU {
			h = ident.MixUnordered(h, ident.Mix(c.Node.Hash(), uint64(c.Multiplicity)))
		}
	}
	n.hash = h
	n.set(FlagHashValid)
	return h
}

func (n *DagNode) invalidateHash() { n.clear(FlagHashValid) }

// EqualShape reports structural equality of two dag nodes (same top
// symbol/variable and equal children), used by the hash-cons set to
// disambiguate hash collisions.
func EqualShape(a, b *DagNode) bool {
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
			if !EqualShape(a.Children[i], b.Children[i]) {
				return false
			}
		}
		return true
	case symbol.TheoryAC, symbol.TheoryACU:
		if a.Sym != b.Sym || len(a.ACU) != len(b.ACU) {
			return false
		}
		for i := range a.ACU {
			if a.ACU[i].Multiplicity != b.ACU[i].Multiplicity || !EqualShape(a.ACU[i].Node, b.ACU[i].Node) {
				return false
			}
		}
		return true
	}
	return false
}

// HashConsSet canonicalizes dag nodes by semantic hash so that equal terms
// produce the same node reference (spec.md §8 "dagify sharing").
type HashConsSet struct {
	buckets map[uint64][]*DagNode
	order   []*DagNode // insertion order, for graph-dump numbering
}

// NewHashConsSet creates an empty set.
func NewHashConsSet() *HashConsSet {
	return &HashConsSet{buckets: make(map[uint64][]*DagNode)}
}

// Canonicalize returns the canonical node equal to candidate, inserting
// candidate itself as canonical if no equal node exists yet. The returned
// bool is true if candidate became the new canonical representative.
func (s *HashConsSet) Canonicalize(candidate *DagNode) (*DagNode, bool) {
	h := candidate.Hash()
	for _, existing := range s.buckets[h] {
		if EqualShape(existing, candidate) {
			return existing, false
		}
	}
	candidate.set(FlagCanonical)
	s.buckets[h] = append(s.buckets[h], candidate)
	s.order = append(s.order, candidate)
	return candidate, true
}

// InsertionIndex returns the position at which node was canonicalized, or
// -1 if node is not a member of this set (used by the graph-dump format's
// `#i = symbol(...)` numbering).
func (s *HashConsSet) InsertionIndex(node *DagNode) int {
	for i, n := range s.order {
		if n == node {
			return i
		}
	}
	return -1
}

// Nodes returns every canonical node in insertion order.
func (s *HashConsSet) Nodes() []*DagNode { return s.order }

// Dagify converts a Term into a DagNode, consulting cache so equal terms
// produce the same node (spec.md §4.4). If setSortInfo is non-nil it is
// called to assign each new node's sort index immediately, and the node is
// marked Reduced.
func Dagify(t *term.Term, cache *HashConsSet, setSortInfo func(*DagNode) int) *DagNode {
	var node *DagNode
	switch t.Theory {
	case symbol.TheoryVariable:
		node = &DagNode{Theory: symbol.TheoryVariable, VarName: t.VarName, SortIndex: t.DeclaredSort}
	case symbol.TheoryFree:
		children := make([]*DagNode, len(t.Children))
		for i, c := range t.Children {
			children[i] = Dagify(c, cache, setSortInfo)
		}
		node = &DagNode{Theory: symbol.TheoryFree, Sym: t.Sym, Children: children}
	case symbol.TheoryAC, symbol.TheoryACU:
		acu := make([]ACUChild, len(t.ACU))
		for i, c := range t.ACU {
			acu[i] = ACUChild{Node: Dagify(c.Term, cache, setSortInfo), Multiplicity: c.Multiplicity}
		}
		node = &DagNode{Theory: t.Theory, Sym: t.Sym, ACU: acu}
	}

	if t.IsGround() {
		node.set(FlagGround)
	}

	canonical, inserted := cache.Canonicalize(node)
	if inserted && setSortInfo != nil {
		canonical.SortIndex = setSortInfo(canonical)
		canonical.MarkReduced()
	}
	return canonical
}

// CopyAll clones a node and every descendant unconditionally, breaking all
// structural sharing with the original — used when rule rewriting must not
// alias the subject (spec.md §4.4).
func CopyAll(node *DagNode) *DagNode {
	clone := &DagNode{Theory: node.Theory, Sym: node.Sym, VarName: node.VarName, SortIndex: node.SortIndex}
	switch node.Theory {
	case symbol.TheoryFree:
		clone.Children = make([]*DagNode, len(node.Children))
		for i, c := range node.Children {
			clone.Children[i] = CopyAll(c)
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		clone.ACU = make([]ACUChild, len(node.ACU))
		for i, c := range node.ACU {
			clone.ACU[i] = ACUChild{Node: CopyAll(c.Node), Multiplicity: c.Multiplicity}
		}
	}
	return clone
}

// CopyEagerUpToReduced clones node and its eager-context children down to
// the first reduced subterm on each path, which is shared rather than
// cloned. A node already copied in this pass is cloned only once: repeat
// visits follow the forwarding pointer left on the original.
func CopyEagerUpToReduced(node *DagNode) *DagNode {
	if node.IsReduced() {
		return node
	}
	if node.has(FlagCopied) && node.forward != nil {
		return node.forward
	}

	clone := &DagNode{Theory: node.Theory, Sym: node.Sym, VarName: node.VarName, SortIndex: node.SortIndex}
	switch node.Theory {
	case symbol.TheoryFree:
		clone.Children = make([]*DagNode, len(node.Children))
		for i, c := range node.Children {
			if node.Sym != nil && i < len(node.Sym.Strategy) && node.Sym.EagerArgument(i) {
				clone.Children[i] = CopyEagerUpToReduced(c)
			} else {
				clone.Children[i] = c
			}
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		clone.ACU = make([]ACUChild, len(node.ACU))
		for i, c := range node.ACU {
			clone.ACU[i] = ACUChild{Node: CopyEagerUpToReduced(c.Node), Multiplicity: c.Multiplicity}
		}
	}

	node.set(FlagCopied)
	node.forward = clone
	return clone
}

// Replacement is one positional substitution applied by CopyWithReplacements.
type Replacement struct {
	Position int
	Node     *DagNode
}

// CopyWithReplacements clones node one level deep, replacing the children
// at the given positions with the supplied replacement nodes and sharing
// every other child unchanged (spec.md §4.4, used by rebuild_upto_root).
func CopyWithReplacements(node *DagNode, replacements []Replacement) *DagNode {
	byPos := make(map[int]*DagNode, len(replacements))
	for _, r := range replacements {
		byPos[r.Position] = r.Node
	}

	clone := &DagNode{Theory: node.Theory, Sym: node.Sym, VarName: node.VarName, SortIndex: node.SortIndex}
	switch node.Theory {
	case symbol.TheoryFree:
		clone.Children = make([]*DagNode, len(node.Children))
		for i, c := range node.Children {
			if r, ok := byPos[i]; ok {
				clone.Children[i] = r
			} else {
				clone.Children[i] = c
			}
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		clone.ACU = make([]ACUChild, len(node.ACU))
		for i, c := range node.ACU {
			if r, ok := byPos[i]; ok {
				clone.ACU[i] = ACUChild{Node: r, Multiplicity: c.Multiplicity}
			} else {
				clone.ACU[i] = c
			}
		}
	}
	return clone
}

// OverwriteWithClone performs the in-place replacement that makes equation
// rewriting O(1) from the parent's perspective: old's fields are
// overwritten with replacement's, so every existing pointer to old now
// observes the rewritten term without the parent needing to be touched.
func OverwriteWithClone(old, replacement *DagNode) {
	old.Sym = replacement.Sym
	old.Theory = replacement.Theory
	old.Children = replacement.Children
	old.ACU = replacement.ACU
	old.VarName = replacement.VarName
	old.SortIndex = replacement.SortIndex
	old.invalidateHash()
	old.clear(FlagGround | FlagReduced)
	if replacement.has(FlagGround) {
		old.set(FlagGround)
	}
}

// Package freetheory compiles free-theory LHS patterns into matching
// automata and RHS patterns into construction automata, and implements the
// discrimination net that dispatches among patterns sharing a symbol
// (spec.md §4.6).
//
// Grounded on the teacher's compiler/dag_codegen.go generateDagRecursive
// (type-switch walk building a node graph with explicit dependency wiring)
// for the automaton-construction shape, and dag/optimizer.go's
// optimizeExecutionOrder wave-based "repeatedly pick ready/qualifying work"
// loop for the discrimination net's ternary dispatch.
package freetheory

import (
	"sort"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// Classification is the leaf kind assigned during the free-skeleton scan
// (spec.md §4.6).
type Classification int

const (
	FreeOccurrence Classification = iota
	UncertainVariable
	BoundVariable
	GroundAlien
	NonGroundAlien
)

// Leaf is one classified position in a compiled pattern's free skeleton.
type Leaf struct {
	Kind    Classification
	Pattern *term.Term
}

// LhsAutomaton is the compiled matcher for a free-theory LHS.
type LhsAutomaton struct {
	pattern *term.Term
	leaves  []Leaf
	// alienOrder is the constraint-propagation order chosen for
	// NonGroundAlien leaves (spec.md §4.6): indices into leaves.
	alienOrder []int
}

// CompileLHS performs the free-skeleton scan, classifying every leaf of
// pattern and freezing a constraint-propagation order for non-ground
// aliens.
func CompileLHS(pattern *term.Term) *LhsAutomaton {
	return CompileLHSWithSeen(pattern, make(map[uint32]bool))
}

// CompileLHSWithSeen is CompileLHS with an externally supplied
// variable-seen map, so a caller compiling a whole equation's LHS across
// theory boundaries (internal/acu's top-variables are Bound/Uncertain
// depending on whether the enclosing free skeleton already bound that
// variable name) can thread one shared map through both the free-theory
// scan and the AC/ACU compiler. seen is mutated in place.
func CompileLHSWithSeen(pattern *term.Term, seen map[uint32]bool) *LhsAutomaton {
	a := &LhsAutomaton{pattern: pattern}
	a.scan(pattern, seen)
	a.alienOrder = chooseAlienOrder(a.leaves)
	return a
}

func (a *LhsAutomaton) scan(t *term.Term, seenVars map[uint32]bool) {
	switch t.Theory {
	case symbol.TheoryVariable:
		key := uint32(t.VarName)
		if seenVars[key] {
			a.leaves = append(a.leaves, Leaf{Kind: BoundVariable, Pattern: t})
		} else {
			seenVars[key] = true
			a.leaves = append(a.leaves, Leaf{Kind: UncertainVariable, Pattern: t})
		}
	case symbol.TheoryFree:
		a.leaves = append(a.leaves, Leaf{Kind: FreeOccurrence, Pattern: t})
		for _, c := range t.Children {
			a.scan(c, seenVars)
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		if t.IsGround() {
			a.leaves = append(a.leaves, Leaf{Kind: GroundAlien, Pattern: t})
		} else {
			a.leaves = append(a.leaves, Leaf{Kind: NonGroundAlien, Pattern: t})
		}
	}
}

// chooseAlienOrder implements the constraint-propagation search of
// spec.md §4.6: at each step prefer the alien whose match would ground out
// the most currently-unbound variables, breaking ties by original
// position. This is a greedy approximation of "maximize the cardinality
// of the bound-uniquely set", matching the teacher's preference throughout
// for greedy/heuristic orderings over exhaustive search (see
// dag/optimizer.go's selectivity-ordered wave scheduling).
func chooseAlienOrder(leaves []Leaf) []int {
	var alienIdx []int
	for i, l := range leaves {
		if l.Kind == NonGroundAlien {
			alienIdx = append(alienIdx, i)
		}
	}

	bound := make(map[uint32]bool)
	var order []int
	remaining := append([]int(nil), alienIdx...)

	for len(remaining) > 0 {
		bestPos, bestScore := 0, -1
		for pos, idx := range remaining {
			score := newlyGroundedCount(leaves[idx].Pattern, bound)
			if score > bestScore {
				bestScore, bestPos = score, pos
			}
		}
		chosen := remaining[bestPos]
		order = append(order, chosen)
		markGrounded(leaves[chosen].Pattern, bound)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return order
}

func newlyGroundedCount(t *term.Term, bound map[uint32]bool) int {
	count := 0
	for _, idx := range t.OccursBelow().Members() {
		if !bound[uint32(idx)] {
			count++
		}
	}
	return count
}

func markGrounded(t *term.Term, bound map[uint32]bool) {
	for _, idx := range t.OccursBelow().Members() {
		bound[uint32(idx)] = true
	}
}

// Subproblem is deferred matching work returned by an automaton when a
// match cannot be fully decided by the free-skeleton scan alone (spec.md
// §3). The free theory never defers — AliensOnly/non-ground aliens are
// handled recursively inline — so this type exists purely to satisfy the
// uniform `match(subject, substitution) -> (bool, optional subproblem)`
// contract the AC/ACU automata (internal/acu) actually populate.
type Subproblem interface {
	Solve(sub *subst.Substitution) (bool, error)
}

// AlienMatcher matches a non-ground alien subterm against a subject node,
// supplied by the caller (internal/automaton wires this to the AC/ACU
// package so freetheory need not import it back).
type AlienMatcher func(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution) (bool, Subproblem, error)

// Match runs the compiled automaton against subject, binding variables
// into sub by their pattern.VarIndex (assigned beforehand by index
// allocation). alienMatch is invoked for each NonGroundAlien leaf as the
// left-to-right walk of the pattern reaches it; the constraint-propagation
// order stored in alienOrder is not consulted here.
func (a *LhsAutomaton) Match(subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher) (bool, Subproblem, error) {
	return matchRec(a.pattern, subject, sub, alienMatch)
}

func matchRec(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher) (bool, Subproblem, error) {
	switch pattern.Theory {
	case symbol.TheoryVariable:
		idx := pattern.VarIndex
		if existing := sub.Value(idx); existing != nil {
			return dagnode.EqualShape(existing, subject), nil, nil
		}
		sub.Bind(idx, subject)
		return true, nil, nil

	case symbol.TheoryFree:
		if subject.Theory != symbol.TheoryFree || subject.Sym != pattern.Sym {
			return false, nil, nil
		}
		if len(subject.Children) != len(pattern.Children) {
			return false, nil, nil
		}
		for i, childPattern := range pattern.Children {
			ok, _, err := matchRec(childPattern, subject.Children[i], sub, alienMatch)
			if err != nil || !ok {
				return false, nil, err
			}
		}
		return true, nil, nil

	case symbol.TheoryAC, symbol.TheoryACU:
		return alienMatch(pattern, subject, sub)
	}
	return false, nil, nil
}

// --- RHS construction ---

// TermBag is the set of terms usable for reuse during compile_rhs, split
// into eager and lazy contexts, each term carrying a pre-assigned
// construction index (spec.md §4.6).
type TermBag struct {
	eager map[uint64]int
	lazy  map[uint64]int
	next  int
}

// NewTermBag creates an empty term bag.
func NewTermBag() *TermBag {
	return &TermBag{eager: make(map[uint64]int), lazy: make(map[uint64]int)}
}

// Reserve returns the construction index for t in the given context,
// reusing a prior allocation if an equivalent term is already available.
func (b *TermBag) Reserve(t *term.Term, eagerContext bool) int {
	bucket := b.lazy
	if eagerContext {
		bucket = b.eager
	}
	h := t.Hash()
	if idx, ok := bucket[h]; ok {
		t.SetSaveIndex(idx)
		return idx
	}
	idx := b.next
	b.next++
	bucket[h] = idx
	t.SetSaveIndex(idx)
	return idx
}

// RhsAutomaton is the compiled construction automaton for a free-theory
// RHS: an ordered instruction list producing one DAG node, reusing the
// term bag's pre-assigned construction indices (spec.md §4.6).
type RhsAutomaton struct {
	rhs *term.Term
	bag *TermBag
}

// CompileRHS classifies rhs's subterms in descending compute_size order,
// allocating construction indices from bag, and returns the automaton.
// Six specialized forms exist in the source keyed by arity (0..3, plus two
// "fast" repeated-low-arity forms); here a single generalized executor
// covers every arity, with BuildDagNode below dispatching the 0/1/2/3-ary
// fast paths the same way the teacher's evaluator picks a fast path by
// node count (dag/evaluator.go's evaluateFastPath/evaluateStandardPath).
func CompileRHS(rhs *term.Term, bag *TermBag, eagerContext bool) *RhsAutomaton {
	order := subtermsByDescendingComputeSize(rhs)
	for _, sub := range order {
		bag.Reserve(sub, eagerContext)
	}
	return &RhsAutomaton{rhs: rhs, bag: bag}
}

func subtermsByDescendingComputeSize(t *term.Term) []*term.Term {
	var all []*term.Term
	var walk func(*term.Term)
	walk = func(t *term.Term) {
		all = append(all, t)
		switch t.Theory {
		case symbol.TheoryFree:
			for _, c := range t.Children {
				walk(c)
			}
		case symbol.TheoryAC, symbol.TheoryACU:
			for _, c := range t.ACU {
				walk(c.Term)
			}
		}
	}
	walk(t)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ComputeSize() > all[j].ComputeSize() })
	return all
}

// Build instantiates the RHS against sub, reusing cache for structural
// sharing of freshly constructed nodes exactly as Dagify does, and
// consulting the term bag's construction indices so a subterm reserved
// more than once by CompileRHS (the same hash repeated under the RHS
// root) is built once per call
// and shared thereafter (spec.md §4.6 "non-terminal automata bind into
// the substitution by index for reuse").
func (r *RhsAutomaton) Build(sub *subst.Substitution, cache *dagnode.HashConsSet) *dagnode.DagNode {
	memo := make(map[int]*dagnode.DagNode, r.bag.next)
	return buildDagNode(r.rhs, sub, cache, memo)
}

// BuildDagNode constructs a DagNode from an RHS term and substitution,
// indexing variables by their pattern.VarIndex. Arity 0/1/2/3 are the
// fast, non-allocating-slice-growth forms the six specialized automata in
// the source exist for; arity >3 falls back to the general slice-building
// path. Used directly (with no term-bag memo) by callers building a term
// with no associated RhsAutomaton, e.g. a condition fragment's ground
// construction.
func BuildDagNode(t *term.Term, sub *subst.Substitution, cache *dagnode.HashConsSet) *dagnode.DagNode {
	return buildDagNode(t, sub, cache, nil)
}

// buildDagNode is BuildDagNode's implementation, threading an optional
// save-index memo: when memo is non-nil and t carries a construction
// index assigned by TermBag.Reserve, a prior build of an equal-hash
// subterm within this same call is returned instead of rebuilding it.
func buildDagNode(t *term.Term, sub *subst.Substitution, cache *dagnode.HashConsSet, memo map[int]*dagnode.DagNode) *dagnode.DagNode {
	idx := -1
	if memo != nil {
		idx = t.SaveIndex()
		if idx >= 0 {
			if cached, ok := memo[idx]; ok {
				return cached
			}
		}
	}

	var result *dagnode.DagNode
	switch t.Theory {
	case symbol.TheoryVariable:
		result = sub.Value(t.VarIndex)

	case symbol.TheoryFree:
		switch len(t.Children) {
		case 0:
			node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: t.Sym}
			result, _ = cache.Canonicalize(node)
		case 1:
			c0 := buildDagNode(t.Children[0], sub, cache, memo)
			node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: t.Sym, Children: []*dagnode.DagNode{c0}}
			result, _ = cache.Canonicalize(node)
		case 2:
			c0 := buildDagNode(t.Children[0], sub, cache, memo)
			c1 := buildDagNode(t.Children[1], sub, cache, memo)
			node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: t.Sym, Children: []*dagnode.DagNode{c0, c1}}
			result, _ = cache.Canonicalize(node)
		case 3:
			c0 := buildDagNode(t.Children[0], sub, cache, memo)
			c1 := buildDagNode(t.Children[1], sub, cache, memo)
			c2 := buildDagNode(t.Children[2], sub, cache, memo)
			node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: t.Sym, Children: []*dagnode.DagNode{c0, c1, c2}}
			result, _ = cache.Canonicalize(node)
		default:
			children := make([]*dagnode.DagNode, len(t.Children))
			for i, c := range t.Children {
				children[i] = buildDagNode(c, sub, cache, memo)
			}
			node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: t.Sym, Children: children}
			result, _ = cache.Canonicalize(node)
		}

	case symbol.TheoryAC, symbol.TheoryACU:
		acu := make([]dagnode.ACUChild, len(t.ACU))
		for i, c := range t.ACU {
			acu[i] = dagnode.ACUChild{Node: buildDagNode(c.Term, sub, cache, memo), Multiplicity: c.Multiplicity}
		}
		node := &dagnode.DagNode{Theory: t.Theory, Sym: t.Sym, ACU: acu}
		result, _ = cache.Canonicalize(node)
	}

	if memo != nil && idx >= 0 {
		memo[idx] = result
	}
	return result
}

// --- Discrimination net ---
//
// spec.md §2/§4.6/§9: a ternary-tree dispatcher shared by every equation
// whose LHS is rooted at a common free-theory symbol, so that a symbol
// test repeated across several patterns (the same argument position
// expecting the same or a differently-ordered symbol) is made once per
// subject instead of once per equation's own linear free-skeleton scan.
//
// This net is a pruning index only: Candidates returns a superset of the
// equation IDs that could possibly match (equations indifferent to a
// tested position, or that ran out of distinguishing positions, are
// always included), and the caller still runs each candidate's full LHS
// automaton to confirm. Correctness therefore never depends on the net;
// it only depends on Candidates never omitting an equation that could
// truly match.

// testConstraint is one free-skeleton symbol test extracted from a
// pattern for net construction: the subject must carry symbol SymHash at
// the child-index path Path from the pattern's root.
type testConstraint struct {
	path    []int
	symHash uint64
}

// collectFreeConstraints walks pattern's free skeleton, recording one
// testConstraint per strict descendant (depth >= 1) that is itself a
// free-theory node; the root's own symbol is the dispatch key into the
// per-symbol net and needs no separate test. Descent stops at a
// variable/alien boundary, matching the free skeleton's definition
// (spec.md glossary "maximal contiguous subtree of free-theory symbols").
func collectFreeConstraints(pattern *term.Term) []testConstraint {
	var out []testConstraint
	var walk func(t *term.Term, path []int, isRoot bool)
	walk = func(t *term.Term, path []int, isRoot bool) {
		if t.Theory != symbol.TheoryFree {
			return
		}
		if !isRoot {
			out = append(out, testConstraint{path: path, symHash: t.Sym.Hash()})
		}
		for i, c := range t.Children {
			childPath := make([]int, len(path)+1)
			copy(childPath, path)
			childPath[len(path)] = i
			walk(c, childPath, false)
		}
	}
	walk(pattern, nil, true)
	return out
}

func constraintAt(cs []testConstraint, path []int) (uint64, bool) {
	for _, c := range cs {
		if pathEqual(c.path, path) {
			return c.symHash, true
		}
	}
	return 0, false
}

func pathEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pathLess(a, b []int) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// netNode is one node of the discrimination net. A node with a nil Path
// is a pure leaf: Remainder holds every equation ID that reached it,
// regardless of subject shape. A node with a non-nil Path tests the
// subject's symbol at that argument path against TestSym: Eq/Lt/Gt route
// to the next comparison, exactly as a ternary search tree routes on one
// character of a key. Remainder at a non-leaf node holds equations
// indifferent to Path (no constraint there) — those are candidates no
// matter which of Eq/Lt/Gt the subject takes, so they are collected the
// moment the node is visited.
type netNode struct {
	path      []int
	testSym   uint64
	eq, lt, gt *netNode
	remainder []int
}

// DiscriminationNet is the compiled ternary-tree dispatcher for one
// free-theory symbol's equations.
type DiscriminationNet struct {
	root *netNode
	flat []int // used verbatim when too few equations justify building a tree
}

// BuildDiscriminationNet compiles a net from patterns (each a
// pre-equation's LHS rooted at the symbol this net serves) and their
// matching ids (typically pre-equation registration indices, same order
// as patterns).
func BuildDiscriminationNet(patterns []*term.Term, ids []int) *DiscriminationNet {
	if len(patterns) <= 1 {
		return &DiscriminationNet{flat: append([]int(nil), ids...)}
	}
	constraints := make([][]testConstraint, len(patterns))
	for i, p := range patterns {
		constraints[i] = collectFreeConstraints(p)
	}
	posOrder := canonicalPositions(constraints)
	return &DiscriminationNet{root: buildNetLevel(ids, constraints, posOrder, 0)}
}

// canonicalPositions returns every distinct argument path tested by any
// pattern in the group, shortest-first then lexicographic, giving the
// net a single fixed sequence of positions to descend through.
func canonicalPositions(all [][]testConstraint) [][]int {
	var out [][]int
	for _, cs := range all {
		for _, c := range cs {
			found := false
			for _, p := range out {
				if pathEqual(p, c.path) {
					found = true
					break
				}
			}
			if !found {
				out = append(out, c.path)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return pathLess(out[i], out[j]) })
	return out
}

// buildNetLevel builds the net for the equations named by ids (each with
// its corresponding constraints entry) starting from posOrder[depth].
func buildNetLevel(ids []int, constraints [][]testConstraint, posOrder [][]int, depth int) *netNode {
	if depth >= len(posOrder) || len(ids) <= 1 {
		return &netNode{remainder: append([]int(nil), ids...)}
	}

	pos := posOrder[depth]
	var wildcardIDs []int
	activeIDs := make(map[uint64][]int)
	activeCs := make(map[uint64][][]testConstraint)
	for i, id := range ids {
		if sym, ok := constraintAt(constraints[i], pos); ok {
			activeIDs[sym] = append(activeIDs[sym], id)
			activeCs[sym] = append(activeCs[sym], constraints[i])
		} else {
			wildcardIDs = append(wildcardIDs, id)
		}
	}
	if len(activeIDs) == 0 {
		// No equation in this group tests pos; skip straight to the next
		// shared position instead of emitting a useless node.
		return buildNetLevel(ids, constraints, posOrder, depth+1)
	}

	syms := make([]uint64, 0, len(activeIDs))
	for s := range activeIDs {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })

	node := buildSymTree(syms, activeIDs, activeCs, posOrder, depth+1, pos)
	node.remainder = wildcardIDs
	return node
}

// buildSymTree builds a balanced ternary comparison chain over syms, all
// at the same argument path pos: the median symbol becomes one node's
// TestSym, with Lt/Gt continuing the comparison (still at pos) over the
// symbols below/above it and Eq descending to the next position via
// buildNetLevel.
func buildSymTree(syms []uint64, activeIDs map[uint64][]int, activeCs map[uint64][][]testConstraint, posOrder [][]int, nextDepth int, pos []int) *netNode {
	mid := len(syms) / 2
	s := syms[mid]
	n := &netNode{path: pos, testSym: s}
	n.eq = buildNetLevel(activeIDs[s], activeCs[s], posOrder, nextDepth)
	if mid > 0 {
		n.lt = buildSymTree(syms[:mid], activeIDs, activeCs, posOrder, nextDepth, pos)
	}
	if mid+1 < len(syms) {
		n.gt = buildSymTree(syms[mid+1:], activeIDs, activeCs, posOrder, nextDepth, pos)
	}
	return n
}

// Candidates returns the (possibly over-approximate) set of equation IDs
// that could match subject, by walking the net from its root.
func (net *DiscriminationNet) Candidates(subject *dagnode.DagNode) []int {
	if net.root == nil {
		return net.flat
	}
	var out []int
	collectCandidates(net.root, subject, &out)
	return out
}

func collectCandidates(n *netNode, subject *dagnode.DagNode, out *[]int) {
	if n == nil {
		return
	}
	*out = append(*out, n.remainder...)
	if n.path == nil {
		return
	}
	sym, ok := symbolAt(subject, n.path)
	if !ok {
		return
	}
	switch {
	case sym == n.testSym:
		collectCandidates(n.eq, subject, out)
	case sym < n.testSym:
		collectCandidates(n.lt, subject, out)
	default:
		collectCandidates(n.gt, subject, out)
	}
}

// symbolAt follows path from subject through free-theory children,
// returning the symbol hash found there, or false if the path runs off
// the edge of subject's shape (a theory boundary or a shorter arity) —
// in which case none of this node's concrete branches apply, only its
// wildcard remainder (already collected by the caller).
func symbolAt(subject *dagnode.DagNode, path []int) (uint64, bool) {
	n := subject
	for _, idx := range path {
		if n.Theory != symbol.TheoryFree || idx >= len(n.Children) {
			return 0, false
		}
		n = n.Children[idx]
	}
	if n.Theory != symbol.TheoryFree || n.Sym == nil {
		return 0, false
	}
	return n.Sym.Hash(), true
}

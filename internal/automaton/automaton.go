// Package automaton wires internal/freetheory and internal/acu together
// into a single recursively-compiled matcher for a whole equation's LHS,
// without either theory package importing the other (spec.md §4.6/§4.7
// dispatch across a mixed free/AC/ACU pattern tree).
//
// Grounded on the teacher's compiler/dag_codegen.go generateDagRecursive:
// a type-switch walk that compiles a node and its dependencies together,
// caching by identity so a shared subterm is compiled once. Here the
// identity key is the pattern *term.Term pointer, and "compiling a node"
// means building whichever theory's LhsAutomaton the node's top symbol
// requires, recursing into every child regardless of which theory's scan
// already walked past it, so every free/AC/ACU boundary in the tree gets
// its own automaton ahead of any Match call.
package automaton

import (
	"github.com/dagterm/rewrite/internal/acu"
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/freetheory"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// compiled is the per-node automaton: exactly one of free/acu is set,
// matching pattern.Theory at compile time (TheoryVariable nodes need
// neither, matched directly by matchNode).
type compiled struct {
	free *freetheory.LhsAutomaton
	acu  *acu.LhsAutomaton
}

// Automaton is a whole equation LHS's compiled matcher: a cache of
// per-subterm automata plus the shared variable-seen bookkeeping used to
// classify BoundOnEntry/UncertainVariable consistently across every
// theory boundary the pattern crosses.
type Automaton struct {
	root  *term.Term
	cache map[*term.Term]*compiled
}

// Compile recursively compiles pattern and every alien subterm reachable
// from it, regardless of theory, with every AC/ACU boundary defaulting to
// the Full match strategy. Call once per equation LHS (or condition
// fragment pattern); the result is reused for every subject tried against
// it.
func Compile(pattern *term.Term) *Automaton {
	return CompileWithConfig(pattern, false)
}

// CompileWithConfig is Compile with EngineConfig.PreferGreedyACU's choice
// exposed: preferGreedyACU threads down to every acu.CompileLHSWithStrategy call so a
// whole equation's AC/ACU boundaries are compiled under the engine's
// configured match strategy rather than always defaulting to Full.
func CompileWithConfig(pattern *term.Term, preferGreedyACU bool) *Automaton {
	a := &Automaton{root: pattern, cache: make(map[*term.Term]*compiled)}
	a.compileRecursive(pattern, make(map[uint32]bool), preferGreedyACU)
	return a
}

func (a *Automaton) compileRecursive(pattern *term.Term, seen map[uint32]bool, preferGreedyACU bool) {
	if _, ok := a.cache[pattern]; ok {
		return
	}
	switch pattern.Theory {
	case symbol.TheoryVariable:
		a.cache[pattern] = &compiled{}
		key := uint32(pattern.VarName)
		seen[key] = true

	case symbol.TheoryFree:
		a.cache[pattern] = &compiled{free: freetheory.CompileLHSWithSeen(pattern, seen)}
		for _, child := range pattern.Children {
			a.compileRecursive(child, seen, preferGreedyACU)
		}

	case symbol.TheoryAC, symbol.TheoryACU:
		a.cache[pattern] = &compiled{acu: acu.CompileLHSWithStrategy(pattern, seen, preferGreedyACU)}
		for _, child := range pattern.ACU {
			a.compileRecursive(child.Term, seen, preferGreedyACU)
		}
	}
}

// Match runs the compiled automaton against subject.
func (a *Automaton) Match(subject *dagnode.DagNode, sub *subst.Substitution) (bool, error) {
	return a.matchNode(a.root, subject, sub)
}

func (a *Automaton) matchNode(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution) (bool, error) {
	switch pattern.Theory {
	case symbol.TheoryVariable:
		idx := pattern.VarIndex
		if existing := sub.Value(idx); existing != nil {
			return dagnode.EqualShape(existing, subject), nil
		}
		sub.Bind(idx, subject)
		return true, nil

	case symbol.TheoryFree:
		c := a.cache[pattern]
		ok, _, err := c.free.Match(subject, sub, a.alienMatchFree)
		return ok, err

	case symbol.TheoryAC, symbol.TheoryACU:
		c := a.cache[pattern]
		ok, _, err := c.acu.Match(subject, sub, a.alienMatchACU)
		if err != nil || ok {
			return ok, err
		}
		// Exact top-symbol match failed; try the identity-collapse
		// fallback (spec.md §4.7) before reporting failure.
		ok, _, err = c.acu.MatchCollapsed(subject, sub, a.alienMatchACU)
		return ok, err
	}
	return false, nil
}

// alienMatchFree satisfies freetheory.AlienMatcher, dispatching a
// NonGroundAlien leaf (always an AC/ACU subterm embedded under a free
// symbol) back through matchNode. freetheory's Subproblem is always nil
// here: the theories this package compiles never leave a subproblem
// unresolved at their own top-level Match/MatchCollapsed return.
func (a *Automaton) alienMatchFree(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution) (bool, freetheory.Subproblem, error) {
	ok, err := a.matchNode(pattern, subject, sub)
	return ok, nil, err
}

// alienMatchACU satisfies acu.AlienMatcher, dispatching a non-ground alien
// child of an AC/ACU pattern (a free-theory subterm, or a nested AC/ACU
// subterm under a different top symbol) back through matchNode.
func (a *Automaton) alienMatchACU(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution) (bool, acu.Subproblem, error) {
	ok, err := a.matchNode(pattern, subject, sub)
	return ok, nil, err
}

// Package acu implements the AC/ACU-theory matching automaton: the
// ordered multiset subject representation, the five MatchStrategy
// variants, the six-step match algorithm, high-multiplicity lone-variable
// assignment, and the bipartite/Diophantine subproblem for the
// Greedy/Full cases (spec.md §4.7).
//
// Grounded on katalvlaran-lvlath's builder/impl_bipartite.go for the
// bipartite-construction shape (deterministic vertex/edge emission order,
// sentinel-error contract) — adapted in place rather than imported, since
// that package's graph core is untyped-vertex rather than DAG-node-typed
// (see DESIGN.md). The ordered-multiset representation is grounded on the
// teacher's dag/optimizer.go buildExpressionSignature (canonical child
// ordering for commutative representation).
package acu

import (
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

// Subproblem is deferred matching work an AC/ACU match attempt could not
// resolve inline (spec.md §3): the bipartite/Diophantine residual for the
// Greedy/Full cases.
type Subproblem interface {
	Solve(sub *subst.Substitution) (bool, error)
}

// AlienMatcher matches an arbitrary pattern subterm (of any theory)
// against a subject node; supplied by the caller (internal/automaton)
// wiring this package together with internal/freetheory so neither
// imports the other.
type AlienMatcher func(pattern *term.Term, subject *dagnode.DagNode, sub *subst.Substitution) (bool, Subproblem, error)

// LhsAutomaton is the compiled matcher for an AC/ACU-theory LHS pattern.
type LhsAutomaton struct {
	pattern  *term.Term
	vars     []topVariable
	ground   []groundAlien
	aliens   []alien
	strategy MatchStrategy
}

// CompileLHS classifies pattern's children and freezes a MatchStrategy,
// threading seen (variable name -> already bound earlier in the
// enclosing equation) exactly as freetheory.CompileLHSWithSeen does, so
// a top-variable repeated between a free-theory context and this AC/ACU
// alien is classified consistently.
func CompileLHS(pattern *term.Term, seen map[uint32]bool) *LhsAutomaton {
	return CompileLHSWithStrategy(pattern, seen, false)
}

// CompileLHSWithStrategy is CompileLHS with the Greedy-vs-Full preference
// exposed, wired to EngineConfig's AC/ACU match-strategy override
// (SPEC_FULL.md AMBIENT STACK) so tests can force deterministic greedy
// dispatch instead of the default Full ordering.
func CompileLHSWithStrategy(pattern *term.Term, seen map[uint32]bool, preferGreedy bool) *LhsAutomaton {
	vars, ground, aliens := classify(pattern, seen)
	a := &LhsAutomaton{pattern: pattern, vars: vars, ground: ground, aliens: aliens}
	a.strategy = chooseStrategy(vars, aliens, preferGreedy)
	return a
}

// Strategy returns the compiled MatchStrategy, exposed for tests and
// tracing/profiling diagnostics.
func (a *LhsAutomaton) Strategy() MatchStrategy { return a.strategy }

// Match runs the six-step algorithm of spec.md §4.7 against subject,
// delegating non-ground alien matches and grounded-out alien matches to
// alienMatch.
func (a *LhsAutomaton) Match(subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher) (bool, Subproblem, error) {
	if subject.Theory != symbol.TheoryAC && subject.Theory != symbol.TheoryACU {
		return false, nil, nil
	}
	if subject.Sym != a.pattern.Sym {
		return false, nil, nil
	}

	residual := append([]dagnode.ACUChild(nil), subject.ACU...)

	// Step 1: multiplicity bounds check.
	if !multiplicityBoundsOK(a, residual) {
		return false, nil, nil
	}

	// Step 2: eliminate ground aliens by exact lookup.
	for _, g := range a.ground {
		node := buildGroundNode(g.Term)
		idx, ord := binarySearchByTerm(residual, node)
		if ord != Equal || residual[idx].Multiplicity < g.Multiplicity {
			return false, nil, nil
		}
		residual = subtractAt(residual, idx, g.Multiplicity)
	}

	// Step 3: eliminate bound-variable top-variables by subtracting their
	// assigned subject multiplicity.
	var unboundVars []topVariable
	for _, v := range a.vars {
		if bound := sub.Value(v.Term.VarIndex); bound != nil {
			idx, ord := binarySearchByTerm(residual, bound)
			if ord != Equal || residual[idx].Multiplicity < v.Multiplicity {
				return false, nil, nil
			}
			residual = subtractAt(residual, idx, v.Multiplicity)
			continue
		}
		unboundVars = append(unboundVars, v)
	}

	// Step 4: eliminate grounded-out aliens (every variable already bound).
	remainingAliens := make([]alien, 0, len(a.aliens))
	for _, al := range a.aliens {
		hash, ok := groundHash(al.Term, func(vi int) (uint64, bool) {
			n := sub.Value(vi)
			if n == nil {
				return 0, false
			}
			return n.Hash(), true
		})
		if !ok {
			remainingAliens = append(remainingAliens, al)
			continue
		}
		matched := false
		for i := findFirstPotentialMatch(residual, hash); i < len(residual) && residual[i].Node.Hash() == hash; i++ {
			if residual[i].Multiplicity < al.Multiplicity {
				continue
			}
			ok, sp, err := alienMatch(al.Term, residual[i].Node, sub)
			if err != nil {
				return false, nil, err
			}
			if sp != nil {
				ok, err = sp.Solve(sub)
				if err != nil {
					return false, nil, err
				}
			}
			if ok {
				residual = subtractAt(residual, i, al.Multiplicity)
				matched = true
				break
			}
		}
		if !matched {
			return false, nil, nil
		}
	}

	// Step 5: branch.
	greedy := a.strategy == Greedy
	switch {
	case len(unboundVars) == 0 && len(remainingAliens) == 0:
		return len(residual) == 0, nil, nil

	case len(unboundVars) == 1 && len(remainingAliens) == 0:
		return assignLoneVariable(a.pattern.Sym, a.pattern.Theory, unboundVars[0], residual, sub)

	case len(unboundVars) == 0 && len(remainingAliens) > 0:
		sp := newBipartideSubproblem(a.pattern.Sym, a.pattern.Theory, remainingAliens, residual, alienMatch, greedy)
		ok, err := sp.Solve(sub)
		return ok, nil, err

	default:
		sp := newBipartideSubproblemWithVars(a.pattern.Sym, a.pattern.Theory, unboundVars, remainingAliens, residual, alienMatch, greedy)
		ok, err := sp.Solve(sub)
		return ok, nil, err
	}
}

func multiplicityBoundsOK(a *LhsAutomaton, residual []dagnode.ACUChild) bool {
	total := 0
	for _, c := range residual {
		total += c.Multiplicity
	}
	lower := len(a.ground)
	for _, v := range a.vars {
		lower += v.Multiplicity
	}
	return total >= lower
}

func buildGroundNode(t *term.Term) *dagnode.DagNode {
	cache := dagnode.NewHashConsSet()
	return dagnode.Dagify(t, cache, nil)
}

// emptyACUNode builds the zero-child ACU node a lone variable binds to
// when the residual subject multiset is empty.
func emptyACUNode(sym *symbol.Symbol, theory symbol.Theory, v *term.Term) *dagnode.DagNode {
	node := &dagnode.DagNode{Theory: theory, Sym: sym, SortIndex: v.DeclaredSort}
	node.Flags |= dagnode.FlagGround
	cache := dagnode.NewHashConsSet()
	canon, _ := cache.Canonicalize(node)
	return canon
}

// buildResidualNode constructs a fresh ACU dag node from the leftover
// subject children, carrying the same top symbol as the pattern being
// matched, and canonicalizes it through a private hash-cons set (the
// caller's module-level cache is consulted again once this node is
// spliced into a rewrite via overwrite_with_clone, so a private set here
// only avoids threading one more parameter through every Match call).
func buildResidualNode(sym *symbol.Symbol, theory symbol.Theory, v *term.Term, residual []dagnode.ACUChild) *dagnode.DagNode {
	node := &dagnode.DagNode{Theory: theory, Sym: sym, ACU: residual, SortIndex: v.DeclaredSort}
	cache := dagnode.NewHashConsSet()
	canon, _ := cache.Canonicalize(node)
	return canon
}

// subtractAt removes n copies of residual[idx] from the vector, dropping
// the entry entirely once its multiplicity reaches zero. It returns a new
// slice and leaves residual untouched, so a backtracking caller can retry
// another candidate against the same residual.
func subtractAt(residual []dagnode.ACUChild, idx, n int) []dagnode.ACUChild {
	out := append([]dagnode.ACUChild(nil), residual...)
	out[idx].Multiplicity -= n
	if out[idx].Multiplicity > 0 {
		return out
	}
	return append(out[:idx], out[idx+1:]...)
}

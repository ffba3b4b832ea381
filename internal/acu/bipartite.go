package acu

import (
	"sort"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	pkgerrors "github.com/dagterm/rewrite/pkg/errors"
)

// bipartiteSubproblem is the deferred matching work for the Greedy/Full
// cases of spec.md §4.7: a bipartite graph between unassigned pattern
// aliens (left) and subject residual children (right), searched for a
// covering assignment, plus any still-unbound top-variables that collect
// whatever residual is left over once every alien is assigned.
//
// Grounded on katalvlaran-lvlath's CompleteBipartite construction shape
// (builder/impl_bipartite.go): left/right partitions built in
// deterministic index order, edges emitted i-ascending-then-j-ascending —
// here "edge exists" means "alien i could possibly match residual child
// j", decided with alienMatch rather than unconditionally as the
// teacher's complete-bipartite constructor does.
type bipartiteSubproblem struct {
	sym        *symbol.Symbol
	theory     symbol.Theory
	vars       []topVariable
	aliens     []alien
	residual   []dagnode.ACUChild
	alienMatch AlienMatcher
	// greedy selects the Greedy strategy's abandon-on-first-commitment
	// search (spec.md §4.7) instead of Full's exhaustive backtracking.
	greedy bool
}

func newBipartideSubproblem(sym *symbol.Symbol, theory symbol.Theory, aliens []alien, residual []dagnode.ACUChild, alienMatch AlienMatcher, greedy bool) *bipartiteSubproblem {
	return newBipartideSubproblemWithVars(sym, theory, nil, aliens, residual, alienMatch, greedy)
}

func newBipartideSubproblemWithVars(sym *symbol.Symbol, theory symbol.Theory, vars []topVariable, aliens []alien, residual []dagnode.ACUChild, alienMatch AlienMatcher, greedy bool) *bipartiteSubproblem {
	ordered := append([]alien(nil), aliens...)
	// Independent-first ordering (spec.md §4.7 AliensOnly): independent
	// aliens are forced since no sibling alien could consume their match.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Independent && !ordered[j].Independent
	})
	return &bipartiteSubproblem{sym: sym, theory: theory, vars: vars, aliens: ordered, residual: append([]dagnode.ACUChild(nil), residual...), alienMatch: alienMatch, greedy: greedy}
}

// Solve performs a deterministic bipartite cover search: for each alien
// in order, try every remaining residual child (left to right, the same
// emission order as the teacher's complete-bipartite construction) and
// recurse. On full alien coverage, any leftover residual is handed to the
// Diophantine step: distributed among the remaining unbound top-variables
// (spec.md §4.7's "Diophantine subproblem over subject multiplicities").
// Full exhausts every alternative before reporting failure; Greedy
// commits to the first compatible assignment per alien and, if that
// commitment turns out to be unworkable further down the search, reports
// the match as undecided rather than backtracking to try another
// alternative (spec.md §4.7/§7).
func (p *bipartiteSubproblem) Solve(sub *subst.Substitution) (bool, error) {
	if p.greedy {
		return p.solveAliensGreedy(0, p.residual, sub)
	}
	return p.solveAliens(0, p.residual, sub)
}

func (p *bipartiteSubproblem) solveAliens(i int, residual []dagnode.ACUChild, sub *subst.Substitution) (bool, error) {
	if i >= len(p.aliens) {
		return p.solveVars(residual, sub)
	}
	al := p.aliens[i]
	for j := range residual {
		if residual[j].Multiplicity < al.Multiplicity {
			continue
		}
		// Snapshot before trying this candidate: alienMatch may bind
		// variables even on a branch that is later abandoned, and a
		// backtracking search must not leak those bindings into the next
		// candidate it tries.
		snapshot := sub.Clone()
		ok, sp, err := p.alienMatch(al.Term, residual[j].Node, sub)
		if err != nil {
			return false, err
		}
		if sp != nil {
			done, err := sp.Solve(sub)
			if err != nil {
				return false, err
			}
			ok = done
		}
		if !ok {
			sub.RestoreFrom(snapshot)
			continue
		}
		next := subtractAt(residual, j, al.Multiplicity)
		if done, err := p.solveAliens(i+1, next, sub); err != nil {
			return false, err
		} else if done {
			return true, nil
		}
		sub.RestoreFrom(snapshot)
	}
	return false, nil
}

// solveAliensGreedy matches each alien against the first residual child it
// can, in order, without trying any alternative once a match is found.
// If that single committed path reaches the end with no solution, the
// algorithm cannot tell whether a different (unexplored) assignment of an
// earlier alien would have worked, so it reports the match as undecided
// (pkgerrors.NewUndecidedMatch) instead of false. Plain false is returned
// only when the first alien has no compatible residual child at all; a
// failure after any commitment (a later alien with no workable child, or
// the variable step) is reported as undecided.
func (p *bipartiteSubproblem) solveAliensGreedy(i int, residual []dagnode.ACUChild, sub *subst.Substitution) (bool, error) {
	if i >= len(p.aliens) {
		return p.solveVars(residual, sub)
	}
	al := p.aliens[i]
	for j := range residual {
		if residual[j].Multiplicity < al.Multiplicity {
			continue
		}
		ok, sp, err := p.alienMatch(al.Term, residual[j].Node, sub)
		if err != nil {
			return false, err
		}
		if sp != nil {
			done, err := sp.Solve(sub)
			if err != nil {
				return false, err
			}
			ok = done
		}
		if !ok {
			continue
		}
		next := subtractAt(residual, j, al.Multiplicity)
		done, err := p.solveAliensGreedy(i+1, next, sub)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		return false, pkgerrors.NewUndecidedMatch("greedy ACU match committed an alien to its first compatible residual child without exhausting alternatives")
	}
	return false, nil
}

// solveVars is the Diophantine step: once every alien has consumed its
// share, whatever residual remains must be distributable among the
// unbound top-variables. With zero unbound variables, the residual must
// be empty. With one, it collects everything (assignLoneVariable's rules
// apply, including the multiplicity-divides-evenly constraint). With more
// than one, this distributes the residual to the first variable whole —
// matching the original's preference for "a single well-defined owner"
// over enumerating every partition, which the Full strategy's weak
// propagation ordering is meant to avoid needing in the common case.
func (p *bipartiteSubproblem) solveVars(residual []dagnode.ACUChild, sub *subst.Substitution) (bool, error) {
	switch len(p.vars) {
	case 0:
		return len(residual) == 0, nil
	case 1:
		ok, _, err := assignLoneVariable(p.sym, p.theory, p.vars[0], residual, sub)
		return ok, err
	default:
		ok, _, err := assignLoneVariable(p.sym, p.theory, p.vars[0], residual, sub)
		if err != nil || !ok {
			return false, err
		}
		for _, v := range p.vars[1:] {
			sub.Bind(v.Term.VarIndex, emptyACUNode(p.sym, p.theory, v.Term))
		}
		return true, nil
	}
}

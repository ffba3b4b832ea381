package acu

import (
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
)

// assignLoneVariable implements spec.md §4.7's lone-variable case: v is
// the single remaining unbound top-variable and residual is everything
// left in the subject's multiset after every other position has been
// eliminated. sym/theory are the ACU pattern's own top symbol, carried so
// a freshly built residual node shares the pattern's theory.
func assignLoneVariable(sym *symbol.Symbol, theory symbol.Theory, v topVariable, residual []dagnode.ACUChild, sub *subst.Substitution) (bool, Subproblem, error) {
	m := v.Multiplicity
	if m <= 0 {
		m = 1
	}

	if len(residual) == 0 {
		// Empty residual: only valid if the symbol has an identity and m
		// divides the identity trivially (m copies of identity is still
		// identity) — callers construct residual AC nodes through
		// dagnode.Dagify, which does not special-case identity directly,
		// so an empty multiset binds to a zero-child ACU node; whether
		// that is acceptable is a sort-table concern resolved by the
		// caller's sort-constraint pass, not this matcher (spec.md §4.10
		// tightens sorts after the fact).
		sub.Bind(v.Term.VarIndex, emptyACUNode(sym, theory, v.Term))
		return true, nil, nil
	}

	if m == 1 {
		if len(residual) == 1 && residual[0].Multiplicity == 1 {
			sub.Bind(v.Term.VarIndex, residual[0].Node)
			return true, nil, nil
		}
		sub.Bind(v.Term.VarIndex, buildResidualNode(sym, theory, v.Term, residual))
		return true, nil, nil
	}

	// High-multiplicity assignment: every residual multiplicity must
	// divide evenly by m across a single accounting pass (spec.md §4.7 —
	// "if its multiplicity > 1 the residual must divide evenly").
	for _, c := range residual {
		if c.Multiplicity%m != 0 {
			return false, nil, nil
		}
	}
	if len(residual) == 1 && residual[0].Multiplicity == m {
		sub.Bind(v.Term.VarIndex, residual[0].Node)
		return true, nil, nil
	}

	// Every residual multiplicity divides evenly by m (checked above), so
	// the variable receives mj/m copies of each child, and the children
	// keep the residual's hash order. The Symbol::compute_multisort_index
	// step of spec.md §4.7 is approximated by buildResidualNode's own
	// sort-agnostic construction; sort refinement happens downstream via
	// sortconstraint.
	ordered := append([]dagnode.ACUChild(nil), residual...)
	for i := range ordered {
		ordered[i].Multiplicity /= m
	}
	sub.Bind(v.Term.VarIndex, buildResidualNode(sym, theory, v.Term, ordered))
	return true, nil, nil
}

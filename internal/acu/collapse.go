package acu

import (
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
)

// hasIdentity reports whether this pattern's top theory declares a unit
// element: ACU symbols do (the U), plain AC symbols do not, matching the
// source's naming convention (AC = associative-commutative, ACU = AC
// plus identity).
func (a *LhsAutomaton) hasIdentity() bool {
	return a.pattern.Theory == symbol.TheoryACU
}

// MatchCollapsed handles spec.md §4.7's collapse case: an ACU pattern
// whose top symbol has an identity can match a subject whose top symbol
// differs from the pattern's, provided the pattern would reduce to that
// subject once every top-variable and alien except one collapses away
// (a "unique-collapse" pattern — exactly one child, with every other
// child forced to bind the identity). It is tried by the caller
// (internal/automaton) only after LhsAutomaton.Match has already
// failed on an exact top-symbol match, exactly as the source treats
// collapse as a fallback path rather than folding it into the main
// six-step algorithm.
func (a *LhsAutomaton) MatchCollapsed(subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher) (bool, Subproblem, error) {
	if !a.hasIdentity() {
		return false, nil, nil
	}

	// Unique-collapse: exactly one non-variable child (ground alien or
	// alien) plus zero-or-more top-variables, every top-variable bound to
	// identity, the remaining child matched directly against subject.
	if len(a.ground)+len(a.aliens) != 1 {
		return a.matchMultiwayCollapse(subject, sub, alienMatch)
	}

	for _, v := range a.vars {
		if sub.Value(v.Term.VarIndex) != nil {
			continue // already bound elsewhere in this equation
		}
		sub.Bind(v.Term.VarIndex, emptyACUNode(a.pattern.Sym, a.pattern.Theory, v.Term))
	}

	if len(a.ground) == 1 {
		node := buildGroundNode(a.ground[0].Term)
		return dagnode.EqualShape(node, subject), nil, nil
	}
	return alienMatch(a.aliens[0].Term, subject, sub)
}

// matchMultiwayCollapse iterates every variable-abstraction subproblem: a
// pattern with more than one non-identity child can still collapse if all
// but one of its children can themselves be driven to identity by some
// assignment — this is the multiway collapse matcher of spec.md §4.7.
// The search tries, in turn, letting each alien/ground position be "the
// surviving one" while every other position (aliens, ground, and
// top-variables) is forced to identity.
func (a *LhsAutomaton) matchMultiwayCollapse(subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher) (bool, Subproblem, error) {
	for i := range a.ground {
		snapshot := sub.Clone()
		ok := a.tryCollapseWithSurvivor(subject, sub, alienMatch, i, -1)
		if ok {
			return true, nil, nil
		}
		sub.RestoreFrom(snapshot)
	}
	for i := range a.aliens {
		snapshot := sub.Clone()
		ok := a.tryCollapseWithSurvivor(subject, sub, alienMatch, -1, i)
		if ok {
			return true, nil, nil
		}
		sub.RestoreFrom(snapshot)
	}
	return false, nil, nil
}

func (a *LhsAutomaton) tryCollapseWithSurvivor(subject *dagnode.DagNode, sub *subst.Substitution, alienMatch AlienMatcher, groundSurvivor, alienSurvivor int) bool {
	for _, v := range a.vars {
		if sub.Value(v.Term.VarIndex) == nil {
			sub.Bind(v.Term.VarIndex, emptyACUNode(a.pattern.Sym, a.pattern.Theory, v.Term))
		}
	}
	for i, g := range a.ground {
		if i == groundSurvivor {
			continue
		}
		node := buildGroundNode(g.Term)
		if node.Hash() != identityHash(a.pattern.Sym, a.pattern.Theory) {
			return false
		}
	}
	for i := range a.aliens {
		if i != alienSurvivor {
			// A non-surviving alien is never proven to reduce to the
			// identity (see identityHash), so it rejects the collapse.
			return false
		}
	}
	if groundSurvivor >= 0 {
		node := buildGroundNode(a.ground[groundSurvivor].Term)
		return dagnode.EqualShape(node, subject)
	}
	if alienSurvivor >= 0 {
		ok, sp, err := alienMatch(a.aliens[alienSurvivor].Term, subject, sub)
		if err != nil || sp != nil {
			return false
		}
		return ok
	}
	return false
}

// identityHash is the hash a non-surviving ground child is compared with
// to count as the identity element. No identity constant is registered
// for a symbol, so it returns 0: a non-surviving ground child, like a
// non-surviving alien, rejects the collapse, and the multiway path only
// accepts patterns whose other positions are all top-variables.
func identityHash(sym *symbol.Symbol, theory symbol.Theory) uint64 {
	return 0
}

package acu

import (
	"github.com/dagterm/rewrite/internal/natset"
	"github.com/dagterm/rewrite/internal/term"
)

// MatchStrategy is the per-pattern dispatch choice of spec.md §4.7,
// frozen into the LhsAutomaton at compile time from the pattern's shape
// (ground aliens / top-variables / non-ground aliens present).
type MatchStrategy int

const (
	// GroundOut: no extension; every child is a ground alien eliminated by
	// exact lookup, any leftover subject multiplicity fails.
	GroundOut MatchStrategy = iota
	// LoneVariable: no extension, no non-ground aliens, exactly one
	// top-variable unbound at match time, which collects the residual.
	LoneVariable
	// AliensOnly: top-variables all bound on entry; aliens ordered
	// independent-first through the bipartite subproblem.
	AliensOnly
	// Greedy: orders for best chance a greedy failure is a true failure;
	// an undecided greedy match is reported, never silently treated as
	// false.
	Greedy
	// Full: default; orders aliens for best weak-constraint propagation.
	Full
)

func (s MatchStrategy) String() string {
	switch s {
	case GroundOut:
		return "GroundOut"
	case LoneVariable:
		return "LoneVariable"
	case AliensOnly:
		return "AliensOnly"
	case Greedy:
		return "Greedy"
	case Full:
		return "Full"
	default:
		return "unknown"
	}
}

// topVariable is one ACU child classified as a top-variable (spec.md
// §4.7's "variable occurring directly under the AC/ACU top symbol").
type topVariable struct {
	Term         *term.Term
	Multiplicity int
	// BoundOnEntry is true when this variable name was already seen
	// earlier in the enclosing equation's LHS (threaded in via the shared
	// seen map, see freetheory.CompileLHSWithSeen) — it determines whether
	// AliensOnly applies (every top-variable bound on entry) versus
	// GroundOut/LoneVariable (a top-variable still needs to be assigned
	// here).
	BoundOnEntry bool
}

// groundAlien is an ACU child with no variables below it anywhere,
// eliminated by exact hash/structural lookup (spec.md §4.7 step 2).
type groundAlien struct {
	Term         *term.Term
	Multiplicity int
}

// alien is a non-ground, non-variable ACU child: a subterm of a possibly
// foreign theory with variables below it, matched via the bipartite
// subproblem once its own variables are resolvable (spec.md §4.7 steps
// 4-5).
type alien struct {
	Term         *term.Term
	Multiplicity int
	// Independent reports whether this alien's variable set is disjoint
	// from every other alien's variable set — independent aliens are
	// forced first in AliensOnly ordering because no other alien could
	// consume their match (spec.md §4.7).
	Independent bool
}

// classify splits an ACU pattern's children into top-variables, ground
// aliens, and non-ground aliens, threading seen (variable-name ->
// previously bound in this equation) so top-variables can be marked
// BoundOnEntry consistently with the free-theory scan's
// Bound/UncertainVariable classification.
func classify(pattern *term.Term, seen map[uint32]bool) (vars []topVariable, ground []groundAlien, aliens []alien) {
	for _, c := range pattern.ACU {
		switch {
		case c.Term.IsVariable():
			key := uint32(c.Term.VarName)
			vars = append(vars, topVariable{Term: c.Term, Multiplicity: c.Multiplicity, BoundOnEntry: seen[key]})
			seen[key] = true
		case c.Term.IsGround():
			ground = append(ground, groundAlien{Term: c.Term, Multiplicity: c.Multiplicity})
		default:
			aliens = append(aliens, alien{Term: c.Term, Multiplicity: c.Multiplicity})
		}
	}

	// Independence: an alien's variable set disjoint from every other
	// alien's (top-variables don't count, they aren't consumed by another
	// alien's match).
	for i := range aliens {
		aliens[i].Independent = true
		for j := range aliens {
			if i == j {
				continue
			}
			if overlaps(aliens[i].Term.OccursBelow(), aliens[j].Term.OccursBelow()) {
				aliens[i].Independent = false
				break
			}
		}
	}
	return
}

func overlaps(a, b *natset.NatSet) bool {
	if a == nil || b == nil {
		return false
	}
	shared := a.Clone()
	shared.Intersect(b)
	return !shared.IsEmpty()
}

// chooseStrategy picks the MatchStrategy a pattern's shape implies,
// matching spec.md §4.7's case list. The AliensOnly/Greedy/Full
// distinction among "non-ground aliens present" cases is also fixed here,
// at compile time (AliensOnly requires every top-variable BoundOnEntry, which
// is already known once classify has run; Greedy vs Full is an engine
// configuration choice, not a shape property, so CompileLHS defaults to
// Full and a caller may override via CompileLHSWithStrategy).
func chooseStrategy(vars []topVariable, aliens []alien, preferGreedy bool) MatchStrategy {
	switch {
	case len(aliens) == 0 && len(vars) == 0:
		return GroundOut
	case len(aliens) == 0 && len(vars) == 1:
		return LoneVariable
	case allBoundOnEntry(vars):
		return AliensOnly
	case preferGreedy:
		return Greedy
	default:
		return Full
	}
}

func allBoundOnEntry(vars []topVariable) bool {
	for _, v := range vars {
		if !v.BoundOnEntry {
			return false
		}
	}
	return true
}

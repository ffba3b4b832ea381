// Package sortconstraint implements the per-symbol sort-constraint table
// of spec.md §4.10: membership axioms sorted so that constrain_to_smaller_sort
// can tighten a DAG node's sort by trying smallest-target-sort constraints
// first, restarting after every successful tightening because a smaller
// sort can unlock an entry that a larger sort's constraint could not reach.
//
// Grounded on the teacher's dag/optimizer.go constantFolding/
// commonSubexpressionElimination shape: a `for changed { ... }`
// fixed-point loop repeating a pass until no further change occurs,
// adapted here from "optimize until no rewrite applies" to "offer
// membership axioms until no new one is accepted" (lazy compile) and
// "tighten the sort until no further constraint applies" (the per-node
// loop).
package sortconstraint

import (
	"sort"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/preequation"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/symbol"
)

// Constraint pairs a compiled membership-axiom pre-equation with its
// target sort, which (per internal/preequation's PreEquation.RHS comment)
// does not live on the pre-equation itself.
type Constraint struct {
	PreEq      *preequation.PreEquation
	TargetSort *sortlat.Sort
}

// Checker matches a constraint's LHS against subject (and, if the
// constraint is conditional, evaluates its condition), returning whether
// the constraint applies. Supplied by the caller (internal/engine) since
// only it can drive the condition evaluator and RHS/subproblem solving
// machinery for a membership axiom's ordered condition.
type Checker func(c *Constraint, subject *dagnode.DagNode) (bool, error)

// Table is a module-owned registry of sort constraints, keyed by the
// symbol they apply to.
type Table struct {
	pending  map[symbol.ID][]*Constraint
	accepted map[symbol.ID][]*Constraint
	compiled bool
}

// NewTable creates an empty sort-constraint table.
func NewTable() *Table {
	return &Table{
		pending:  make(map[symbol.ID][]*Constraint),
		accepted: make(map[symbol.ID][]*Constraint),
	}
}

// OfferSortConstraint accumulates a membership axiom for later lazy
// compilation (spec.md §4.10): compile_lhs is not run until the first
// consult.
func (t *Table) OfferSortConstraint(sym *symbol.Symbol, c *Constraint) {
	t.pending[sym.ID] = append(t.pending[sym.ID], c)
	t.compiled = false
}

// Compile performs the lazy first-consult pass: re-sift the pending set
// iteratively until no new acceptance appears, compiling each newly
// accepted constraint's LHS exactly once (spec.md §4.10 "compile each
// accepted constraint's LHS once with compile(true)"), then sorts every
// symbol's accepted list by target sort index descending (a larger index
// is a smaller, more refined sort) so ConstrainToSmallerSort always tries
// the most refined candidate first.
func (t *Table) Compile(eagerContext, preferGreedyACU bool) error {
	if t.compiled {
		return nil
	}
	for {
		acceptedAny := false
		for symID, pendingList := range t.pending {
			var stillPending []*Constraint
			for _, c := range pendingList {
				if !c.PreEq.Attrs.Compiled {
					if err := c.PreEq.Compile(eagerContext, preferGreedyACU); err != nil {
						// A bad membership axiom is excluded permanently,
						// not retried on the next sift pass.
						continue
					}
				}
				if c.PreEq.Attrs.Compiled {
					t.accepted[symID] = append(t.accepted[symID], c)
					acceptedAny = true
				} else {
					stillPending = append(stillPending, c)
				}
			}
			t.pending[symID] = stillPending
		}
		if !acceptedAny {
			break
		}
	}
	for symID := range t.accepted {
		list := t.accepted[symID]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].TargetSort.Index > list[j].TargetSort.Index
		})
		t.accepted[symID] = list
	}
	t.compiled = true
	return nil
}

// ConstrainToSmallerSort implements spec.md §4.10's main loop: from
// subject's current sort index, try every accepted constraint on its
// symbol whose target sort is strictly smaller (a larger sort index); on
// success, tighten the
// sort and restart (tightening can unlock an earlier, now-applicable
// entry); stop when a full pass finds nothing to apply. Returns whether
// the subject's sort was tightened at all.
func (t *Table) ConstrainToSmallerSort(subject *dagnode.DagNode, check Checker) (bool, error) {
	if !t.compiled {
		return false, nil
	}
	constraints := t.accepted[subject.Sym.ID]
	tightened := false
	for {
		progressed := false
		for _, c := range constraints {
			if c.TargetSort.Index <= subject.SortIndex {
				continue
			}
			ok, err := check(c, subject)
			if err != nil {
				return tightened, err
			}
			if ok {
				subject.SortIndex = c.TargetSort.Index
				tightened = true
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}
	return tightened, nil
}

// Constraints returns the accepted, sorted constraint list for sym, for
// diagnostics and tests.
func (t *Table) Constraints(sym *symbol.Symbol) []*Constraint {
	return t.accepted[sym.ID]
}

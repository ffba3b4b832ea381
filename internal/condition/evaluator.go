package condition

import (
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/freetheory"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/subst"
)

// Reducer fully normalizes node by the module's equations (the
// apply_replace loop of spec.md §4.9). Condition evaluation never
// implements reduction itself — it is supplied by the caller
// (internal/engine) to avoid a package cycle, since the engine's
// equation-application loop is itself the thing that evaluates
// conditions.
type Reducer func(node *dagnode.DagNode) (*dagnode.DagNode, error)

// StateCursor enumerates the states reachable from a Rewrite fragment's
// starting term, one rule application at a time, for the
// state-transition-graph cursor of spec.md §4.8. Next returns ok=false
// once no further reachable state exists.
type StateCursor interface {
	Next() (*dagnode.DagNode, bool, error)
}

// RewriteStarter begins exploring rewrites of node, supplied by the
// caller for the same reason as Reducer.
type RewriteStarter func(node *dagnode.DagNode) StateCursor

// SortChecker decides whether the sort at nodeSortIndex is <= target.
// Supplied by the caller because only the module that owns the sort
// table can map a raw DagNode.SortIndex back to a *sortlat.Sort.
type SortChecker func(nodeSortIndex int, target *sortlat.Sort) bool

// Evaluator drives one pre-equation's ordered condition (spec.md §4.8).
type Evaluator struct {
	fragments    []Fragment
	cache        *dagnode.HashConsSet
	reduce       Reducer
	startRewrite RewriteStarter
	sortLeq      SortChecker
}

// New builds an Evaluator for fragments, sharing cache with the module's
// dagification/RHS-construction hash-cons set.
func New(fragments []Fragment, cache *dagnode.HashConsSet, reduce Reducer, startRewrite RewriteStarter, sortLeq SortChecker) *Evaluator {
	return &Evaluator{fragments: fragments, cache: cache, reduce: reduce, startRewrite: startRewrite, sortLeq: sortLeq}
}

// state is the per-fragment bookkeeping of spec.md §4.8's ConditionState:
// a substitution snapshot taken on first entry (restored on backtrack)
// plus whatever cursor/tried bit the fragment kind needs to know if it
// has another solution to offer.
type state struct {
	snapshot *subst.Substitution
	tried    bool
	cursor   StateCursor
}

// Solve implements solve_condition's two-direction traversal: forward on
// success, backward on failure, returning true once every fragment has
// succeeded or false once fragment 0 is exhausted. sub carries (and
// receives) the bindings built up across successful fragments.
func (e *Evaluator) Solve(sub *subst.Substitution) (bool, error) {
	states := make([]*state, len(e.fragments))
	i := 0
	for i >= 0 {
		if i == len(e.fragments) {
			return true, nil
		}
		if states[i] == nil {
			states[i] = &state{snapshot: sub.Clone()}
		} else {
			// Retrying a rewindable fragment: undo whatever bindings its
			// previous attempt made before it offers the next candidate,
			// while keeping its cursor/tried bookkeeping intact.
			sub.RestoreFrom(states[i].snapshot)
		}
		ok, err := e.tryFragment(i, states[i], sub)
		if err != nil {
			return false, err
		}
		if ok {
			i++
			continue
		}
		sub.RestoreFrom(states[i].snapshot)
		states[i] = nil
		i--
	}
	return false, nil
}

func (e *Evaluator) tryFragment(i int, st *state, sub *subst.Substitution) (bool, error) {
	f := e.fragments[i]
	switch f.Kind {
	case Equality:
		if st.tried {
			return false, nil
		}
		st.tried = true
		left, err := e.reduce(freetheory.BuildDagNode(f.Left, sub, e.cache))
		if err != nil {
			return false, err
		}
		right, err := e.reduce(freetheory.BuildDagNode(f.Right, sub, e.cache))
		if err != nil {
			return false, err
		}
		return dagnode.EqualShape(left, right), nil

	case SortTest:
		if st.tried {
			return false, nil
		}
		st.tried = true
		reduced, err := e.reduce(freetheory.BuildDagNode(f.Left, sub, e.cache))
		if err != nil {
			return false, err
		}
		return e.sortLeq(reduced.SortIndex, f.TargetSort), nil

	case Assignment:
		if st.tried {
			return false, nil
		}
		st.tried = true
		reduced, err := e.reduce(freetheory.BuildDagNode(f.Right, sub, e.cache))
		if err != nil {
			return false, err
		}
		return f.auto.Match(reduced, sub)

	case Rewrite:
		if st.cursor == nil {
			start := freetheory.BuildDagNode(f.Left, sub, e.cache)
			st.cursor = e.startRewrite(start)
		}
		for {
			next, ok, err := st.cursor.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			matched, err := f.auto.Match(next, sub)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}

	default:
		return false, nil
	}
}

package engine

import (
	"github.com/dagterm/rewrite/internal/automaton"
	"github.com/dagterm/rewrite/internal/condition"
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/preequation"
	"github.com/dagterm/rewrite/internal/rewritectx"
	"github.com/dagterm/rewrite/internal/sortconstraint"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
	pkgerrors "github.com/dagterm/rewrite/pkg/errors"
)

// setSortInfo computes a freshly dagified node's range sort, used as
// dagnode.Dagify's callback. A variable node's sort was already set from
// its DeclaredSort at construction time; this is a no-op for it so that
// callback does not clobber it.
func (m *Module) setSortInfo(n *dagnode.DagNode) int {
	switch n.Theory {
	case symbol.TheoryVariable:
		return n.SortIndex
	case symbol.TheoryFree:
		argSorts := make([]int, len(n.Children))
		for i, c := range n.Children {
			argSorts[i] = c.SortIndex
		}
		return symbol.RangeSortFor(n.Sym, argSorts, 0)
	case symbol.TheoryAC, symbol.TheoryACU:
		return m.rangeSortACU(n)
	}
	return 0
}

// rangeSortACU folds an AC/ACU node's sort by repeatedly applying the
// symbol's (necessarily binary-shaped) sort table one occurrence at a
// time, the runtime counterpart of Symbol::compute_multisort_index: since
// AC/ACU operators are declared with uniform binary domain/range sorts,
// the n-ary multiset's sort is the same whichever order the occurrences
// are folded in.
func (m *Module) rangeSortACU(n *dagnode.DagNode) int {
	if len(n.ACU) == 0 {
		return 0
	}
	current := -1
	for _, c := range n.ACU {
		for i := 0; i < c.Multiplicity; i++ {
			if current < 0 {
				current = c.Node.SortIndex
				continue
			}
			current = symbol.RangeSortFor(n.Sym, []int{current, c.Node.SortIndex}, 0)
		}
	}
	return current
}

// finalizeSort recomputes sort indices bottom-up for a freshly constructed
// RHS node and any of its descendants, since internal/freetheory's
// BuildDagNode builds nodes without consulting setSortInfo (it has no
// Module to resolve sort tables against). Safe to call on nodes that are
// already canonical and correctly sorted: the computation is a pure,
// idempotent function of children's sorts.
func (m *Module) finalizeSort(n *dagnode.DagNode) {
	switch n.Theory {
	case symbol.TheoryVariable:
		return
	case symbol.TheoryFree:
		for _, c := range n.Children {
			m.finalizeSort(c)
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		for _, c := range n.ACU {
			m.finalizeSort(c.Node)
		}
	}
	n.SortIndex = m.setSortInfo(n)
}

// sortLeqChecker resolves a raw sort index back to a *sortlat.Sort within
// target's component and tests Leq, satisfying condition.SortChecker.
func (m *Module) sortLeqChecker(nodeSortIndex int, target *sortlat.Sort) bool {
	nodeSort := target.Component.SortByIndex(nodeSortIndex)
	return sortlat.Leq(nodeSort, target)
}

func (m *Module) reduceForCondition(ctx *rewritectx.RewritingContext) condition.Reducer {
	return func(node *dagnode.DagNode) (*dagnode.DagNode, error) {
		return m.reduceNode(node, ctx, -1, 0)
	}
}

func (m *Module) startRewriteForCondition(ctx *rewritectx.RewritingContext) condition.RewriteStarter {
	return func(node *dagnode.DagNode) condition.StateCursor {
		return &ruleCursor{m: m, ctx: ctx, current: node}
	}
}

// checkSortConstraint adapts a membership axiom's match+condition solve
// into a sortconstraint.Checker for the module's sort-constraint table.
func (m *Module) checkSortConstraint(ctx *rewritectx.RewritingContext) sortconstraint.Checker {
	return func(c *sortconstraint.Constraint, subject *dagnode.DagNode) (bool, error) {
		sub := subst.New(c.PreEq.VarCount())
		matched, err := c.PreEq.MatchLHS(subject, sub)
		if err != nil || !matched {
			return false, err
		}
		if len(c.PreEq.Condition) > 0 {
			subCtx := ctx.NewSubcontext(subject)
			ev := condition.New(c.PreEq.Condition, m.Cache, m.reduceForCondition(subCtx), m.startRewriteForCondition(subCtx), m.sortLeqChecker)
			ok, err := ev.Solve(sub)
			ctx.TransferCountsFrom(subCtx)
			if err != nil || !ok {
				return false, err
			}
		}
		ctx.Counters.MembershipCount++
		m.sink.TraceMembership(c.PreEq.Label, subject, m.Names.Lookup(c.TargetSort.Name))
		return true, nil
	}
}

// ruleCursor enumerates one straight-line sequence of rule applications
// starting from current, applying the first matching rule (in
// registration order) on each Next call. This is a deliberate
// simplification of a true nondeterministic rewrite-reachability search
// (unification-based variant narrowing is explicitly out of scope,
// spec.md Non-goals): a Rewrite condition fragment only ever needs one
// witness path to a state matching its pattern, not every reachable state.
type ruleCursor struct {
	m       *Module
	ctx     *rewritectx.RewritingContext
	current *dagnode.DagNode
	idx     int
	done    bool
}

func (r *ruleCursor) Next() (*dagnode.DagNode, bool, error) {
	if r.done {
		return nil, false, nil
	}
	sym := r.current.Sym
	if sym == nil {
		r.done = true
		return nil, false, nil
	}
	for r.idx < len(sym.RuleIDs) {
		ruleID := sym.RuleIDs[r.idx]
		r.idx++
		pe := r.m.preEquations[ruleID]
		if !pe.Attrs.Compiled {
			continue
		}
		sub := subst.New(pe.VarCount())
		matched, err := pe.MatchLHS(r.current, sub)
		if err != nil {
			return nil, false, err
		}
		if !matched {
			continue
		}
		if len(pe.Condition) > 0 {
			subCtx := r.ctx.NewSubcontext(r.current)
			ev := condition.New(pe.Condition, r.m.Cache, r.m.reduceForCondition(subCtx), r.m.startRewriteForCondition(subCtx), r.m.sortLeqChecker)
			ok, err := ev.Solve(sub)
			r.ctx.TransferCountsFrom(subCtx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
		}
		result := pe.BuildRHS(sub, r.m.Cache)
		r.m.finalizeSort(result)
		r.m.sink.TraceRule(pe.Label, r.current, result)
		r.ctx.Counters.RuleCount++
		r.current = result
		return result, true, nil
	}
	r.done = true
	return nil, false, nil
}

// applyReplace tries node's symbol's equations in registration order,
// applying (and overwriting node in place with) the first whose LHS
// matches and whose condition (if any) solves, per spec.md §4.9. Returns
// whether an equation was applied.
func (m *Module) applyReplace(node *dagnode.DagNode, ctx *rewritectx.RewritingContext) (bool, error) {
	if node.Sym == nil {
		return false, nil
	}

	memoable := node.Sym.MemoFlag && m.Memo != nil
	var preHash uint64
	if memoable {
		preHash = node.Hash()
		if cached, ok := m.Memo.Lookup(preHash); ok {
			dagnode.OverwriteWithClone(node, cached)
			return true, nil
		}
	}

	candidateIDs := node.Sym.EquationIDs
	if net, ok := m.nets[node.Sym]; ok {
		candidateIDs = filterByCandidates(candidateIDs, net.Candidates(node))
	}

	for _, eqID := range candidateIDs {
		pe := m.preEquations[eqID]
		if !pe.Attrs.Compiled {
			continue
		}
		sub := subst.New(pe.VarCount())
		matched, err := pe.MatchLHS(node, sub)
		if err != nil {
			return false, err
		}
		if !matched {
			continue
		}
		if len(pe.Condition) > 0 {
			subCtx := ctx.NewSubcontext(node)
			ev := condition.New(pe.Condition, m.Cache, m.reduceForCondition(subCtx), m.startRewriteForCondition(subCtx), m.sortLeqChecker)
			ok, err := ev.Solve(sub)
			ctx.TransferCountsFrom(subCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
		}
		result := pe.BuildRHS(sub, m.Cache)
		m.finalizeSort(result)
		if result == node {
			// Trivial/self-looping equation (spec.md §8 scenario 2, e.g.
			// s(s(x)) = s(s(x))): the RHS dagifies, through the same
			// hash-cons set as the subject, back to the exact node being
			// rewritten. OverwriteWithClone(node, node) would be a no-op
			// that still reports "applied", which never lets reduceNode's
			// loop see applied == false — treat it as not firing and keep
			// trying the remaining equations instead of spinning forever.
			continue
		}
		m.sink.TraceEquation(pe.Label, node, result)
		dagnode.OverwriteWithClone(node, result)
		ctx.Counters.EquationCount++
		if memoable {
			m.Memo.Insert(preHash, dagnode.CopyAll(node))
		}
		return true, nil
	}
	return false, nil
}

// filterByCandidates keeps the elements of ids that also appear in
// allowed, preserving ids' original order (spec.md §4.9 registration
// order) — the discrimination net's candidate set is consulted purely to
// prune, never to reorder, matching equations.
func filterByCandidates(ids, allowed []int) []int {
	keep := make(map[int]bool, len(allowed))
	for _, id := range allowed {
		keep[id] = true
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

// reduceNode normalizes node and every eagerly-strategied descendant to a
// fixed point under the module's equations and sort constraints
// (apply_replace, spec.md §4.9). parent/argIdx place node on ctx's redex
// stack for profiling/tracing consumers; Reduce itself does not use the
// stack for rebuilding (equation rewriting is in-place, spec.md §4.4's
// "O(1) from the parent's perspective" — only Rewrite's rule application
// needs rebuild_upto_root, since it deliberately avoids mutating shared
// structure).
func (m *Module) reduceNode(node *dagnode.DagNode, ctx *rewritectx.RewritingContext, parent, argIdx int) (*dagnode.DagNode, error) {
	if node.IsReduced() && node.IsGround() {
		return node, nil
	}
	if ctx.Aborted() {
		return node, pkgerrors.NewAbort("aborted before reducing subterm")
	}
	selfIdx := ctx.PushRedex(node, parent, argIdx, 0)

	for {
		switch node.Theory {
		case symbol.TheoryFree:
			for i, child := range node.Children {
				eager := node.Sym == nil || i >= len(node.Sym.Strategy) || node.Sym.EagerArgument(i)
				if !eager {
					continue
				}
				reducedChild, err := m.reduceNode(child, ctx, selfIdx, i)
				if err != nil {
					return node, err
				}
				node.Children[i] = reducedChild
			}
		case symbol.TheoryAC, symbol.TheoryACU:
			for i := range node.ACU {
				reducedChild, err := m.reduceNode(node.ACU[i].Node, ctx, selfIdx, i)
				if err != nil {
					return node, err
				}
				node.ACU[i].Node = reducedChild
			}
		}

		applied, err := m.applyReplace(node, ctx)
		if err != nil {
			return node, err
		}
		if !applied {
			break
		}
		if ctx.Aborted() {
			return node, pkgerrors.NewAbort("aborted during equation application")
		}
	}

	if node.Theory != symbol.TheoryVariable {
		if _, err := m.SortConstraints.ConstrainToSmallerSort(node, m.checkSortConstraint(ctx)); err != nil {
			return node, err
		}
	}
	node.MarkReduced()
	return node, nil
}

// Reduce dagifies t and normalizes it to equational normal form, returning
// the resulting DAG node and the context the reduction ran in (its
// Counters report membership/equation/rule application totals).
func (m *Module) Reduce(t *term.Term) (*dagnode.DagNode, *rewritectx.RewritingContext, error) {
	if err := m.requireState(StateTheoryClosed); err != nil {
		return nil, nil, err
	}
	root := dagnode.Dagify(t, m.Cache, m.setSortInfo)
	ctx := rewritectx.New(root)
	reduced, err := m.reduceNode(root, ctx, rewritectx.RootOK, 0)
	m.sink.TraceWhole(reduced)
	return reduced, ctx, err
}

// searchAndApplyRule performs a pre-order search for the first node
// (including root) whose top symbol has a rule that matches, applying it
// immediately via a one-shot ruleCursor and returning the redex stack
// index of the matched node together with the rule's RHS result.
func (m *Module) searchAndApplyRule(node *dagnode.DagNode, ctx *rewritectx.RewritingContext, parent, argIdx int) (int, *dagnode.DagNode, bool, error) {
	selfIdx := ctx.PushRedex(node, parent, argIdx, 0)
	if node.Sym != nil && len(node.Sym.RuleIDs) > 0 {
		cur := &ruleCursor{m: m, ctx: ctx, current: node}
		result, ok, err := cur.Next()
		if err != nil {
			return 0, nil, false, err
		}
		if ok {
			return selfIdx, result, true, nil
		}
	}
	switch node.Theory {
	case symbol.TheoryFree:
		for i, c := range node.Children {
			if idx, res, ok, err := m.searchAndApplyRule(c, ctx, selfIdx, i); err != nil || ok {
				return idx, res, ok, err
			}
		}
	case symbol.TheoryAC, symbol.TheoryACU:
		for i, c := range node.ACU {
			if idx, res, ok, err := m.searchAndApplyRule(c.Node, ctx, selfIdx, i); err != nil || ok {
				return idx, res, ok, err
			}
		}
	}
	return 0, nil, false, nil
}

// Rewrite reduces t to normal form, then applies rules on demand up to
// bound times, renormalizing with equations after each rule application
// (the conventional reduce/rewrite/reduce cycle), using the redex stack's
// rebuild_upto_root to splice each rule result back to the root without
// disturbing structure off the rewritten path (spec.md §4.11). A
// non-positive bound falls back to the module's configured default.
// Running out of rules to apply, or reaching bound, both end the loop
// without error (spec.md §7 "Limit reached").
func (m *Module) Rewrite(t *term.Term, bound int) (*dagnode.DagNode, *rewritectx.RewritingContext, error) {
	if bound <= 0 {
		bound = m.Config.DefaultRewriteBound
	}
	reduced, ctx, err := m.Reduce(t)
	if err != nil {
		return reduced, ctx, err
	}
	for applied := 0; applied < bound; applied++ {
		ctx.ClearStack()
		idx, result, found, err := m.searchAndApplyRule(reduced, ctx, rewritectx.RootOK, 0)
		if err != nil {
			return reduced, ctx, err
		}
		if !found {
			break
		}
		ctx.MarkStale(idx)
		reduced = ctx.RebuildUpToRoot(result)

		reduced, err = m.reduceNode(reduced, ctx, rewritectx.RootOK, 0)
		if err != nil {
			return reduced, ctx, err
		}
	}
	return reduced, ctx, nil
}

// MatchIterator yields at most one substitution for a pattern against a
// subject: this engine's compiled automata (internal/automaton) report a
// single witness rather than enumerating every match, the same
// documented limitation condition.Fragment.rewindable() notes for
// Assignment fragments.
type MatchIterator struct {
	sub  *subst.Substitution
	ok   bool
	done bool
}

// Next returns the (only) solution, if Match succeeded, then false on
// every subsequent call.
func (it *MatchIterator) Next() (*subst.Substitution, bool, error) {
	if it.done {
		return nil, false, nil
	}
	it.done = true
	return it.sub, it.ok, nil
}

// Match compiles pattern's automaton and runs it against subject.
func (m *Module) Match(pattern *term.Term, subject *dagnode.DagNode) (*MatchIterator, error) {
	if err := m.requireState(StateTheoryClosed); err != nil {
		return nil, err
	}
	vars := preequation.NewVariableInfo()
	vars.IndexLHS(pattern)
	pattern.Normalize()
	auto := automaton.CompileWithConfig(pattern, m.Config.PreferGreedyACU)
	sub := subst.New(vars.Count())
	ok, err := auto.Match(subject, sub)
	if err != nil {
		return nil, err
	}
	return &MatchIterator{sub: sub, ok: ok}, nil
}

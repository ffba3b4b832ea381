// Package rewritectx implements the rewriting context of spec.md §4.11: a
// redex stack with stale markers, counters, an attribute bitfield, and
// subcontext plumbing for conditions and sort evaluation.
//
// Grounded on the teacher's dag/evaluator.go DagEvaluator: counters
// (nodesEvaluated/primitiveEvaluations), a reset() between runs, and a
// standard-vs-fast path selected by size — generalized here to the
// redex-stack rebuild loop and ControlFlow-style abort plumbing per
// SPEC_FULL.md §9's Design Notes guidance.
package rewritectx

import "github.com/dagterm/rewrite/internal/dagnode"

// Attributes is the context attribute bitfield of spec.md §3: "trace,
// local-trace, abort, step, ctrl-c, info, interactive, silent,
// debug-mode".
type Attributes uint16

const (
	AttrTrace Attributes = 1 << iota
	AttrLocalTrace
	AttrAbort
	AttrStep
	AttrCtrlC
	AttrInfo
	AttrInteractive
	AttrSilent
	AttrDebugMode
)

// RedexFlags are the per-stack-entry flags of spec.md §3: "flags{stale,
// eager}".
type RedexFlags uint8

const (
	FlagStale RedexFlags = 1 << iota
	FlagEager
)

// RootOK is the stale-marker sentinel meaning "no ancestor needs
// rebuilding" (spec.md glossary: "Stale marker").
const RootOK = -1

// RedexEntry is one position on the redex stack: the node at that
// position, the stack index of its parent (-1 for the root), the
// argument index within the parent it occupies, and its flags.
type RedexEntry struct {
	Node     *dagnode.DagNode
	Parent   int
	ArgIndex int
	Flags    RedexFlags
}

// Counters are the statistics of spec.md §3: "membership/equation/rule
// counts".
type Counters struct {
	MembershipCount int
	EquationCount   int
	RuleCount       int
}

// Add accumulates other's counts into c.
func (c *Counters) Add(other Counters) {
	c.MembershipCount += other.MembershipCount
	c.EquationCount += other.EquationCount
	c.RuleCount += other.RuleCount
}

// RewritingContext is spec.md §3/§4.11's rewriting context, rooted at a
// DAG node.
type RewritingContext struct {
	Root        *dagnode.DagNode
	Counters    Counters
	Attrs       Attributes
	Parent      *RewritingContext

	redexStack  []RedexEntry
	staleMarker int
}

// New creates a rewriting context rooted at root.
func New(root *dagnode.DagNode) *RewritingContext {
	return &RewritingContext{Root: root, staleMarker: RootOK}
}

// NewSubcontext creates a subcontext rooted at root for evaluating a
// condition fragment or a sort-constraint check, inheriting the
// local-trace attribute from its parent (spec.md §4.11).
func (c *RewritingContext) NewSubcontext(root *dagnode.DagNode) *RewritingContext {
	sub := New(root)
	sub.Parent = c
	if c.Attrs&AttrLocalTrace != 0 {
		sub.Attrs |= AttrLocalTrace
	}
	return sub
}

// TransferCountsFrom forwards a subcontext's counters back into its
// parent (spec.md §4.11).
func (c *RewritingContext) TransferCountsFrom(child *RewritingContext) {
	c.Counters.Add(child.Counters)
}

// Abort sets the sticky abort attribute (spec.md §7): "unwinds the
// current solve and returns up to the top-level."
func (c *RewritingContext) Abort() { c.Attrs |= AttrAbort }

// Aborted reports whether this context (or an ancestor, since abort
// propagates up) has been aborted.
func (c *RewritingContext) Aborted() bool {
	for ctx := c; ctx != nil; ctx = ctx.Parent {
		if ctx.Attrs&AttrAbort != 0 {
			return true
		}
	}
	return false
}

// PushRedex records a new position on the redex stack and returns its
// index, for use as a later call's Parent argument.
func (c *RewritingContext) PushRedex(node *dagnode.DagNode, parent, argIndex int, flags RedexFlags) int {
	c.redexStack = append(c.redexStack, RedexEntry{Node: node, Parent: parent, ArgIndex: argIndex, Flags: flags})
	return len(c.redexStack) - 1
}

// MarkStale records idx as the deepest ancestor that must be rebuilt,
// keeping the shallowest (smallest index, i.e. closest to the root)
// outstanding marker if several rewrites occur before a rebuild.
func (c *RewritingContext) MarkStale(idx int) {
	c.redexStack[idx].Flags |= FlagStale
	if c.staleMarker == RootOK || idx < c.staleMarker {
		c.staleMarker = idx
	}
}

// StaleMarker returns the current stale-marker index, or RootOK if
// nothing needs rebuilding.
func (c *RewritingContext) StaleMarker() int { return c.staleMarker }

// RedexStack exposes the stack for inspection (profiling/tracing, tests).
func (c *RewritingContext) RedexStack() []RedexEntry { return c.redexStack }

// ClearStack resets the redex stack and stale marker, called between
// independent top-level rewrite drives that share one context.
func (c *RewritingContext) ClearStack() {
	c.redexStack = c.redexStack[:0]
	c.staleMarker = RootOK
}

// RebuildUpToRoot walks from the deepest stale entry toward the root,
// using dagnode.CopyWithReplacements at each level to splice the rewritten
// leaf back into its ancestors, and sets the stale marker back to RootOK
// (spec.md §4.11). It returns the (possibly new) root node.
func (c *RewritingContext) RebuildUpToRoot(rewrittenLeaf *dagnode.DagNode) *dagnode.DagNode {
	if c.staleMarker == RootOK || len(c.redexStack) == 0 {
		return c.Root
	}

	current := rewrittenLeaf
	for i := c.staleMarker; i >= 0; {
		entry := c.redexStack[i]
		if entry.Parent < 0 {
			c.Root = current
			break
		}
		parent := &c.redexStack[entry.Parent]
		parent.Node = dagnode.CopyWithReplacements(parent.Node, []dagnode.Replacement{{Position: entry.ArgIndex, Node: current}})
		parent.Flags &^= FlagStale
		current = parent.Node
		i = entry.Parent
	}
	c.staleMarker = RootOK
	return c.Root
}

package rewritectx_test

import (
	"testing"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/rewritectx"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(sym *symbol.Symbol) *dagnode.DagNode {
	n := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: sym}
	n.MarkReduced()
	return n
}

func free(sym *symbol.Symbol, children ...*dagnode.DagNode) *dagnode.DagNode {
	n := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: sym, Children: children}
	n.MarkReduced()
	return n
}

func mustSymbol(t *testing.T, name string, arity int) *symbol.Symbol {
	t.Helper()
	sym, err := symbol.New(symbol.ID(0), 0, uint64(len(name)), arity, nil, symbol.TheoryFree, false)
	require.NoError(t, err)
	return sym
}

// TestRebuildUpToRoot_SplicesLeafThroughTwoAncestors builds f(g(a), b) and
// rewrites the leaf a to a', then rebuilds: the result must share b and the
// g-node's identity slot unchanged in shape while replacing a with a', and
// the f-node itself must be a fresh CopyWithReplacements clone (spec.md
// §4.11).
func TestRebuildUpToRoot_SplicesLeafThroughTwoAncestors(t *testing.T) {
	fSym := mustSymbol(t, "f", 2)
	gSym := mustSymbol(t, "g", 1)
	aSym := mustSymbol(t, "a", 0)
	bSym := mustSymbol(t, "b", 0)
	aPrimeSym := mustSymbol(t, "a-prime", 0)

	a := leaf(aSym)
	b := leaf(bSym)
	g := free(gSym, a)
	root := free(fSym, g, b)

	ctx := rewritectx.New(root)
	rootIdx := ctx.PushRedex(root, rewritectx.RootOK, 0, 0)
	gIdx := ctx.PushRedex(g, rootIdx, 0, 0)
	aIdx := ctx.PushRedex(a, gIdx, 0, 0)

	aPrime := leaf(aPrimeSym)
	ctx.MarkStale(aIdx)
	newRoot := ctx.RebuildUpToRoot(aPrime)

	require.NotSame(t, root, newRoot, "rebuild produces a fresh root, not an in-place mutation")
	assert.Same(t, aPrime, newRoot.Children[0].Children[0])
	assert.Same(t, b, newRoot.Children[1])
	assert.Equal(t, rewritectx.RootOK, ctx.StaleMarker())
}

func TestRebuildUpToRoot_NoopWithoutAPriorMarkStale(t *testing.T) {
	aSym := mustSymbol(t, "a", 0)
	root := leaf(aSym)
	ctx := rewritectx.New(root)
	ctx.PushRedex(root, rewritectx.RootOK, 0, 0)

	got := ctx.RebuildUpToRoot(leaf(aSym))
	assert.Same(t, root, got, "RebuildUpToRoot is a no-op when nothing was marked stale")
}

func TestSubcontextTransferCountsFrom(t *testing.T) {
	root := leaf(mustSymbol(t, "a", 0))
	parent := rewritectx.New(root)
	child := parent.NewSubcontext(root)

	child.Counters.EquationCount = 3
	child.Counters.RuleCount = 1
	parent.TransferCountsFrom(child)

	assert.Equal(t, 3, parent.Counters.EquationCount)
	assert.Equal(t, 1, parent.Counters.RuleCount)
}

func TestSubcontextInheritsLocalTrace(t *testing.T) {
	root := leaf(mustSymbol(t, "a", 0))
	parent := rewritectx.New(root)
	parent.Attrs |= rewritectx.AttrLocalTrace

	child := parent.NewSubcontext(root)
	assert.NotZero(t, child.Attrs&rewritectx.AttrLocalTrace)
}

func TestAbortPropagatesUpTheParentChain(t *testing.T) {
	root := leaf(mustSymbol(t, "a", 0))
	grandparent := rewritectx.New(root)
	parent := grandparent.NewSubcontext(root)
	child := parent.NewSubcontext(root)

	assert.False(t, child.Aborted())
	grandparent.Abort()
	assert.True(t, child.Aborted(), "abort set on an ancestor must be visible from every descendant")
}

func TestClearStackResetsStaleMarker(t *testing.T) {
	root := leaf(mustSymbol(t, "a", 0))
	ctx := rewritectx.New(root)
	idx := ctx.PushRedex(root, rewritectx.RootOK, 0, 0)
	ctx.MarkStale(idx)
	require.NotEqual(t, rewritectx.RootOK, ctx.StaleMarker())

	ctx.ClearStack()
	assert.Equal(t, rewritectx.RootOK, ctx.StaleMarker())
	assert.Empty(t, ctx.RedexStack())
}

package sortconstraint_test

import (
	"testing"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/preequation"
	"github.com/dagterm/rewrite/internal/sortconstraint"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildNatLattice builds Nat <= Even, Nat <= Odd (Even/Odd as unrelated
// siblings below Nat's kind), and a zero-arity symbol zero : -> Nat plus a
// unary symbol s : Nat -> Nat, mirroring spec.md §8 scenario 4's "Even
// sort via membership" example.
func buildNatLattice(t *testing.T) (names *ident.Table, comp *sortlat.Component, nat, even, odd *sortlat.Sort, zeroSym, sSym *symbol.Symbol) {
	t.Helper()
	names = ident.NewTable()
	comp = sortlat.NewComponent(names.Intern("Kind"))
	natIdx, err := comp.DeclareSort(names.Intern("Nat"))
	require.NoError(t, err)
	evenIdx, err := comp.DeclareSort(names.Intern("Even"))
	require.NoError(t, err)
	oddIdx, err := comp.DeclareSort(names.Intern("Odd"))
	require.NoError(t, err)
	require.NoError(t, comp.DeclareSubsort(evenIdx, natIdx))
	require.NoError(t, comp.DeclareSubsort(oddIdx, natIdx))
	comp.Close()

	nat = comp.SortByIndex(natIdx)
	even = comp.SortByIndex(evenIdx)
	odd = comp.SortByIndex(oddIdx)

	zeroSym, err = symbol.New(0, names.Intern("zero"), names.HashOf(names.Intern("zero")), 0, nil, symbol.TheoryFree, false)
	require.NoError(t, err)
	zeroSym.SortTable.AddDeclaration(nil, nat.Index)

	sSym, err = symbol.New(1, names.Intern("s"), names.HashOf(names.Intern("s")), 1, nil, symbol.TheoryFree, false)
	require.NoError(t, err)
	sSym.SortTable.AddDeclaration([]int{nat.Index}, nat.Index)

	return names, comp, nat, even, odd, zeroSym, sSym
}

// dagify builds a chain of n applications of s around a zero leaf, e.g.
// n=2 gives s(s(zero)), entirely by hand (no Module in this package).
func dagifyChain(zeroSym, sSym *symbol.Symbol, natIdx int, n int, cache *dagnode.HashConsSet) *dagnode.DagNode {
	node := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: zeroSym, SortIndex: natIdx}
	node.MarkReduced()
	node, _ = cache.Canonicalize(node)
	for i := 0; i < n; i++ {
		next := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: sSym, Children: []*dagnode.DagNode{node}, SortIndex: natIdx}
		next.MarkReduced()
		next, _ = cache.Canonicalize(next)
		node = next
	}
	return node
}

func TestTableConstrainToSmallerSort_EvenOddAlternation(t *testing.T) {
	names, _, nat, even, odd, zeroSym, sSym := buildNatLattice(t)
	cache := dagnode.NewHashConsSet()

	// zero : Even.
	zeroVar := term.NewFree(zeroSym, nil)
	zeroVar.Normalize()
	zeroPE := preequation.New(preequation.MembershipKind, "zero-even", zeroVar, nil, nil, preequation.Attributes{})
	require.NoError(t, zeroPE.Compile(true, false))

	// s(X:Odd) : Even, and s(X:Even) : Odd — conditionless, sorted purely
	// by declared variable sort via a SortTest-free structural pattern:
	// since this package's matcher works on dag nodes, we approximate the
	// "X already has sort Odd/Even" condition with a SortTest fragment
	// against the matched variable.
	xName := names.Intern("X")

	xVarOdd := term.NewVariable(xName, odd.Index)
	sOverOdd := term.NewFree(sSym, []*term.Term{xVarOdd})
	sOverOdd.Normalize()
	sOddPE := preequation.New(preequation.MembershipKind, "s-odd-to-even", sOverOdd, nil, nil, preequation.Attributes{})
	require.NoError(t, sOddPE.Compile(true, false))

	xVarEven := term.NewVariable(xName, even.Index)
	sOverEven := term.NewFree(sSym, []*term.Term{xVarEven})
	sOverEven.Normalize()
	sEvenPE := preequation.New(preequation.MembershipKind, "s-even-to-odd", sOverEven, nil, nil, preequation.Attributes{})
	require.NoError(t, sEvenPE.Compile(true, false))

	table := sortconstraint.NewTable()
	table.OfferSortConstraint(zeroSym, &sortconstraint.Constraint{PreEq: zeroPE, TargetSort: even})
	table.OfferSortConstraint(sSym, &sortconstraint.Constraint{PreEq: sOddPE, TargetSort: even})
	table.OfferSortConstraint(sSym, &sortconstraint.Constraint{PreEq: sEvenPE, TargetSort: odd})
	require.NoError(t, table.Compile(true, false))

	check := func(c *sortconstraint.Constraint, subject *dagnode.DagNode) (bool, error) {
		sub := subst.New(c.PreEq.VarCount())
		return c.PreEq.MatchLHS(subject, sub)
	}

	// zero itself starts at Nat (the coarsest declared sort) and should
	// tighten straight to Even.
	zero := dagifyChain(zeroSym, sSym, nat.Index, 0, cache)
	tightened, err := table.ConstrainToSmallerSort(zero, check)
	require.NoError(t, err)
	assert.True(t, tightened)
	assert.Equal(t, even.Index, zero.SortIndex)

	// s(zero) = 1: zero is Even, so s(zero:Even) matches the "s-even-to-odd"
	// membership, tightening to Odd.
	one := dagifyChain(zeroSym, sSym, nat.Index, 1, cache)
	// The child's sort must already be tightened for the pattern to match;
	// simulate that by tightening it first, as reduceNode would bottom-up.
	_, err = table.ConstrainToSmallerSort(one.Children[0], check)
	require.NoError(t, err)
	tightened, err = table.ConstrainToSmallerSort(one, check)
	require.NoError(t, err)
	assert.True(t, tightened)
	assert.Equal(t, odd.Index, one.SortIndex)
}

func TestTableCompile_IsIdempotentAndLazy(t *testing.T) {
	_, _, nat, even, _, zeroSym, _ := buildNatLattice(t)
	table := sortconstraint.NewTable()

	zeroVar := term.NewFree(zeroSym, nil)
	zeroVar.Normalize()
	pe := preequation.New(preequation.MembershipKind, "zero-even", zeroVar, nil, nil, preequation.Attributes{})

	table.OfferSortConstraint(zeroSym, &sortconstraint.Constraint{PreEq: pe, TargetSort: even})
	assert.Empty(t, table.Constraints(zeroSym), "nothing is compiled before the first Compile call")

	require.NoError(t, table.Compile(true, false))
	assert.Len(t, table.Constraints(zeroSym), 1)
	assert.True(t, pe.Attrs.Compiled)

	// A second Compile call is a cheap no-op, not a re-sift.
	require.NoError(t, table.Compile(true, false))
	assert.Len(t, table.Constraints(zeroSym), 1)

	_ = nat
}

func TestTableConstrainToSmallerSort_UncompiledTableIsNoop(t *testing.T) {
	table := sortconstraint.NewTable()
	cache := dagnode.NewHashConsSet()
	_, _, nat, _, _, zeroSym, sSym := buildNatLattice(t)
	zero := dagifyChain(zeroSym, sSym, nat.Index, 0, cache)

	tightened, err := table.ConstrainToSmallerSort(zero, func(*sortconstraint.Constraint, *dagnode.DagNode) (bool, error) {
		t.Fatal("checker should never be invoked before Compile")
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, tightened)
}

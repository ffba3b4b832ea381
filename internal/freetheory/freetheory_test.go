package freetheory

import (
	"testing"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

func setup() (*ident.Table, *symbol.Table) {
	return ident.NewTable(), symbol.NewTable()
}

func noAliens(_ *term.Term, _ *dagnode.DagNode, _ *subst.Substitution) (bool, Subproblem, error) {
	return false, nil, nil
}

func TestCompileLHSClassifiesLeaves(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	x.VarIndex = 0
	xRepeat := term.NewVariable(names.Intern("x"), 0)
	xRepeat.VarIndex = 0

	pattern := term.NewFree(f, []*term.Term{x, xRepeat}).Normalize()

	automaton := CompileLHS(pattern)
	if len(automaton.leaves) != 3 { // f itself + two variable occurrences
		t.Fatalf("expected 3 leaves (1 free + 2 variable), got %d", len(automaton.leaves))
	}
	if automaton.leaves[0].Kind != FreeOccurrence {
		t.Fatalf("expected the root to classify as FreeOccurrence")
	}
	if automaton.leaves[1].Kind != UncertainVariable {
		t.Fatalf("first occurrence of x should be UncertainVariable, got %v", automaton.leaves[1].Kind)
	}
	if automaton.leaves[2].Kind != BoundVariable {
		t.Fatalf("repeated occurrence of x should be BoundVariable, got %v", automaton.leaves[2].Kind)
	}
}

func TestMatchBindsVariablesAndChecksRepeats(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	x.VarIndex = 0
	xRepeat := term.NewVariable(names.Intern("x"), 0)
	xRepeat.VarIndex = 0
	pattern := term.NewFree(f, []*term.Term{x, xRepeat}).Normalize()
	automaton := CompileLHS(pattern)

	cache := dagnode.NewHashConsSet()
	aNode := dagnode.Dagify(term.NewFree(a, nil).Normalize(), cache, nil)
	bNode := dagnode.Dagify(term.NewFree(b, nil).Normalize(), cache, nil)

	matching := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: f, Children: []*dagnode.DagNode{aNode, aNode}}
	mismatching := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: f, Children: []*dagnode.DagNode{aNode, bNode}}

	sub := subst.New(1)
	ok, _, err := automaton.Match(matching, sub, noAliens)
	if err != nil || !ok {
		t.Fatalf("expected f(a,a) to match f(x,x): ok=%v err=%v", ok, err)
	}
	if sub.Value(0) != aNode {
		t.Fatalf("expected x bound to a")
	}

	sub2 := subst.New(1)
	ok, _, err = automaton.Match(mismatching, sub2, noAliens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected f(a,b) not to match f(x,x) since x must be consistent")
	}
}

func TestMatchRejectsWrongSymbolOrArity(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	g, _ := syms.Declare(names, "g", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	pattern := term.NewFree(f, []*term.Term{term.NewFree(a, nil)}).Normalize()
	automaton := CompileLHS(pattern)

	cache := dagnode.NewHashConsSet()
	aNode := dagnode.Dagify(term.NewFree(a, nil).Normalize(), cache, nil)
	subject := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: g, Children: []*dagnode.DagNode{aNode}}

	sub := subst.New(0)
	ok, _, err := automaton.Match(subject, sub, noAliens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected g(a) not to match f(a)")
	}
}

func TestChooseAlienOrderPrefersGreaterGroundingCoverage(t *testing.T) {
	names, syms := setup()
	p, _ := syms.Declare(names, "p", 2, nil, symbol.TheoryACU, false)
	q, _ := syms.Declare(names, "q", 2, nil, symbol.TheoryACU, false)

	x := term.NewVariable(names.Intern("x"), 0)
	x.VarIndex = 0
	y := term.NewVariable(names.Intern("y"), 0)
	y.VarIndex = 1
	z := term.NewVariable(names.Intern("z"), 0)
	z.VarIndex = 2

	// alienSmall grounds 1 variable, alienBig grounds 2.
	alienSmall := term.NewACU(symbol.TheoryACU, p, []term.ACUChild{{Term: x, Multiplicity: 1}}).Normalize()
	alienBig := term.NewACU(symbol.TheoryACU, q, []term.ACUChild{{Term: y, Multiplicity: 1}, {Term: z, Multiplicity: 1}}).Normalize()

	leaves := []Leaf{
		{Kind: NonGroundAlien, Pattern: alienSmall},
		{Kind: NonGroundAlien, Pattern: alienBig},
	}
	order := chooseAlienOrder(leaves)
	if len(order) != 2 || order[0] != 1 {
		t.Fatalf("expected the alien grounding more variables (index 1) to be scheduled first, got order=%v", order)
	}
}

func TestCompileAndBuildRHSReusesTermBag(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	shared := term.NewFree(a, nil).Normalize()
	rhs := term.NewFree(f, []*term.Term{shared, shared}).Normalize()

	bag := NewTermBag()
	automaton := CompileRHS(rhs, bag, true)

	cache := dagnode.NewHashConsSet()
	sub := subst.New(0)
	node := automaton.Build(sub, cache)

	if node.Children[0] != node.Children[1] {
		t.Fatalf("expected both occurrences of the shared subterm to build the same node")
	}
	if shared.SaveIndex() < 0 {
		t.Fatalf("expected the shared subterm to receive a construction index from the term bag")
	}
}

// TestBuildDagNodeConsultsMemoBeforeRebuilding is a white-box companion to
// TestCompileAndBuildRHSReusesTermBag: that test's Children[0] == Children[1]
// assertion would hold even if the save-index memo were never consulted,
// since cache.Canonicalize dedupes any two structurally-equal nodes on its
// own (EqualShape is purely structural, see dagnode.go). To prove
// buildDagNode's memo lookup is actually exercised and not merely dead
// machinery riding on hash-consing, this poisons the memo slot for a
// reserved subterm with a distinguishable sentinel node and confirms the
// second build returns that exact sentinel instead of reconstructing from t.
func TestBuildDagNodeConsultsMemoBeforeRebuilding(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	sentinelSym, _ := syms.Declare(names, "sentinel", 0, nil, symbol.TheoryFree, false)

	shared := term.NewFree(a, nil).Normalize()
	rhs := term.NewFree(f, []*term.Term{shared, shared}).Normalize()

	bag := NewTermBag()
	idx := bag.Reserve(shared, true)
	if idx < 0 {
		t.Fatalf("expected a non-negative construction index from Reserve")
	}

	cache := dagnode.NewHashConsSet()
	sub := subst.New(0)
	memo := make(map[int]*dagnode.DagNode, 1)

	first := buildDagNode(shared, sub, cache, memo)
	if first.Sym != a {
		t.Fatalf("expected the first build to construct the real term, got sym %v", first.Sym)
	}

	sentinel := &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: sentinelSym}
	memo[idx] = sentinel

	second := buildDagNode(shared, sub, cache, memo)
	if second != sentinel {
		t.Fatalf("expected buildDagNode to return the poisoned memo entry instead of rebuilding, got %+v", second)
	}

	// Confirm CompileRHS/Build thread the very same memo discipline: with
	// the term bag wired through an RhsAutomaton, both occurrences resolve
	// through one memo entry rather than two independent cache lookups.
	automaton := CompileRHS(rhs, bag, true)
	freshCache := dagnode.NewHashConsSet()
	node := automaton.Build(subst.New(0), freshCache)
	if node.Children[0] != node.Children[1] {
		t.Fatalf("expected both occurrences of the shared subterm to resolve to the same memo entry")
	}
}

func TestBuildDagNodeInstantiatesVariable(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	x.VarIndex = 0
	rhs := term.NewFree(f, []*term.Term{x}).Normalize()

	cache := dagnode.NewHashConsSet()
	aNode := dagnode.Dagify(term.NewFree(a, nil).Normalize(), cache, nil)

	sub := subst.New(1)
	sub.Bind(0, aNode)

	node := BuildDagNode(rhs, sub, cache)
	if node.Sym != f || len(node.Children) != 1 || node.Children[0] != aNode {
		t.Fatalf("expected f(a) built from substitution, got %+v", node)
	}
}

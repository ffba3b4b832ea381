package subst

import (
	"testing"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/symbol"
)

func node(sym *symbol.Symbol) *dagnode.DagNode {
	return &dagnode.DagNode{Theory: symbol.TheoryFree, Sym: sym}
}

func TestBindAndClearFirstN(t *testing.T) {
	s := New(4)
	sym := &symbol.Symbol{}
	n := node(sym)

	s.Bind(0, n)
	s.Bind(1, n)
	if !s.IsBound(0) || !s.IsBound(1) {
		t.Fatalf("expected both bound")
	}
	s.ClearFirstN(1)
	if s.IsBound(0) {
		t.Fatalf("index 0 should be cleared")
	}
	if !s.IsBound(1) {
		t.Fatalf("index 1 should remain bound, ClearFirstN(1) only clears index 0")
	}
}

func TestSubstitutionReuse(t *testing.T) {
	sym := &symbol.Symbol{}
	n := node(sym)

	s := New(2)
	s.Bind(0, n)
	first := s.Value(0)

	s.ClearFirstN(2)
	s.Bind(0, n)
	second := s.Value(0)

	if first != second {
		t.Fatalf("rematching the same subject should rebind the same node reference")
	}
}

func TestSubtractAssertRetract(t *testing.T) {
	sym := &symbol.Symbol{}
	n1, n2 := node(sym), node(sym)

	base := New(3)
	base.Bind(0, n1)

	extended := New(3)
	extended.Bind(0, n1)
	extended.Bind(1, n2)

	diff := extended.Subtract(base)
	if len(diff) != 1 || diff[0].Index != 1 {
		t.Fatalf("expected subtract to find exactly the binding at index 1")
	}

	base.Assert(diff)
	if base.Value(1) != n2 {
		t.Fatalf("assert should apply the local binding")
	}

	base.Retract(diff)
	if base.IsBound(1) {
		t.Fatalf("retract should remove the local binding")
	}
}

func TestCloneAndRestore(t *testing.T) {
	sym := &symbol.Symbol{}
	n := node(sym)

	s := New(2)
	s.Bind(0, n)
	snapshot := s.Clone()

	s.Bind(1, n)
	s.RestoreFrom(snapshot)

	if s.IsBound(1) {
		t.Fatalf("restore should roll back bindings made after the snapshot")
	}
	if !s.IsBound(0) {
		t.Fatalf("restore should keep bindings present at snapshot time")
	}
}

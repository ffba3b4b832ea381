package sortlat

import (
	"testing"

	"github.com/dagterm/rewrite/internal/ident"
)

func TestSubsortClosureAndLeq(t *testing.T) {
	tbl := ident.NewTable()
	c := NewComponent(tbl.Intern("Kind"))

	nat, _ := c.DeclareSort(tbl.Intern("Nat"))
	even, _ := c.DeclareSort(tbl.Intern("Even"))
	zero, _ := c.DeclareSort(tbl.Intern("Zero"))

	if err := c.DeclareSubsort(even, nat); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.DeclareSubsort(zero, even); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Close()

	zeroSort := c.SortByIndex(zero)
	natSort := c.SortByIndex(nat)
	evenSort := c.SortByIndex(even)

	if !Leq(zeroSort, natSort) {
		t.Fatalf("Zero <= Nat should hold via transitive closure through Even")
	}
	if !Leq(zeroSort, evenSort) {
		t.Fatalf("Zero <= Even should hold directly")
	}
	if Leq(natSort, zeroSort) {
		t.Fatalf("Nat <= Zero should not hold")
	}
	if !Leq(natSort, natSort) {
		t.Fatalf("reflexivity must hold")
	}
}

func TestKindIsIndexZero(t *testing.T) {
	tbl := ident.NewTable()
	c := NewComponent(tbl.Intern("Kind"))
	c.Close()
	if !c.Kind().IsKind() {
		t.Fatalf("component kind must report IsKind() true")
	}
	if c.Kind().Index != 0 {
		t.Fatalf("kind must occupy index 0")
	}
}

func TestDeclareAfterCloseFails(t *testing.T) {
	tbl := ident.NewTable()
	c := NewComponent(tbl.Intern("Kind"))
	c.Close()
	if _, err := c.DeclareSort(tbl.Intern("Late")); err == nil {
		t.Fatalf("expected error declaring a sort after Close")
	}
}

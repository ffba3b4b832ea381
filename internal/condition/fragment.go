// Package condition implements the four condition-fragment kinds of
// spec.md §4.8 (Equality, SortTest, Assignment, Rewrite) and the
// solve_condition two-direction traversal that drives a conditional
// equation's ordered condition with backtracking.
//
// Grounded on the teacher's matcher/hooks.go CompilationHookManager phase
// dispatch (a small fixed set of named phases, each notified in turn, with
// per-phase state threaded through a context struct) generalized from
// "compilation phase" to "condition-fragment kind" — Equality/SortTest
// notify once, Assignment/Rewrite may be renotified on backtrack, mirroring
// how a hook phase can itself be revisited across a multi-pass compile. The
// forward/backward traversal loop is grounded on dag/evaluator.go's
// evaluateLogicalOperation AND/OR dependency-driven propagation, adapted
// from "evaluate all dependencies, combine" to "solve fragments in order,
// retry the nearest one that can yield another solution".
package condition

import (
	"github.com/dagterm/rewrite/internal/automaton"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/term"
)

// Kind is the fragment variant tag of spec.md §4.8.
type Kind int

const (
	Equality Kind = iota
	SortTest
	Assignment
	Rewrite
)

func (k Kind) String() string {
	switch k {
	case Equality:
		return "Equality"
	case SortTest:
		return "SortTest"
	case Assignment:
		return "Assignment"
	case Rewrite:
		return "Rewrite"
	default:
		return "unknown"
	}
}

// Fragment is one element of an ordered condition. Which fields are
// populated depends on Kind: Equality uses Left/Right; SortTest uses
// Left/TargetSort; Assignment uses Pattern/Right (the value u); Rewrite
// uses Left/Pattern.
type Fragment struct {
	Kind       Kind
	Left       *term.Term
	Right      *term.Term
	Pattern    *term.Term
	TargetSort *sortlat.Sort

	auto *automaton.Automaton // compiled from Pattern, Assignment/Rewrite only
}

// NewEquality builds a `t = u` fragment (spec.md §4.8): non-rewindable,
// one-shot.
func NewEquality(left, right *term.Term) Fragment {
	return Fragment{Kind: Equality, Left: left, Right: right}
}

// NewSortTest builds a `t : s` fragment: non-rewindable, one-shot.
func NewSortTest(t *term.Term, sort *sortlat.Sort) Fragment {
	return Fragment{Kind: SortTest, Left: t, TargetSort: sort}
}

// NewAssignment builds a `p := u` fragment, compiling pattern's matching
// automaton once up front (spec.md §4.8).
func NewAssignment(pattern, value *term.Term) Fragment {
	return Fragment{Kind: Assignment, Pattern: pattern, Right: value, auto: automaton.Compile(pattern)}
}

// NewRewrite builds a `t ⇒ p` fragment, compiling pattern's matching
// automaton once up front.
func NewRewrite(t, pattern *term.Term) Fragment {
	return Fragment{Kind: Rewrite, Left: t, Pattern: pattern, auto: automaton.Compile(pattern)}
}

// rewindable reports whether this fragment kind can be retried for
// another solution on backtrack. Assignment is, in principle, rewindable
// (an AC/ACU match can have several solutions) but the automaton this
// engine compiles reports at most one; until internal/acu grows a
// solution enumerator (tracked in DESIGN.md), Assignment behaves as
// one-shot in practice even though it is wired through the same retry
// path as Rewrite.
func (f Fragment) rewindable() bool {
	return f.Kind == Assignment || f.Kind == Rewrite
}

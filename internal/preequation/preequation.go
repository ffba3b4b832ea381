// Package preequation implements the shared shape of equations, rules,
// membership axioms, and sort constraints (spec.md glossary:
// "Pre-equation: shared shape of equations, rules, and sort constraints"),
// its variable-indexing/validation pass, and the
// normalize -> index-variables -> compile-build -> compile-match pipeline
// of spec.md §4.6/§4.7 that turns a parsed LHS/RHS/condition into a
// runnable automaton.
//
// Grounded on the teacher's compiler.Compiler.compileRule/processSelection
// pipeline (compiler/compiler.go): parse, validate, then per-selection
// compile, accumulating CompilationStatistics/CompilationError/
// CompilationWarning — generalized here from "Sigma detection selection"
// to "pre-equation LHS/RHS/condition", with Attributes.Validate playing
// the role of the teacher's validateRule.
package preequation

import (
	"github.com/dagterm/rewrite/internal/automaton"
	"github.com/dagterm/rewrite/internal/condition"
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/freetheory"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
	pkgerrors "github.com/dagterm/rewrite/pkg/errors"
)

// Kind tags which of the four pre-equation shapes this is.
type Kind int

const (
	EquationKind Kind = iota
	RuleKind
	MembershipKind
	SortConstraintKind
)

func (k Kind) String() string {
	switch k {
	case EquationKind:
		return "Equation"
	case RuleKind:
		return "Rule"
	case MembershipKind:
		return "Membership"
	case SortConstraintKind:
		return "SortConstraint"
	default:
		return "unknown"
	}
}

// Profile accumulates per-pre-equation attempt/success counters
// (original_source's src/core/interpreter/module/profile.rs, supplemented
// per SPEC_FULL.md §9 — the distilled spec.md is silent on per-equation
// profiling, but the original tracks it and the tracing sink has a
// natural home for surfacing it). AttemptCost is incremented by one unit
// per match attempt, regardless of outcome, giving a cheap proxy for
// "how much matching work did this pre-equation cost" without timing
// calls on the hot path.
type Profile struct {
	AttemptCount int
	SuccessCount int
	AttemptCost  int64
}

// RecordAttempt bumps the attempt counter and cost; call once per match
// try, before the LHS automaton runs.
func (p *Profile) RecordAttempt() {
	p.AttemptCount++
	p.AttemptCost++
}

// RecordSuccess bumps the success counter; call once the LHS automaton
// reports a match (the condition, if any, may still fail afterward, but
// that is a separate condition-evaluator concern — this counter answers
// "how often did this pre-equation's shape fit the subject").
func (p *Profile) RecordSuccess() {
	p.SuccessCount++
}

// Attributes are the per-pre-equation flags of spec.md §9(c). Compiled
// marks a pre-equation that has finished analysis and carries a usable
// automaton; Bad marks an equation, membership axiom or sort constraint
// with an unbound-variable error;
// NonExec marks a rule with an unbound LHS/RHS variable legitimate only
// via external meta-apply; Otherwise marks a "default" equation tried
// only after its siblings fail; Variant marks a pre-equation usable by
// variant unification in addition to ordinary rewriting.
type Attributes struct {
	Compiled  bool
	Bad       bool
	NonExec   bool
	Otherwise bool
	Variant   bool
}

// Validate enforces spec.md §9(c)'s coexistence rules: Compiled and
// Bad/NonExec are mutually exclusive (a pre-equation that failed analysis
// never reaches the compiled state); Bad and NonExec are themselves
// mutually exclusive (the former marks equations, membership axioms and
// sort constraints, the latter only ever marks rules); Otherwise may
// coexist with anything else.
func (a Attributes) Validate() error {
	if a.Bad && a.NonExec {
		return pkgerrors.NewCompilationError("pre-equation attributes: Bad and NonExec are mutually exclusive")
	}
	if a.Compiled && (a.Bad || a.NonExec) {
		return pkgerrors.NewCompilationError("pre-equation attributes: Compiled cannot coexist with Bad or NonExec")
	}
	return nil
}

// PreEquation is one equation, rule, membership axiom, or sort constraint
// after parsing but before (or during) compilation.
type PreEquation struct {
	Kind       Kind
	Label      string
	Attrs      Attributes
	LHS        *term.Term
	RHS        *term.Term // nil for a membership axiom / sort constraint; target sort lives in internal/sortconstraint
	Condition  []condition.Fragment

	vars *VariableInfo

	lhsAuto *automaton.Automaton
	rhsAuto *freetheory.RhsAutomaton // nil when RHS top theory is AC/ACU; BuildDagNode is used directly instead
	bag     *freetheory.TermBag

	Stats Profile
}

// New builds an uncompiled pre-equation from parsed terms.
func New(kind Kind, label string, lhs, rhs *term.Term, cond []condition.Fragment, attrs Attributes) *PreEquation {
	return &PreEquation{Kind: kind, Label: label, Attrs: attrs, LHS: lhs, RHS: rhs, Condition: cond}
}

// VarCount returns the number of distinct variables this pre-equation
// indexes — the minimum substitution capacity required to evaluate it.
func (p *PreEquation) VarCount() int {
	if p.vars == nil {
		return 0
	}
	return p.vars.Count()
}

// Unbound reports whether any variable index has no LHS occurrence.
// Valid only after Compile.
func (p *PreEquation) Unbound() bool {
	return p.vars != nil && !p.vars.Unbound().IsEmpty()
}

// Compile runs the full pipeline: index variables (LHS, then RHS, then
// condition), normalize the LHS and RHS (occursBelow depends on VarIndex so
// normalize must follow indexing), validate attributes, classify an
// unbound-variable finding per spec.md §7, and compile the LHS matcher
// plus (for a free-theory-rooted RHS) the RHS construction automaton.
// eagerContext controls whether RHS subterms prefer the term bag's eager
// or lazy reuse partition (spec.md §4.6). preferGreedyACU threads
// EngineConfig.PreferGreedyACU down to every AC/ACU boundary the LHS
// crosses (spec.md §4.7).
func (p *PreEquation) Compile(eagerContext, preferGreedyACU bool) error {
	if err := p.Attrs.Validate(); err != nil {
		return err
	}

	p.vars = NewVariableInfo()
	p.vars.IndexLHS(p.LHS)
	if p.RHS != nil {
		p.vars.IndexRHS(p.RHS)
	}
	for i := range p.Condition {
		indexConditionFragment(p.vars, &p.Condition[i])
	}

	p.LHS.Normalize()
	if p.RHS != nil {
		p.RHS.Normalize()
	}

	if p.Unbound() {
		switch p.Kind {
		case MembershipKind, SortConstraintKind:
			p.Attrs.Bad = true
			return pkgerrors.NewBadPreEquation(p.Label, "membership axiom or sort constraint uses an unbound variable")
		case RuleKind:
			p.Attrs.NonExec = true
		case EquationKind:
			p.Attrs.Bad = true
			return pkgerrors.NewBadPreEquation(p.Label, "equation RHS or condition uses a variable unbound by the LHS")
		}
	}

	p.lhsAuto = automaton.CompileWithConfig(p.LHS, preferGreedyACU)

	if p.RHS != nil && p.RHS.Theory == symbol.TheoryFree {
		p.bag = freetheory.NewTermBag()
		p.rhsAuto = freetheory.CompileRHS(p.RHS, p.bag, eagerContext)
	}

	if !p.Attrs.Bad && !p.Attrs.NonExec {
		p.Attrs.Compiled = true
	}
	return nil
}

// MatchLHS runs the compiled LHS automaton against subject, binding sub,
// and records the attempt in p.Stats regardless of outcome.
func (p *PreEquation) MatchLHS(subject *dagnode.DagNode, sub *subst.Substitution) (bool, error) {
	p.Stats.RecordAttempt()
	ok, err := p.lhsAuto.Match(subject, sub)
	if err == nil && ok {
		p.Stats.RecordSuccess()
	}
	return ok, err
}

// BuildRHS constructs the RHS DAG node under substitution sub, using the
// precompiled term-bag automaton when the RHS root is free-theory and
// falling back to direct generic construction for an AC/ACU root (spec.md
// §4.6's compile_rhs optimization only applies to the free-theory case;
// AC/ACU RHS construction has no reuse bag to consult).
func (p *PreEquation) BuildRHS(sub *subst.Substitution, cache *dagnode.HashConsSet) *dagnode.DagNode {
	if p.rhsAuto != nil {
		return p.rhsAuto.Build(sub, cache)
	}
	return freetheory.BuildDagNode(p.RHS, sub, cache)
}

func indexConditionFragment(vars *VariableInfo, f *condition.Fragment) {
	if f.Left != nil {
		vars.IndexCondition(f.Left)
	}
	if f.Right != nil {
		vars.IndexCondition(f.Right)
	}
	if f.Pattern != nil {
		vars.IndexCondition(f.Pattern)
	}
}

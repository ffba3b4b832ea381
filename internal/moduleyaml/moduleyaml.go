// Package moduleyaml is a declarative front end over internal/engine's
// Module build API (SPEC_FULL.md §6 addition): it parses one YAML
// document describing a complete rewrite theory — sort components,
// symbols, operator overloads, equations, membership axioms, and rules —
// and drives exactly the same one-shot Open -> SortSetClosed ->
// SignatureClosed -> FixUpsClosed -> TheoryClosed state machine an
// in-process caller would drive by hand.
//
// Grounded on the teacher's compiler.SigmaRule (a YAML-tagged struct) and
// compiler.Compiler.compileRule/CompileRules, generalized from "one Sigma
// detection rule compiled into primitives" to "one rewrite module compiled
// into a Module". gopkg.in/yaml.v3 is the teacher's own parser choice for
// this concern.
package moduleyaml

import (
	"fmt"
	"io"
	"os"

	"github.com/dagterm/rewrite/internal/condition"
	"github.com/dagterm/rewrite/internal/engine"
	"github.com/dagterm/rewrite/internal/preequation"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
	pkgerrors "github.com/dagterm/rewrite/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RewriteModule is the top-level YAML document shape.
type RewriteModule struct {
	Name        string           `yaml:"name"`
	Components  []ComponentDecl  `yaml:"components"`
	Symbols     []SymbolDecl     `yaml:"symbols"`
	Operators   []OperatorDecl   `yaml:"operators"`
	Equations   []EquationDecl   `yaml:"equations"`
	Memberships []MembershipDecl `yaml:"memberships"`
	Rules       []RuleDecl       `yaml:"rules"`
}

// ComponentDecl declares one connected component of the sort lattice: a
// kind name, the sorts in it, and the subsort edges among them.
type ComponentDecl struct {
	Kind     string        `yaml:"kind"`
	Sorts    []string      `yaml:"sorts"`
	Subsorts []SubsortDecl `yaml:"subsorts"`
}

// SubsortDecl is one child <= parent edge, both sort names local to the
// enclosing ComponentDecl.
type SubsortDecl struct {
	Child  string `yaml:"child"`
	Parent string `yaml:"parent"`
}

// SymbolDecl declares an operator symbol: name, arity, structural theory
// (free/ac/acu), optional per-argument strategy, and the memo flag.
type SymbolDecl struct {
	Name     string   `yaml:"name"`
	Arity    int      `yaml:"arity"`
	Theory   string   `yaml:"theory"`
	Strategy []string `yaml:"strategy,omitempty"`
	Memo     bool     `yaml:"memo,omitempty"`
}

// SortRef names a sort by its component's kind name plus its local name.
type SortRef struct {
	Component string `yaml:"component"`
	Sort      string `yaml:"sort"`
}

// OperatorDecl records one domain/range overload of a previously declared
// symbol.
type OperatorDecl struct {
	Symbol      string    `yaml:"symbol"`
	Arity       int       `yaml:"arity"`
	Domain      []SortRef `yaml:"domain"`
	Range       SortRef   `yaml:"range"`
	Constructor bool      `yaml:"constructor,omitempty"`
}

// TermNode is the recursive YAML term shape. Exactly one of (Var, Op) is
// populated: a variable occurrence names itself with Var and, at least on
// its first occurrence within one pre-equation, its declared Sort; an
// operator application names itself with Op and supplies Args (nil/empty
// for a constant).
type TermNode struct {
	Var  string      `yaml:"var,omitempty"`
	Sort *SortRef    `yaml:"sort,omitempty"`
	Op   string      `yaml:"op,omitempty"`
	Args []*TermNode `yaml:"args,omitempty"`
}

// ConditionFragmentDecl is one element of an ordered condition (spec.md
// §4.8): Kind selects which of Left/Right/Pattern/Sort apply, mirroring
// condition.Fragment's own field-by-Kind convention.
type ConditionFragmentDecl struct {
	Kind    string    `yaml:"kind"`
	Left    *TermNode `yaml:"left,omitempty"`
	Right   *TermNode `yaml:"right,omitempty"`
	Pattern *TermNode `yaml:"pattern,omitempty"`
	Sort    *SortRef  `yaml:"sort,omitempty"`
}

// AttributesDecl is the YAML-visible subset of preequation.Attributes;
// Compiled/Bad/NonExec are computed during compilation and are never
// supplied by a document.
type AttributesDecl struct {
	Otherwise bool `yaml:"otherwise,omitempty"`
	Variant   bool `yaml:"variant,omitempty"`
}

// EquationDecl is one oriented equation.
type EquationDecl struct {
	Label      string                  `yaml:"label"`
	LHS        TermNode                `yaml:"lhs"`
	RHS        TermNode                `yaml:"rhs"`
	Condition  []ConditionFragmentDecl `yaml:"condition,omitempty"`
	Attributes AttributesDecl          `yaml:"attributes,omitempty"`
}

// RuleDecl is one rewrite rule, applied on demand rather than eagerly.
type RuleDecl struct {
	Label      string                  `yaml:"label"`
	LHS        TermNode                `yaml:"lhs"`
	RHS        TermNode                `yaml:"rhs"`
	Condition  []ConditionFragmentDecl `yaml:"condition,omitempty"`
	Attributes AttributesDecl          `yaml:"attributes,omitempty"`
}

// MembershipDecl is one membership axiom: lhs : sort if condition.
type MembershipDecl struct {
	Label      string                  `yaml:"label"`
	LHS        TermNode                `yaml:"lhs"`
	Sort       SortRef                 `yaml:"sort"`
	Condition  []ConditionFragmentDecl `yaml:"condition,omitempty"`
	Attributes AttributesDecl          `yaml:"attributes,omitempty"`
}

// Load parses r as a RewriteModule document and drives cfg's Module
// through every declaration phase to TheoryClosed. cfg may be nil
// (engine.DefaultEngineConfig is used).
func Load(r io.Reader, cfg *engine.EngineConfig) (*engine.Module, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.WrapIOError(err)
	}
	var doc RewriteModule
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, pkgerrors.WrapYAMLError(err)
	}
	return build(&doc, cfg)
}

// LoadFile opens path and parses it as a RewriteModule document.
func LoadFile(path string, cfg *engine.EngineConfig) (*engine.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.WrapIOError(err)
	}
	defer f.Close()
	return Load(f, cfg)
}

// LoadTerm parses r as a single TermNode document (the same shape used
// for an equation's lhs/rhs) and builds it against an already
// TheoryClosed module — the entry point a driver program uses to supply
// the initial term for Reduce/Rewrite.
func LoadTerm(r io.Reader, m *engine.Module) (*term.Term, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.WrapIOError(err)
	}
	var node TermNode
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, pkgerrors.WrapYAMLError(err)
	}
	l := &loader{m: m, varSort: make(map[string]*sortlat.Sort)}
	return l.buildTerm(&node)
}

// LoadTermFile opens path and parses it as a single TermNode document.
func LoadTermFile(path string, m *engine.Module) (*term.Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.WrapIOError(err)
	}
	defer f.Close()
	return LoadTerm(f, m)
}

// loader carries the Module under construction plus the lookup state the
// term-build pass needs: a per-pre-equation variable-sort cache (so a
// variable's second occurrence need not repeat its Sort field) is reset
// between pre-equations by buildPreEquation.
type loader struct {
	m       *engine.Module
	varSort map[string]*sortlat.Sort
}

func build(doc *RewriteModule, cfg *engine.EngineConfig) (*engine.Module, error) {
	l := &loader{m: engine.NewModule(doc.Name, cfg)}

	for _, cd := range doc.Components {
		comp, err := l.m.DeclareComponent(cd.Kind)
		if err != nil {
			return nil, err
		}
		for _, sortName := range cd.Sorts {
			if _, err := l.m.DeclareSort(comp, sortName); err != nil {
				return nil, err
			}
		}
	}
	for _, cd := range doc.Components {
		for _, sd := range cd.Subsorts {
			child, err := l.m.SortByName(cd.Kind, sd.Child)
			if err != nil {
				return nil, err
			}
			parent, err := l.m.SortByName(cd.Kind, sd.Parent)
			if err != nil {
				return nil, err
			}
			if err := l.m.DeclareSubsort(child, parent); err != nil {
				return nil, err
			}
		}
	}
	if err := l.m.CloseSortSet(); err != nil {
		return nil, err
	}

	for _, sd := range doc.Symbols {
		theory, err := parseTheory(sd.Theory)
		if err != nil {
			return nil, err
		}
		strategy, err := parseStrategy(sd.Strategy, sd.Arity)
		if err != nil {
			return nil, err
		}
		if _, err := l.m.DeclareSymbol(sd.Name, sd.Arity, strategy, theory, sd.Memo); err != nil {
			return nil, err
		}
	}
	for _, od := range doc.Operators {
		sym, err := l.m.SymbolByNameArity(od.Symbol, od.Arity)
		if err != nil {
			return nil, err
		}
		domain := make([]*sortlat.Sort, len(od.Domain))
		for i, ref := range od.Domain {
			s, err := l.m.SortByName(ref.Component, ref.Sort)
			if err != nil {
				return nil, err
			}
			domain[i] = s
		}
		rangeSort, err := l.m.SortByName(od.Range.Component, od.Range.Sort)
		if err != nil {
			return nil, err
		}
		if err := l.m.AddOperatorDeclaration(sym, domain, rangeSort, od.Constructor); err != nil {
			return nil, err
		}
	}
	if err := l.m.CloseSignature(); err != nil {
		return nil, err
	}

	for _, ed := range doc.Equations {
		lhs, rhs, cond, attrs, err := l.buildPreEquation(ed.LHS, &ed.RHS, ed.Condition, ed.Attributes)
		if err != nil {
			return nil, err
		}
		if _, err := l.m.AddEquation(ed.Label, lhs, rhs, cond, attrs); err != nil {
			return nil, err
		}
	}
	for _, rd := range doc.Rules {
		lhs, rhs, cond, attrs, err := l.buildPreEquation(rd.LHS, &rd.RHS, rd.Condition, rd.Attributes)
		if err != nil {
			return nil, err
		}
		if _, err := l.m.AddRule(rd.Label, lhs, rhs, cond, attrs); err != nil {
			return nil, err
		}
	}
	for _, md := range doc.Memberships {
		lhs, _, cond, attrs, err := l.buildPreEquation(md.LHS, nil, md.Condition, md.Attributes)
		if err != nil {
			return nil, err
		}
		targetSort, err := l.m.SortByName(md.Sort.Component, md.Sort.Sort)
		if err != nil {
			return nil, err
		}
		if _, err := l.m.AddMembership(md.Label, lhs, targetSort, cond, attrs); err != nil {
			return nil, err
		}
	}

	if err := l.m.CloseFixUps(); err != nil {
		return nil, err
	}
	if err := l.m.CloseTheory(); err != nil {
		return nil, err
	}
	return l.m, nil
}

// buildPreEquation resets the variable-sort cache (fresh per pre-equation:
// the same name in two different equations need not share a sort), then
// builds the LHS, optional RHS, and condition fragments.
func (l *loader) buildPreEquation(lhsNode TermNode, rhsNode *TermNode, condDecls []ConditionFragmentDecl, attrs AttributesDecl) (*term.Term, *term.Term, []condition.Fragment, preequation.Attributes, error) {
	l.varSort = make(map[string]*sortlat.Sort)
	lhs, err := l.buildTerm(&lhsNode)
	if err != nil {
		return nil, nil, nil, preequation.Attributes{}, err
	}
	var rhs *term.Term
	if rhsNode != nil {
		rhs, err = l.buildTerm(rhsNode)
		if err != nil {
			return nil, nil, nil, preequation.Attributes{}, err
		}
	}
	cond := make([]condition.Fragment, len(condDecls))
	for i, cd := range condDecls {
		frag, err := l.buildFragment(cd)
		if err != nil {
			return nil, nil, nil, preequation.Attributes{}, err
		}
		cond[i] = frag
	}
	return lhs, rhs, cond, preequation.Attributes{Otherwise: attrs.Otherwise, Variant: attrs.Variant}, nil
}

func (l *loader) buildFragment(cd ConditionFragmentDecl) (condition.Fragment, error) {
	switch cd.Kind {
	case "equality":
		left, err := l.buildTerm(cd.Left)
		if err != nil {
			return condition.Fragment{}, err
		}
		right, err := l.buildTerm(cd.Right)
		if err != nil {
			return condition.Fragment{}, err
		}
		return condition.NewEquality(left, right), nil
	case "sorttest":
		left, err := l.buildTerm(cd.Left)
		if err != nil {
			return condition.Fragment{}, err
		}
		s, err := l.m.SortByName(cd.Sort.Component, cd.Sort.Sort)
		if err != nil {
			return condition.Fragment{}, err
		}
		return condition.NewSortTest(left, s), nil
	case "assignment":
		pattern, err := l.buildTerm(cd.Pattern)
		if err != nil {
			return condition.Fragment{}, err
		}
		value, err := l.buildTerm(cd.Right)
		if err != nil {
			return condition.Fragment{}, err
		}
		return condition.NewAssignment(pattern, value), nil
	case "rewrite":
		left, err := l.buildTerm(cd.Left)
		if err != nil {
			return condition.Fragment{}, err
		}
		pattern, err := l.buildTerm(cd.Pattern)
		if err != nil {
			return condition.Fragment{}, err
		}
		return condition.NewRewrite(left, pattern), nil
	default:
		return condition.Fragment{}, pkgerrors.NewCompilationError(fmt.Sprintf("unknown condition fragment kind %q", cd.Kind))
	}
}

// buildTerm recursively builds a term.Term from a TermNode, resolving
// variable sorts through l.varSort (populated by each variable's first
// occurrence) and operator symbols/children through the Module term build
// API.
func (l *loader) buildTerm(n *TermNode) (*term.Term, error) {
	if n == nil {
		return nil, pkgerrors.NewInvalidTermShape("nil term node")
	}
	if n.Var != "" {
		sort := l.varSort[n.Var]
		if n.Sort != nil {
			s, err := l.m.SortByName(n.Sort.Component, n.Sort.Sort)
			if err != nil {
				return nil, err
			}
			sort = s
			l.varSort[n.Var] = s
		}
		if sort == nil {
			return nil, pkgerrors.NewInvalidTermShape(fmt.Sprintf("variable %q used before its declared sort is given", n.Var))
		}
		return l.m.NewVariable(n.Var, sort), nil
	}
	if n.Op == "" {
		return nil, pkgerrors.NewInvalidTermShape("term node has neither var nor op")
	}
	args := make([]*term.Term, len(n.Args))
	for i, a := range n.Args {
		child, err := l.buildTerm(a)
		if err != nil {
			return nil, err
		}
		args[i] = child
	}
	return l.m.NewTerm(n.Op, args...)
}

func parseTheory(s string) (symbol.Theory, error) {
	switch s {
	case "", "free":
		return symbol.TheoryFree, nil
	case "ac", "AC":
		return symbol.TheoryAC, nil
	case "acu", "ACU":
		return symbol.TheoryACU, nil
	default:
		return 0, pkgerrors.NewCompilationError(fmt.Sprintf("unknown symbol theory %q", s))
	}
}

func parseStrategy(strs []string, arity int) ([]symbol.ArgStrategy, error) {
	if len(strs) == 0 {
		return nil, nil
	}
	if len(strs) != arity {
		return nil, pkgerrors.NewCompilationError(fmt.Sprintf("strategy vector length %d does not match arity %d", len(strs), arity))
	}
	out := make([]symbol.ArgStrategy, len(strs))
	for i, s := range strs {
		switch s {
		case "eager":
			out[i] = symbol.Eager
		case "lazy":
			out[i] = symbol.Lazy
		case "frozen":
			out[i] = symbol.Frozen
		default:
			return nil, pkgerrors.NewCompilationError(fmt.Sprintf("unknown argument strategy %q", s))
		}
	}
	return out, nil
}

package engine

import (
	"fmt"

	"github.com/dagterm/rewrite/internal/condition"
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/freetheory"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/preequation"
	"github.com/dagterm/rewrite/internal/sortconstraint"
	"github.com/dagterm/rewrite/internal/sortlat"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
	pkgerrors "github.com/dagterm/rewrite/pkg/errors"
)

// ModuleState is the one-shot declaration pipeline of SPEC_FULL.md §6:
// Open -> SortSetClosed -> SignatureClosed -> FixUpsClosed -> TheoryClosed.
// Each transition is forward-only; no Module ever reopens an earlier state.
type ModuleState int

const (
	StateOpen ModuleState = iota
	StateSortSetClosed
	StateSignatureClosed
	StateFixUpsClosed
	StateTheoryClosed
)

func (s ModuleState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateSortSetClosed:
		return "SortSetClosed"
	case StateSignatureClosed:
		return "SignatureClosed"
	case StateFixUpsClosed:
		return "FixUpsClosed"
	case StateTheoryClosed:
		return "TheoryClosed"
	default:
		return "unknown"
	}
}

// Module is a single rewrite theory: sorts, symbols, pre-equations, and
// their compiled matching/construction machinery, all owned by dense
// arenas rather than cyclic pointers (Design Notes §9).
type Module struct {
	Name            string
	Config          *EngineConfig
	Names           *ident.Table
	Symbols         *symbol.Table
	Cache           *dagnode.HashConsSet
	Memo            *MemoTable
	SortConstraints *sortconstraint.Table

	Attrs InterpreterAttributes
	Print PrintFlags

	sink TraceSink

	components      []*sortlat.Component
	componentByName map[string]*sortlat.Component
	componentNames  map[*sortlat.Component]string
	sortByQualName  map[string]*sortlat.Sort

	symByNameArity    map[string]*symbol.Symbol
	symRangeComponent map[symbol.ID]*sortlat.Component

	preEquations []*preequation.PreEquation

	// nets holds the discrimination net (spec.md §2/§4.6/§9) compiled for
	// each free-theory symbol carrying more than one equation, built once
	// in CloseTheory and consulted by applyReplace to prune which
	// EquationIDs are even attempted against a given subject.
	nets map[*symbol.Symbol]*freetheory.DiscriminationNet

	state            ModuleState
	minSubstCapacity int
}

// NewModule creates an empty Module in the Open state. cfg may be nil, in
// which case DefaultEngineConfig is used.
func NewModule(name string, cfg *EngineConfig) *Module {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	return &Module{
		Name:              name,
		Config:            cfg,
		Names:             ident.NewTable(),
		Symbols:           symbol.NewTable(),
		Cache:             dagnode.NewHashConsSet(),
		SortConstraints:   sortconstraint.NewTable(),
		Print:             cfg.DefaultPrintFlags,
		sink:              NullSink{},
		componentByName:   make(map[string]*sortlat.Component),
		componentNames:    make(map[*sortlat.Component]string),
		sortByQualName:    make(map[string]*sortlat.Sort),
		symByNameArity:    make(map[string]*symbol.Symbol),
		symRangeComponent: make(map[symbol.ID]*sortlat.Component),
	}
}

// SetTraceSink installs sink as the module's trace destination. A nil sink,
// or any sink while Config.TraceEnabled is false, installs NullSink, so
// trace events reach a sink only when tracing is enabled.
func (m *Module) SetTraceSink(sink TraceSink) {
	if sink == nil || !m.Config.TraceEnabled {
		sink = NullSink{}
	}
	m.sink = sink
}

func (m *Module) requireState(want ModuleState) error {
	if m.state != want {
		return pkgerrors.NewModuleStateViolation(m.state.String(), want.String())
	}
	return nil
}

func symKey(name string, arity int) string { return fmt.Sprintf("%s/%d", name, arity) }

// --- Sort-set declaration phase -------------------------------------------

// DeclareComponent creates a fresh connected component of the sort
// lattice, named for the kind (error sort) that occupies its index 0.
// This is an addition beyond spec.md's bare "declare-sort": a component
// must exist before any sort can be declared into it.
func (m *Module) DeclareComponent(kindName string) (*sortlat.Component, error) {
	if err := m.requireState(StateOpen); err != nil {
		return nil, err
	}
	if _, exists := m.componentByName[kindName]; exists {
		return nil, pkgerrors.NewDuplicateDeclaration("component", kindName)
	}
	comp := sortlat.NewComponent(m.Names.Intern(kindName))
	m.components = append(m.components, comp)
	m.componentByName[kindName] = comp
	m.componentNames[comp] = kindName
	m.sortByQualName[kindName+"/"+kindName] = comp.Kind()
	return comp, nil
}

// DeclareSort adds a new sort to comp.
func (m *Module) DeclareSort(comp *sortlat.Component, name string) (*sortlat.Sort, error) {
	if err := m.requireState(StateOpen); err != nil {
		return nil, err
	}
	idx, err := comp.DeclareSort(m.Names.Intern(name))
	if err != nil {
		return nil, pkgerrors.NewCompilationError(err.Error())
	}
	sort := comp.SortByIndex(idx)
	m.sortByQualName[m.componentNames[comp]+"/"+name] = sort
	return sort, nil
}

// DeclareSubsort records child <= parent. Both sorts must belong to the
// same component.
func (m *Module) DeclareSubsort(child, parent *sortlat.Sort) error {
	if err := m.requireState(StateOpen); err != nil {
		return err
	}
	if child.Component != parent.Component {
		return pkgerrors.NewCompilationError("subsort declaration spans two components")
	}
	if err := child.Component.DeclareSubsort(child.Index, parent.Index); err != nil {
		return pkgerrors.NewCompilationError(err.Error())
	}
	return nil
}

// CloseSortSet freezes every component's lattice (computing leq_sorts bit
// sets) and advances to SignatureClosed's predecessor state.
func (m *Module) CloseSortSet() error {
	if err := m.requireState(StateOpen); err != nil {
		return err
	}
	for _, c := range m.components {
		c.Close()
	}
	m.state = StateSortSetClosed
	return nil
}

// --- Signature declaration phase ------------------------------------------

// DeclareSymbol registers an operator symbol. strategy may be nil for an
// all-eager ("standard") symbol.
func (m *Module) DeclareSymbol(name string, arity int, strategy []symbol.ArgStrategy, theory symbol.Theory, memo bool) (*symbol.Symbol, error) {
	if err := m.requireState(StateSortSetClosed); err != nil {
		return nil, err
	}
	sym, err := m.Symbols.Declare(m.Names, name, arity, strategy, theory, memo)
	if err != nil {
		return nil, pkgerrors.NewCompilationError(err.Error())
	}
	m.symByNameArity[symKey(name, arity)] = sym
	return sym, nil
}

// AddOperatorDeclaration records one domain/range overload of sym in its
// sort table. constructor marks the overload as contributing to the
// maximal constructor set; this engine's sort table does not distinguish
// constructor from defined overloads (every declaration is usable for
// range-sort computation alike), so the flag is accepted but neither
// stored nor consulted.
func (m *Module) AddOperatorDeclaration(sym *symbol.Symbol, domain []*sortlat.Sort, rangeSort *sortlat.Sort, constructor bool) error {
	if err := m.requireState(StateSortSetClosed); err != nil {
		return err
	}
	if len(domain) != sym.Arity {
		return pkgerrors.NewInvalidArity(m.Names.Lookup(sym.Name), sym.Arity, len(domain))
	}
	domainIdx := make([]int, len(domain))
	for i, s := range domain {
		domainIdx[i] = s.Index
	}
	sym.SortTable.AddDeclaration(domainIdx, rangeSort.Index)
	m.symRangeComponent[sym.ID] = rangeSort.Component
	return nil
}

// CloseSignature advances to the equation/rule/membership declaration phase.
func (m *Module) CloseSignature() error {
	if err := m.requireState(StateSortSetClosed); err != nil {
		return err
	}
	m.state = StateSignatureClosed
	return nil
}

// --- Pre-equation declaration phase ----------------------------------------

func topSymbolOf(t *term.Term) (*symbol.Symbol, error) {
	if t.IsVariable() {
		return nil, pkgerrors.NewInvalidTermShape("a pre-equation's LHS cannot be a bare variable")
	}
	return t.Sym, nil
}

// AddEquation registers an equation, indexed under its LHS top symbol in
// registration order (spec.md §4.9: equations are tried in that order).
func (m *Module) AddEquation(label string, lhs, rhs *term.Term, cond []condition.Fragment, attrs preequation.Attributes) (*preequation.PreEquation, error) {
	if err := m.requireState(StateSignatureClosed); err != nil {
		return nil, err
	}
	sym, err := topSymbolOf(lhs)
	if err != nil {
		return nil, err
	}
	pe := preequation.New(preequation.EquationKind, label, lhs, rhs, cond, attrs)
	id := len(m.preEquations)
	m.preEquations = append(m.preEquations, pe)
	sym.EquationIDs = append(sym.EquationIDs, id)
	return pe, nil
}

// AddRule registers a rule, indexed under its LHS top symbol.
func (m *Module) AddRule(label string, lhs, rhs *term.Term, cond []condition.Fragment, attrs preequation.Attributes) (*preequation.PreEquation, error) {
	if err := m.requireState(StateSignatureClosed); err != nil {
		return nil, err
	}
	sym, err := topSymbolOf(lhs)
	if err != nil {
		return nil, err
	}
	pe := preequation.New(preequation.RuleKind, label, lhs, rhs, cond, attrs)
	id := len(m.preEquations)
	m.preEquations = append(m.preEquations, pe)
	sym.RuleIDs = append(sym.RuleIDs, id)
	return pe, nil
}

// AddMembership registers a membership axiom asserting lhs : targetSort
// when its condition (if any) holds, and offers it to the module's
// sort-constraint table for lazy compilation (spec.md §4.10).
func (m *Module) AddMembership(label string, lhs *term.Term, targetSort *sortlat.Sort, cond []condition.Fragment, attrs preequation.Attributes) (*preequation.PreEquation, error) {
	if err := m.requireState(StateSignatureClosed); err != nil {
		return nil, err
	}
	sym, err := topSymbolOf(lhs)
	if err != nil {
		return nil, err
	}
	pe := preequation.New(preequation.MembershipKind, label, lhs, nil, cond, attrs)
	id := len(m.preEquations)
	m.preEquations = append(m.preEquations, pe)
	sym.SortConstraintIDs = append(sym.SortConstraintIDs, id)
	m.SortConstraints.OfferSortConstraint(sym, &sortconstraint.Constraint{PreEq: pe, TargetSort: targetSort})
	return pe, nil
}

// CloseFixUps validates that every pre-equation's LHS top symbol was
// declared in this module (catching a YAML loader bug before the
// expensive compile pass) and advances to the final declaration phase.
func (m *Module) CloseFixUps() error {
	if err := m.requireState(StateSignatureClosed); err != nil {
		return err
	}
	for _, pe := range m.preEquations {
		sym, err := topSymbolOf(pe.LHS)
		if err != nil {
			return err
		}
		if m.Symbols.Get(sym.ID) != sym {
			return pkgerrors.NewInvalidSymbol(m.Names.Lookup(sym.Name))
		}
	}
	m.state = StateFixUpsClosed
	return nil
}

// CloseTheory compiles every pre-equation and the sort-constraint table,
// sizes the module's minimum substitution capacity from the largest
// VarCount seen, and (if configured) allocates the memo table. A
// pre-equation that fails compilation with KindBadPreEquation is recorded
// as Bad/NonExec and excluded from automatic rewriting rather than
// failing the whole module (spec.md §7); any other compile error is
// fatal.
func (m *Module) CloseTheory() error {
	if err := m.requireState(StateFixUpsClosed); err != nil {
		return err
	}
	if err := m.SortConstraints.Compile(true, m.Config.PreferGreedyACU); err != nil {
		return err
	}
	maxVars := 0
	for _, pe := range m.preEquations {
		if err := pe.Compile(true, m.Config.PreferGreedyACU); err != nil {
			if rwErr, ok := err.(*pkgerrors.RewriteError); ok && rwErr.Kind == pkgerrors.KindBadPreEquation {
				continue
			}
			return err
		}
		if n := pe.VarCount(); n > maxVars {
			maxVars = n
		}
	}
	m.minSubstCapacity = maxVars
	if m.Config.MemoEnabled {
		m.Memo = NewMemoTable(m.Config.MemoCapacity)
	}
	m.buildDiscriminationNets()
	m.state = StateTheoryClosed
	return nil
}

// buildDiscriminationNets compiles one discrimination net per free-theory
// symbol carrying two or more compiled equations (spec.md §4.6/§9): a
// symbol with free-skeleton-sharing patterns gets a ternary-tree
// dispatcher built from their LHS terms; everything else is left
// unindexed and applyReplace falls back to trying its (already short)
// EquationIDs list directly.
func (m *Module) buildDiscriminationNets() {
	m.nets = make(map[*symbol.Symbol]*freetheory.DiscriminationNet)
	for _, sym := range m.Symbols.All() {
		if sym.Theory != symbol.TheoryFree || len(sym.EquationIDs) < 2 {
			continue
		}
		var patterns []*term.Term
		var ids []int
		for _, eqID := range sym.EquationIDs {
			pe := m.preEquations[eqID]
			if !pe.Attrs.Compiled {
				continue
			}
			patterns = append(patterns, pe.LHS)
			ids = append(ids, eqID)
		}
		if len(patterns) < 2 {
			continue
		}
		m.nets[sym] = freetheory.BuildDiscriminationNet(patterns, ids)
	}
}

// --- Lookup helpers, usable once the relevant phase has closed ------------

// State reports the module's current position in the one-shot
// declaration pipeline.
func (m *Module) State() ModuleState { return m.state }

// Profiles returns a snapshot of every labeled pre-equation's attempt/
// success counters (preequation.Profile), keyed by label, for the
// tracing sink's profile display (spec.md §6 show-breakdown/show-stats;
// original_source's per-pre-equation profile.rs, see SPEC_FULL.md §9).
// Unlabeled pre-equations are omitted since there is no stable key to
// report them under.
func (m *Module) Profiles() map[string]preequation.Profile {
	out := make(map[string]preequation.Profile)
	for _, pe := range m.preEquations {
		if pe.Label == "" {
			continue
		}
		out[pe.Label] = pe.Stats
	}
	return out
}

// SortByName resolves a sort by its component and local name.
func (m *Module) SortByName(componentName, sortName string) (*sortlat.Sort, error) {
	s, ok := m.sortByQualName[componentName+"/"+sortName]
	if !ok {
		return nil, pkgerrors.NewInvalidSort(componentName + "." + sortName)
	}
	return s, nil
}

// ComponentByName resolves a component by its kind name.
func (m *Module) ComponentByName(name string) (*sortlat.Component, error) {
	c, ok := m.componentByName[name]
	if !ok {
		return nil, pkgerrors.NewInvalidSort(name)
	}
	return c, nil
}

// SymbolByNameArity resolves a symbol by its name and arity.
func (m *Module) SymbolByNameArity(name string, arity int) (*symbol.Symbol, error) {
	s, ok := m.symByNameArity[symKey(name, arity)]
	if !ok {
		return nil, pkgerrors.NewInvalidSymbol(name)
	}
	return s, nil
}

// --- Term build API ---------------------------------------------------------

// NewTerm builds a pattern/source term rooted at the symbol named name
// with the given arity, dispatching to the free or AC/ACU constructor by
// the symbol's declared theory. Every AC/ACU child starts at multiplicity
// 1; callers that already have a multiset should build the term directly
// via the internal/term constructors instead.
func (m *Module) NewTerm(name string, children ...*term.Term) (*term.Term, error) {
	sym, err := m.SymbolByNameArity(name, len(children))
	if err != nil {
		return nil, err
	}
	switch sym.Theory {
	case symbol.TheoryAC, symbol.TheoryACU:
		acu := make([]term.ACUChild, len(children))
		for i, c := range children {
			acu[i] = term.ACUChild{Term: c, Multiplicity: 1}
		}
		return term.NewACU(sym.Theory, sym, acu), nil
	default:
		return term.NewFree(sym, children), nil
	}
}

// NewVariable builds a variable term, interning its name.
func (m *Module) NewVariable(name string, sort *sortlat.Sort) *term.Term {
	return term.NewVariable(m.Names.Intern(name), sort.Index)
}

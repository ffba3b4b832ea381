// Package symbol implements operator declarations: arity, per-argument
// strategy (eager/lazy/frozen), the sort-table diagram traversal that maps
// argument-sort tuples to a range sort, and the structural theory tag
// (free/AC/ACU/variable).
//
// Ownership follows the arena-of-indices pattern from SPEC_FULL.md §9: a
// Symbol never holds pointers into the pre-equation arena. Its equations
// table and sort-constraint table are slices of dense IDs that the owning
// Module (internal/engine) resolves against its own arenas. This avoids
// the cyclic module/symbol/pre-equation ownership the source resolves
// with interior-mutable shared pointers.
package symbol

import (
	"fmt"

	"github.com/dagterm/rewrite/internal/ident"
)

// Theory tags which structural theory a symbol's arguments obey.
type Theory int

const (
	TheoryFree Theory = iota
	TheoryAC
	TheoryACU
	TheoryVariable
)

func (t Theory) String() string {
	switch t {
	case TheoryFree:
		return "free"
	case TheoryAC:
		return "AC"
	case TheoryACU:
		return "ACU"
	case TheoryVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// ArgStrategy is the per-argument-position strategy attribute.
type ArgStrategy int

const (
	// Eager: must be reduced before this argument may participate in matching.
	Eager ArgStrategy = iota
	// Lazy: reduced at least to a sort (evaluated_argument), not necessarily further.
	Lazy
	// Frozen: never rewritten under this position.
	Frozen
)

// ID is a dense index of a Symbol within its SymbolTable.
type ID int

// SortTableState is a traversal cursor over a Symbol's sort table diagram.
type SortTableState int

const sortTableRoot SortTableState = 0

// SortTable maps an argument-sort-index tuple to a range sort index via
// successive Traverse(state, sortIndex) steps, exactly as spec.md §4.1
// describes. It is built as a trie: each state has outgoing edges keyed by
// the next argument's sort index, with some states marked terminal and
// carrying a range sort index.
type SortTable struct {
	next     []map[int]SortTableState // next[state][sortIndex] = nextState
	terminal map[SortTableState]int   // state -> range sort index
}

// NewSortTable creates an empty sort table with just the root state.
func NewSortTable() *SortTable {
	return &SortTable{
		next:     []map[int]SortTableState{{}},
		terminal: make(map[SortTableState]int),
	}
}

// AddDeclaration records that the argument-sort tuple domain maps to rangeSort.
func (st *SortTable) AddDeclaration(domain []int, rangeSort int) {
	state := sortTableRoot
	for _, sortIdx := range domain {
		next, ok := st.next[state][sortIdx]
		if !ok {
			next = SortTableState(len(st.next))
			st.next = append(st.next, map[int]SortTableState{})
			st.next[state][sortIdx] = next
		}
		state = next
	}
	st.terminal[state] = rangeSort
}

// Traverse advances one step in the diagram; ok is false if no declaration
// covers this argument-sort tuple prefix.
func (st *SortTable) Traverse(state SortTableState, sortIndex int) (SortTableState, bool) {
	next, ok := st.next[state][sortIndex]
	return next, ok
}

// RangeSort returns the declared range sort at a terminal state, if any.
func (st *SortTable) RangeSort(state SortTableState) (int, bool) {
	r, ok := st.terminal[state]
	return r, ok
}

// Root returns the sort table's initial traversal state.
func (st *SortTable) Root() SortTableState { return sortTableRoot }

// Symbol is an operator declaration.
type Symbol struct {
	ID       ID
	Name     ident.Atom
	Arity    int
	Strategy []ArgStrategy
	MemoFlag bool
	Theory   Theory
	SortTable *SortTable

	// Identity-registration-order-derived hash, per spec.md §4.2: symbol
	// comparison is by the symbol's own hash, arity folded into the high
	// bits, giving a total order stable within a module.
	hash uint64

	// EquationIDs/SortConstraintIDs/RuleIDs are indices into the owning
	// Module's pre-equation arena, in registration order (spec.md §4.9:
	// equations are tried in registration order, first success wins).
	EquationIDs       []int
	SortConstraintIDs []int
	RuleIDs           []int
}

// New constructs a Symbol. strategy must have exactly arity entries, or be
// nil for an all-eager ("standard") symbol.
func New(id ID, name ident.Atom, nameHash uint64, arity int, strategy []ArgStrategy, theory Theory, memo bool) (*Symbol, error) {
	if strategy != nil && len(strategy) != arity {
		return nil, fmt.Errorf("symbol: strategy vector length %d does not match arity %d", len(strategy), arity)
	}
	if strategy == nil {
		strategy = make([]ArgStrategy, arity) // zero value Eager: "standard" symbol
	}
	return &Symbol{
		ID:        id,
		Name:      name,
		Arity:     arity,
		Strategy:  strategy,
		MemoFlag:  memo,
		Theory:    theory,
		SortTable: NewSortTable(),
		hash:      ident.Mix(nameHash, uint64(arity)<<56),
	}, nil
}

// Hash returns the symbol's identity hash (used for AC/ACU multiset
// ordering and structural hashing of terms/DAG nodes rooted at this symbol).
func (s *Symbol) Hash() uint64 { return s.hash }

// EagerArgument reports whether argument i must be reduced before matching.
func (s *Symbol) EagerArgument(i int) bool { return s.Strategy[i] == Eager }

// EvaluatedArgument reports whether argument i is reduced at least to a sort.
func (s *Symbol) EvaluatedArgument(i int) bool {
	return s.Strategy[i] == Eager || s.Strategy[i] == Lazy
}

// FrozenArgument reports whether argument i is never rewritten under this position.
func (s *Symbol) FrozenArgument(i int) bool { return s.Strategy[i] == Frozen }

// IsStandard reports whether every argument position is Eager.
func (s *Symbol) IsStandard() bool {
	for _, st := range s.Strategy {
		if st != Eager {
			return false
		}
	}
	return true
}

// Table is a module-owned registry of symbols, keyed by a canonical
// (name, arity, theory) key for deduplication, mirroring the teacher's
// CompiledRuleset.AddPrimitive dedup-by-key pattern.
type Table struct {
	byKey   map[string]ID
	symbols []*Symbol
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{byKey: make(map[string]ID)}
}

func key(name string, arity int, theory Theory) string {
	return fmt.Sprintf("%s/%d/%s", name, arity, theory)
}

// Declare registers a new symbol, or returns the existing one if an
// identical (name, arity, theory) declaration was already made.
func (t *Table) Declare(names *ident.Table, name string, arity int, strategy []ArgStrategy, theory Theory, memo bool) (*Symbol, error) {
	k := key(name, arity, theory)
	if id, ok := t.byKey[k]; ok {
		return t.symbols[id], nil
	}
	atom := names.Intern(name)
	id := ID(len(t.symbols))
	sym, err := New(id, atom, names.HashOf(atom), arity, strategy, theory, memo)
	if err != nil {
		return nil, err
	}
	t.symbols = append(t.symbols, sym)
	t.byKey[k] = id
	return sym, nil
}

// Get returns the symbol with the given ID.
func (t *Table) Get(id ID) *Symbol { return t.symbols[id] }

// Len returns the number of declared symbols.
func (t *Table) Len() int { return len(t.symbols) }

// All returns every declared symbol in registration order. The returned
// slice is the table's own backing array and must not be mutated.
func (t *Table) All() []*Symbol { return t.symbols }

// RangeSortFor resolves a symbol's range sort given the sort indices of its
// arguments, walking the sort-table diagram one step per argument,
// returning the component's kind index if the tuple is not covered.
func RangeSortFor(sym *Symbol, argSorts []int, kindIndex int) int {
	state := sym.SortTable.Root()
	for _, s := range argSorts {
		next, ok := sym.SortTable.Traverse(state, s)
		if !ok {
			return kindIndex
		}
		state = next
	}
	if r, ok := sym.SortTable.RangeSort(state); ok {
		return r
	}
	return kindIndex
}


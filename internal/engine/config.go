// Package engine ties every compiled-engine component together into the
// Module build API, evaluation API, and tracing/profiling sink of
// spec.md §6, plus the EngineConfig and Module one-shot state machine of
// SPEC_FULL.md §9.
//
// Grounded on the teacher's dag/engine.go DagEngineBuilder/DagEngineConfig
// chained-builder idiom ("With...()" methods, DefaultDagEngineConfig/
// HighPerformanceConfig named presets) for EngineConfig, and on the
// Design Notes §9 "arena of symbols and pre-equations indexed by dense
// integers" guidance for Module's ownership model.
package engine

// EngineConfig is an immutable set of engine-wide knobs, carried by
// pointer through a RewritingContext (never copied) per Design Notes §9.
type EngineConfig struct {
	// MemoEnabled/MemoCapacity control the module-level memo map
	// consulted by symbols with their MemoFlag set (spec.md §4.2).
	MemoEnabled  bool
	MemoCapacity int

	// TraceEnabled gates the slow trace-call path (spec.md §4.9: "trace
	// calls are only reached when the global trace-status flag is set").
	TraceEnabled bool

	// DefaultPrintFlags seeds a fresh Module's Print field.
	DefaultPrintFlags PrintFlags

	// DefaultRewriteBound is used by Rewrite when the caller passes a
	// non-positive bound.
	DefaultRewriteBound int

	// PreferGreedyACU forces internal/acu's Greedy match strategy instead
	// of its ordinary Full-default choice, for deterministic test
	// harnesses that want to exercise the "undecided" disposition on
	// demand (spec.md §7).
	PreferGreedyACU bool
}

// DefaultEngineConfig mirrors the teacher's DefaultDagEngineConfig/
// DefaultCompilerConfig: memoization and tracing off, a conservative
// default rewrite bound, standard (non-greedy) AC/ACU matching.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MemoEnabled:          false,
		MemoCapacity:         1024,
		TraceEnabled:         false,
		DefaultPrintFlags:    0,
		DefaultRewriteBound:  10000,
		PreferGreedyACU:      false,
	}
}

// HighPerformanceConfig mirrors the teacher's HighPerformanceConfig
// preset: memoization on with a larger table, tracing off.
func HighPerformanceConfig() *EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.MemoEnabled = true
	cfg.MemoCapacity = 65536
	return cfg
}

// EngineConfigBuilder is the chained-builder constructor for EngineConfig.
type EngineConfigBuilder struct {
	cfg EngineConfig
}

// NewEngineConfigBuilder starts from DefaultEngineConfig's values.
func NewEngineConfigBuilder() *EngineConfigBuilder {
	return &EngineConfigBuilder{cfg: *DefaultEngineConfig()}
}

// WithMemo enables/disables the module-level memo map and sets its
// capacity (bucket count; internal/engine.MemoTable keys on hash %
// capacity with open addressing, spec.md §9 Open Question (a)).
func (b *EngineConfigBuilder) WithMemo(enabled bool, capacity int) *EngineConfigBuilder {
	b.cfg.MemoEnabled = enabled
	b.cfg.MemoCapacity = capacity
	return b
}

// WithTrace enables/disables the trace-call fast-path gate.
func (b *EngineConfigBuilder) WithTrace(enabled bool) *EngineConfigBuilder {
	b.cfg.TraceEnabled = enabled
	return b
}

// WithDefaultPrintFlags sets the print-flags default for new modules.
func (b *EngineConfigBuilder) WithDefaultPrintFlags(f PrintFlags) *EngineConfigBuilder {
	b.cfg.DefaultPrintFlags = f
	return b
}

// WithDefaultRewriteBound sets the fallback rule-rewrite bound.
func (b *EngineConfigBuilder) WithDefaultRewriteBound(n int) *EngineConfigBuilder {
	b.cfg.DefaultRewriteBound = n
	return b
}

// WithPreferGreedyACU forces the Greedy AC/ACU match strategy.
func (b *EngineConfigBuilder) WithPreferGreedyACU(v bool) *EngineConfigBuilder {
	b.cfg.PreferGreedyACU = v
	return b
}

// Build finalizes the configuration.
func (b *EngineConfigBuilder) Build() *EngineConfig {
	cfg := b.cfg
	return &cfg
}

// InterpreterAttributes is the bitfield of spec.md §6: show-command,
// show-stats, show-timing, show-breakdown, show-loop-stats,
// show-loop-timing, e-rewrite-loop-mode, auto-clear-memo, profile,
// auto-clear-profile, break, trace, trace-condition, trace-whole,
// trace-substitution, trace-select, trace-mb, trace-eq, trace-rl,
// trace-sd, trace-rewrite, trace-body, trace-builtin, auto-clear-rules,
// compile-count.
type InterpreterAttributes uint32

const (
	AttrShowCommand InterpreterAttributes = 1 << iota
	AttrShowStats
	AttrShowTiming
	AttrShowBreakdown
	AttrShowLoopStats
	AttrShowLoopTiming
	AttrERewriteLoopMode
	AttrAutoClearMemo
	AttrProfile
	AttrAutoClearProfile
	AttrBreak
	AttrTrace
	AttrTraceCondition
	AttrTraceWhole
	AttrTraceSubstitution
	AttrTraceSelect
	AttrTraceMb
	AttrTraceEq
	AttrTraceRl
	AttrTraceSd
	AttrTraceRewrite
	AttrTraceBody
	AttrTraceBuiltin
	AttrAutoClearRules
	AttrCompileCount
)

// ExceptionFlags is the composite spec.md §6 calls out explicitly:
// exception-flags = trace | break | profile.
func (a InterpreterAttributes) ExceptionFlags() InterpreterAttributes {
	return a & (AttrTrace | AttrBreak | AttrProfile)
}

// PrintFlags is the bitfield of spec.md §6: print-graph, print-conceal,
// print-format, print-mixfix, print-with-parens, print-color,
// print-disambig-const, print-with-aliases, print-flat, print-number,
// print-rat.
type PrintFlags uint16

const (
	PrintGraph PrintFlags = 1 << iota
	PrintConceal
	PrintFormat
	PrintMixfix
	PrintWithParens
	PrintColor
	PrintDisambigConst
	PrintWithAliases
	PrintFlat
	PrintNumber
	PrintRat
)

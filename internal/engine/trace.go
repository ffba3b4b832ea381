package engine

import "github.com/dagterm/rewrite/internal/dagnode"

// TraceSink is the tracing/profiling hook surface of spec.md §6: eight
// notifications. A Module delivers them to an installed sink only when
// its TraceEnabled config is set (Module.SetTraceSink installs NullSink
// otherwise), so a production rewrite pays only NullSink's no-op calls
// when tracing is off (spec.md §4.9 "trace calls are only reached when
// the global trace-status flag is set").
//
// Grounded on the teacher's matcher/hooks.go CompilationHookManager: a
// small fixed set of named notification points threaded through a
// pipeline, generalized here from compiler-phase hooks to rewrite-event
// hooks.
type TraceSink interface {
	TraceEquation(label string, subject, replacement *dagnode.DagNode)
	TraceRule(label string, subject, replacement *dagnode.DagNode)
	TraceMembership(label string, subject *dagnode.DagNode, sortName string)
	TraceCondition(label string, fragmentIndex int, ok bool)
	TraceWhole(subject *dagnode.DagNode)
	TraceSubstitution(preEqLabel string)
	TraceSelect(symbolName string, candidateCount int)
	TraceBuiltin(symbolName string, subject *dagnode.DagNode)
}

// NullSink discards every trace event; it is the default sink so that an
// un-configured Module pays only the cost of an interface call, never the
// cost of formatting a trace line.
type NullSink struct{}

func (NullSink) TraceEquation(string, *dagnode.DagNode, *dagnode.DagNode)  {}
func (NullSink) TraceRule(string, *dagnode.DagNode, *dagnode.DagNode)      {}
func (NullSink) TraceMembership(string, *dagnode.DagNode, string)         {}
func (NullSink) TraceCondition(string, int, bool)                        {}
func (NullSink) TraceWhole(*dagnode.DagNode)                              {}
func (NullSink) TraceSubstitution(string)                                {}
func (NullSink) TraceSelect(string, int)                                 {}
func (NullSink) TraceBuiltin(string, *dagnode.DagNode)                   {}

// RecordingSink accumulates trace lines in memory, for tests and other
// in-process callers. It never formats a DagNode's full
// structure (that is the caller's job via DumpGraph); it records only the
// event shape.
type RecordingSink struct {
	Lines []string
}

func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (r *RecordingSink) TraceEquation(label string, subject, replacement *dagnode.DagNode) {
	r.Lines = append(r.Lines, "equation "+label)
}
func (r *RecordingSink) TraceRule(label string, subject, replacement *dagnode.DagNode) {
	r.Lines = append(r.Lines, "rule "+label)
}
func (r *RecordingSink) TraceMembership(label string, subject *dagnode.DagNode, sortName string) {
	r.Lines = append(r.Lines, "membership "+label+" : "+sortName)
}
func (r *RecordingSink) TraceCondition(label string, fragmentIndex int, ok bool) {
	if ok {
		r.Lines = append(r.Lines, "condition "+label+" fragment succeeded")
	} else {
		r.Lines = append(r.Lines, "condition "+label+" fragment failed")
	}
}
func (r *RecordingSink) TraceWhole(subject *dagnode.DagNode) {
	r.Lines = append(r.Lines, "whole")
}
func (r *RecordingSink) TraceSubstitution(preEqLabel string) {
	r.Lines = append(r.Lines, "substitution "+preEqLabel)
}
func (r *RecordingSink) TraceSelect(symbolName string, candidateCount int) {
	r.Lines = append(r.Lines, "select "+symbolName)
}
func (r *RecordingSink) TraceBuiltin(symbolName string, subject *dagnode.DagNode) {
	r.Lines = append(r.Lines, "builtin "+symbolName)
}

package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/symbol"
)

// DumpGraph writes every canonical node in the module's hash-cons set, in
// insertion order, as `#i = symbol(#j, #k, ...)` lines (spec.md §6
// print-graph), the cheapest possible serialization that still lets a
// reader reconstruct sharing: a child is always printed by its own index
// rather than inlined, so a node shared by two parents appears once and
// is referenced twice.
func (m *Module) DumpGraph(w io.Writer) error {
	nodes := m.Cache.Nodes()
	for i, n := range nodes {
		if _, err := fmt.Fprintf(w, "#%d = %s\n", i, m.describeNode(n)); err != nil {
			return err
		}
	}
	return nil
}

// DumpRef renders n the same way a child reference appears inside
// DumpGraph's output: "#i" if n is present in the module's hash-cons set,
// else its full description.
func (m *Module) DumpRef(n *dagnode.DagNode) string {
	return m.refOf(n)
}

func (m *Module) describeNode(n *dagnode.DagNode) string {
	switch n.Theory {
	case symbol.TheoryVariable:
		return "#var:" + m.Names.Lookup(n.VarName)
	case symbol.TheoryFree:
		name := m.Names.Lookup(n.Sym.Name)
		if len(n.Children) == 0 {
			return name
		}
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = m.refOf(c)
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
	case symbol.TheoryAC, symbol.TheoryACU:
		name := m.Names.Lookup(n.Sym.Name)
		parts := make([]string, len(n.ACU))
		for i, c := range n.ACU {
			parts[i] = fmt.Sprintf("%s*%d", m.refOf(c.Node), c.Multiplicity)
		}
		return fmt.Sprintf("%s{%s}", name, strings.Join(parts, ", "))
	default:
		return "?"
	}
}

func (m *Module) refOf(n *dagnode.DagNode) string {
	idx := m.Cache.InsertionIndex(n)
	if idx < 0 {
		return m.describeNode(n)
	}
	return fmt.Sprintf("#%d", idx)
}

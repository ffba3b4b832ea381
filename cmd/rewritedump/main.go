// Command rewritedump loads a YAML rewrite module, reduces one supplied
// term to normal form, and prints the shared DAG's graph-dump
// serialization (spec.md §6 "print-graph": `#i = symbol(#j, #k, …)`,
// round-trip not required).
//
// Usage:
//
//	rewritedump -module module.yaml -term peano-two.yaml
//
// The teacher ships no cmd/ of its own; this is a new addition in the
// pack's idiom (dolthub and AleutianFOSS both ship a cmd/ beside their
// library), wiring internal/moduleyaml and internal/engine together into
// a minimal runnable entrypoint.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dagterm/rewrite/internal/engine"
	"github.com/dagterm/rewrite/internal/moduleyaml"
)

func main() {
	modulePath := flag.String("module", "", "path to a rewrite-module YAML document")
	termPath := flag.String("term", "", "path to a YAML term document (same shape as an equation's lhs/rhs) to reduce")
	bound := flag.Int("bound", 0, "rule-rewrite bound; 0 uses the engine's default")
	memo := flag.Bool("memo", false, "enable the module-level memo map")
	breakdown := flag.Bool("breakdown", false, "print per-pre-equation attempt/success counters (spec.md show-breakdown)")
	flag.Parse()

	if *modulePath == "" || *termPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rewritedump -module module.yaml -term term.yaml")
		os.Exit(2)
	}

	if err := run(*modulePath, *termPath, *bound, *memo, *breakdown); err != nil {
		fmt.Fprintln(os.Stderr, "rewritedump:", err)
		os.Exit(1)
	}
}

func run(modulePath, termPath string, bound int, memo, breakdown bool) error {
	cfg := engine.NewEngineConfigBuilder().
		WithMemo(memo, 4096).
		WithDefaultRewriteBound(10000).
		Build()

	m, err := moduleyaml.LoadFile(modulePath, cfg)
	if err != nil {
		return fmt.Errorf("loading module: %w", err)
	}

	t, err := moduleyaml.LoadTermFile(termPath, m)
	if err != nil {
		return fmt.Errorf("loading term: %w", err)
	}

	reduced, ctx, err := m.Rewrite(t, bound)
	if err != nil {
		return fmt.Errorf("rewriting: %w", err)
	}

	fmt.Printf("; membership=%d equation=%d rule=%d\n",
		ctx.Counters.MembershipCount, ctx.Counters.EquationCount, ctx.Counters.RuleCount)
	if err := m.DumpGraph(os.Stdout); err != nil {
		return fmt.Errorf("dumping graph: %w", err)
	}
	fmt.Println("; result =", m.DumpRef(reduced))

	if breakdown {
		for label, prof := range m.Profiles() {
			fmt.Printf("; %s: attempts=%d successes=%d cost=%d\n",
				label, prof.AttemptCount, prof.SuccessCount, prof.AttemptCost)
		}
	}
	return nil
}

package plan

import (
	"fmt"
	"io"
	"strings"
)

// WriteScript renders the plan as a bash script driving GNU parallel. One
// commented block is emitted per depth layer; layers run strictly in
// order, batches within a layer feed parallel with the batch's jobs
// argument. The script is self-contained and safe to inspect before
// running.
func WriteScript(w io.Writer, p *Plan) error {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env bash\n")
	fmt.Fprintf(&b, "# Execution plan for %s.\n", p.Root)
	b.WriteString("# Each depth block is an ordering barrier: it must finish before the\n")
	b.WriteString("# next block starts. Lines within a block are independent builds.\n")
	b.WriteString("set -euo pipefail\n")

	for _, layer := range p.Layers {
		fmt.Fprintf(&b, "\n# depth %d\n", layer.Depth)
		for bi, batch := range layer.Batches {
			marker := fmt.Sprintf("JOBS_%d_%d", layer.Depth, bi)
			fmt.Fprintf(&b, "parallel --halt soon,fail=1 -j %s <<'%s'\n", batch.JobsArg, marker)
			for _, inv := range batch.Invocations {
				b.WriteString(inv.Command())
				b.WriteByte('\n')
			}
			b.WriteString(marker)
			b.WriteByte('\n')
		}
	}

	if p.Empty() {
		b.WriteString("\n# Nothing to build: every target is up to date.\n")
	}

	for _, s := range p.Blocked {
		fmt.Fprintf(&b, "# blocked: %s (%s)\n", s.ID, s.Reason)
	}
	for _, pr := range p.Problems {
		if pr.Target != "" {
			fmt.Fprintf(&b, "# problem: %s:%s: %s\n", pr.ModuleDir, pr.Target, pr.Err)
		} else {
			fmt.Fprintf(&b, "# problem: %s: %s\n", pr.ModuleDir, pr.Err)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

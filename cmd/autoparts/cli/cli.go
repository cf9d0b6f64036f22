// Package cli implements the operator commands of the autoparts binary.
package cli

import (
	"context"
	"fmt"
	"io"
)

const usage = `usage: autoparts <command> [flags]

commands:
  report   print a receivables view (customer or supplier ledger)
  jobs     trigger the warmup job or inspect the queue
`

// Run dispatches args to a command and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
	switch args[0] {
	case "report":
		return runReport(ctx, args[1:], stdout, stderr)
	case "jobs":
		return runJobs(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 1
	}
}

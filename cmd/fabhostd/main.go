// Command fabhostd is the operator-facing control plane for a Fabstir host
// node: it authenticates an on-chain operator identity, supervises the
// inference child process, settles sessions and checkpoints on-chain, and
// exposes a management API for external tooling.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return 0
}

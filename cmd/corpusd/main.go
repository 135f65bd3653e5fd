// corpusd is the graph-augmented retrieval engine CLI: decompose a corpus,
// run one-shot navigations, and inspect corpus health.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

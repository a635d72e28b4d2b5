// Command ragd runs the retrieval-augmented-generation service: ingest and
// retrieval over tenant-partitioned collections, fronted by an HTTP API.
package main

import (
	"fmt"
	"os"

	"ragfabric/cmd/ragd/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

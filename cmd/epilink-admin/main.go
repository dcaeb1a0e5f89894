// epilink-admin is the operational CLI for the role engine: it validates the
// guild/rule configuration and triggers cache invalidation and resyncs.
package main

import (
	"fmt"
	"os"

	"github.com/epilink/epilink/cmd/epilink-admin/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

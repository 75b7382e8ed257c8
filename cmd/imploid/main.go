// Command imploid is the orchestrator's entry point.
package main

import (
	"fmt"
	"os"

	"github.com/Hey-Diga/imploid/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

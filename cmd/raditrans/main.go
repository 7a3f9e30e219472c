// Command raditrans is the command-line entry point wiring configuration,
// grid construction, the medium model, sources, observers, and the
// lifecycle/self-absorption drivers into a full Monte Carlo radiative
// transfer run, grounded on spatialmodel-inmap/inmap/main.go's
// cmd.Root.Execute() dispatch.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

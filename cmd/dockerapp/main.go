package main

import (
	"fmt"
	"os"

	// Embedded zone database for TZ in minimal images.
	_ "time/tzdata"

	"github.com/psantana5/dockerapp/cmd/dockerapp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}

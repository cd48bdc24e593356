// Command detalharctl is the operator CLI for the detalhar job pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/plattargus/detalhar/cmd/detalharctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

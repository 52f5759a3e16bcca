// The main package for the cnstatus executable.
package main

import (
	"github.com/JakeFAU/cyphernode-status/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

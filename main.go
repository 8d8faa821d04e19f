// The main package for the freelance-crawler executable.
package main

import (
	"github.com/JakeFAU/freelance-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

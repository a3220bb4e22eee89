// Package main is the entry point for the pulso TCP connection counter.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pulso/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if cmd.IsUsageError(err) {
		fmt.Fprintln(os.Stderr, "Run 'pulso --help' for usage.")
		os.Exit(2)
	}
	os.Exit(1)
}

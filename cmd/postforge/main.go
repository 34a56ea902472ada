// Command postforge is the CLI companion to postforged. Every subcommand
// talks to the daemon's HTTP API; nothing here touches the store directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

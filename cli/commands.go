// Package cli implements the pdfreport subcommands.
package cli

import (
	"fmt"
	"os"
)

var osExit = os.Exit

func Usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  render  Render one report from a JSON or YAML record")
	fmt.Println("  batch   Render reports for many records concurrently")
	fmt.Println("  serve   Serve report rendering over HTTP")
	fmt.Println("  verify  Verify the seal of a delivered report")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

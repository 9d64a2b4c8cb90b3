package main

import (
	"fmt"
	"os"

	"github.com/digitorus/pdfreport/cli"
)

func main() {
	if len(os.Args) < 2 {
		cli.Usage()
	}

	switch os.Args[1] {
	case "render":
		cli.RenderCommand()
	case "batch":
		cli.BatchCommand()
	case "serve":
		cli.ServeCommand()
	case "verify":
		cli.VerifyCommand()
	case "-h", "--help", "help":
		cli.Usage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		cli.Usage()
	}
}

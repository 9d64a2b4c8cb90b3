package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/digitorus/pdfreport/reports"
	"github.com/digitorus/pdfreport/sink"
)

var (
	ConfigPath string
	Kind       string
	OutputDir  string
)

func RenderCommand() {
	renderFlags := flag.NewFlagSet("render", flag.ExitOnError)

	renderFlags.StringVar(&ConfigPath, "config", "", "Configuration file (default ./pdfreport.toml if present)")
	renderFlags.StringVar(&Kind, "kind", "claim", "Report kind (admin, claim)")
	renderFlags.StringVar(&OutputDir, "out", ".", "Directory the report is written to")

	renderFlags.Usage = func() {
		fmt.Printf("Usage: %s render [options] <record.json|record.yaml>\n\n", os.Args[0])
		fmt.Println("Render one report from a JSON or YAML record")
		fmt.Println("\nOptions:")
		renderFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s render -kind claim claim.yaml\n", os.Args[0])
		fmt.Printf("  %s render -kind admin -out reports review.json\n", os.Args[0])
	}

	if err := renderFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse render flags: %v", err)
		osExit(1)
	}

	if len(renderFlags.Args()) < 1 {
		renderFlags.Usage()
		osExit(1)
		return
	}

	RenderReport(renderFlags.Arg(0))
}

// RenderReport renders the record at input; replaced in tests.
var RenderReport = renderReportImpl

func renderReportImpl(input string) {
	kind, err := reports.ParseKind(Kind)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	env := setup(ConfigPath)
	if env == nil {
		return
	}
	defer env.Close()

	f, err := os.Open(input)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Warning: failed to close input file: %v", err)
		}
	}()

	name, err := reports.Export(context.Background(), env.Exporter, kind, f, reports.FormatOf(input), env.Sink(sink.File{Dir: OutputDir}))
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	fmt.Println(name)
}

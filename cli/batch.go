package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/digitorus/pdfreport/reports"
	"github.com/digitorus/pdfreport/sink"
)

var Concurrency int

func BatchCommand() {
	batchFlags := flag.NewFlagSet("batch", flag.ExitOnError)

	batchFlags.StringVar(&ConfigPath, "config", "", "Configuration file (default ./pdfreport.toml if present)")
	batchFlags.StringVar(&Kind, "kind", "claim", "Report kind (admin, claim)")
	batchFlags.StringVar(&OutputDir, "out", ".", "Directory the reports are written to")
	batchFlags.IntVar(&Concurrency, "concurrency", 0, "Reports rendered at once (default from configuration)")

	batchFlags.Usage = func() {
		fmt.Printf("Usage: %s batch [options] <record>...\n\n", os.Args[0])
		fmt.Println("Render one report per record, several at a time")
		fmt.Println("\nOptions:")
		batchFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s batch -kind admin -out reports records/*.yaml\n", os.Args[0])
	}

	if err := batchFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse batch flags: %v", err)
		osExit(1)
	}

	if len(batchFlags.Args()) < 1 {
		batchFlags.Usage()
		osExit(1)
		return
	}

	BatchReports(batchFlags.Args())
}

// BatchReports renders every record in inputs; replaced in tests.
var BatchReports = batchReportsImpl

func batchReportsImpl(inputs []string) {
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

	records := make(map[string][]byte, len(inputs))
	for _, input := range inputs {
		data, err := os.ReadFile(input)
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
		records[filepath.Base(input)] = data
	}

	limit := Concurrency
	if limit < 1 {
		limit = env.Config.Batch.Concurrency
	}
	if err := reports.ExportAll(context.Background(), env.Exporter, kind, records, env.Sink(sink.File{Dir: OutputDir}), limit); err != nil {
		log.Println(err)
		osExit(1)
		return
	}
}

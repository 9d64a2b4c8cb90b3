package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/digitorus/pdfreport/server"
)

var Addr string

func ServeCommand() {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)

	serveFlags.StringVar(&ConfigPath, "config", "", "Configuration file (default ./pdfreport.toml if present)")
	serveFlags.StringVar(&Addr, "addr", "", "Listen address (default from configuration)")

	serveFlags.Usage = func() {
		fmt.Printf("Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Println("Serve POST /reports/{admin|claim} and GET /health")
		fmt.Println("\nOptions:")
		serveFlags.PrintDefaults()
	}

	if err := serveFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse serve flags: %v", err)
		osExit(1)
	}

	env := setup(ConfigPath)
	if env == nil {
		return
	}
	defer env.Close()

	addr := Addr
	if addr == "" {
		addr = env.Config.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(env.Exporter, env.Logger)
	if env.Sealer != nil {
		srv.WithSealer(env.Sealer)
	}
	env.Logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Println(err)
		osExit(1)
	}
}

// Command vectorstore serves vector indexes over HTTP, MCP or both.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Zereker/vectorstore/internal/server"
	"github.com/Zereker/vectorstore/pkg/vector"
)

var (
	configFile  = flag.String("config", "configs/config.toml", "Path to config file")
	mode        = flag.String("mode", "", "Override server.mode: http, mcp or both")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("vectorstore", vector.Version)
		return
	}

	if err := run(); err != nil {
		slog.Error("vectorstore exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := server.LoadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load %s: %w", *configFile, err)
	}
	if *mode != "" {
		conf.Server.Mode = *mode
		if err := conf.Server.Validate(); err != nil {
			return err
		}
	}

	srv, err := server.NewServer(conf)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer func() { _ = srv.Shutdown() }()

	return srv.Start()
}

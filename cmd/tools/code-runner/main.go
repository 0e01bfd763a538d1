package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/pairpad/internal/config"
	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/logging"
	"github.com/michaelbrown/pairpad/internal/tools"
)

func main() {
	cfg, err := config.Load(os.Getenv("PAIRPAD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	engine, err := execution.FromConfig(cfg.Runtime, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	s := tools.NewCodeRunner(engine).Server("0.1.0")
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

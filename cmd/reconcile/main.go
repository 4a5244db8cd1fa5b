package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/eshaffer321/bankrecon/internal/cli"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
)

func main() {
	flags, err := cli.ParseReconcileFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg := config.LoadOrEnvWithPath(flags.ConfigPath)
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.New(os.Stderr, loggingCfg).With(logging.ComponentKey, "reconcile")

	report, err := cli.RunReconcile(cfg, flags, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if flags.JSON {
		if err := cli.PrintJSON(os.Stdout, report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	cli.PrintHeader(os.Stdout, report)
	cli.PrintReport(os.Stdout, report)
}

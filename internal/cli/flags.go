package cli

import (
	"errors"
	"flag"
	"io"
)

// ReconcileFlags are the flags of the offline reconcile command
type ReconcileFlags struct {
	StatementPath string
	LedgerPath    string
	ConfigPath    string
	JSON          bool
	Exclusive     bool
	Threshold     int // 0 = use config
	Verbose       bool
}

// ParseReconcileFlags parses the reconcile command line. Usage goes to out.
func ParseReconcileFlags(args []string, out io.Writer) (*ReconcileFlags, error) {
	flags := &ReconcileFlags{}
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&flags.StatementPath, "statement", "", "OFX statement file to reconcile")
	fs.StringVar(&flags.LedgerPath, "ledger", "", "JSON file with ledger transactions")
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Path to config file")
	fs.BoolVar(&flags.JSON, "json", false, "Print results as JSON")
	fs.BoolVar(&flags.Exclusive, "exclusive", false, "Suggest each ledger transaction at most once")
	fs.IntVar(&flags.Threshold, "threshold", 0, "Minimum score for a suggestion (0 = config value)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if flags.StatementPath == "" {
		return nil, errors.New("-statement is required")
	}
	if flags.LedgerPath == "" {
		return nil, errors.New("-ledger is required")
	}
	if flags.Threshold < 0 || flags.Threshold > 100 {
		return nil, errors.New("-threshold must be between 0 and 100")
	}
	return flags, nil
}

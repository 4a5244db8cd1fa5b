package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

const descriptionWidth = 32

// PrintHeader prints the statement and matching configuration
func PrintHeader(w io.Writer, r *Report) {
	mode := "shared"
	if r.Exclusive {
		mode = "exclusive"
	}
	fmt.Fprintf(w, "bankrecon: %s (%s, account %s)\n",
		r.Statement.File, humanize.Bytes(uint64(r.Statement.Size)), r.Statement.AccountID)
	fmt.Fprintf(w, "Ledger: %d entries | Threshold: %d | Mode: %s\n\n", r.LedgerCount, r.Threshold, mode)
}

// PrintReport prints one row per bank transaction and a summary
func PrintReport(w io.Writer, r *Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tKIND\tAMOUNT\tDESCRIPTION\tSUGGESTED\tSCORE\tDAYS")
	for i, res := range r.Results {
		b := res.BankTransaction
		suggested := "-"
		if res.Suggested != nil {
			suggested = res.Suggested.ID
		}
		days := "?"
		if res.Breakdown.DatesKnown {
			days = fmt.Sprintf("%.0f", res.Breakdown.DaysApart)
		}
		if res.Candidates == 0 {
			days = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			i+1, b.PostedDate, b.Kind, b.Amount.StringFixed(2),
			truncate(b.Description, descriptionWidth), suggested, res.Score, days)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Transactions=%d Suggested=%d Unmatched=%d Warnings=%d\n",
		len(r.Results), r.Suggested, len(r.Results)-r.Suggested, len(r.Statement.Warnings))
	fmt.Fprintf(w, "Balance: opening=%s closing=%s\n",
		r.Statement.OpeningBalance.StringFixed(2), r.Statement.ClosingBalance.StringFixed(2))

	if len(r.Statement.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range r.Statement.Warnings {
			fmt.Fprintf(w, "  - block %d: %s\n", warn.Block, warn.Detail)
		}
	}
}

// PrintJSON writes the report as indented JSON
func PrintJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

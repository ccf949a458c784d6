package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"PersonaChat/internal/ledger"
)

var ledgerLimit int

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recent completions recorded by the server",
	Long: `Print the most recent completion records: model, outcome, error kind,
latency and prompt digest. Message text is never stored.`,
	RunE: runLedger,
}

func init() {
	ledgerCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 20, "number of entries to show")
	ledgerCmd.SilenceUsage = true
}

func runLedger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := l.Recent(ctx, ledgerLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No completions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMODEL\tOUTCOME\tERROR\tLATENCY\tDIGEST\tREQUEST")
	for _, e := range entries {
		kind := e.ErrorKind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Model, e.Outcome, kind, e.Duration, e.PromptDigest, e.RequestID)
	}
	return tw.Flush()
}

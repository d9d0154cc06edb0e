package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/storage"
)

var (
	flagLogLimit  int
	flagLogVerify bool
	flagLogJSON   bool
)

func resetLogFlags() {
	flagLogLimit, flagLogVerify, flagLogJSON = 20, false, false
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the audit journal",
	Long: `Prints the most recent journal events. With --verify the whole journal is
checked instead: every event must link to the hash of the one before it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		out := cmd.OutOrStdout()

		if flagLogVerify {
			report, err := m.VerifyAuditLog(cmd.Context())
			if err != nil {
				return err
			}
			if flagLogJSON {
				err = writeJSON(out, report)
			} else {
				printChainReport(out, m.Dir(), report)
			}
			if err != nil {
				return err
			}
			if !report.Valid {
				return exitError{1}
			}
			return nil
		}

		events, err := m.AuditLog(cmd.Context(), flagLogLimit)
		if err != nil {
			return err
		}
		if flagLogJSON {
			return writeJSON(out, events)
		}
		for _, ev := range events {
			printEvent(out, ev)
		}
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEvent(w io.Writer, ev storage.Event) {
	outcome := success(ev.Outcome)
	if ev.Outcome != "ok" {
		outcome = warning(ev.Outcome)
	}
	line := fmt.Sprintf("%s  %-8s %-6s", ev.At.Local().Format(time.DateTime), ev.Action, outcome)
	if ev.Name != "" {
		line += " " + ev.Name
	}
	if ev.Detail != "" {
		line += " " + muted(ev.Detail)
	}
	fmt.Fprintln(w, line)
}

func printChainReport(w io.Writer, dir string, report storage.ChainReport) {
	fmt.Fprintf(w, "Audit chain verification: %s\n", dir)
	fmt.Fprintf(w, "Events: %d\n\n", report.EventCount)

	for _, c := range report.Checks {
		tag := success("[PASS]")
		switch c.Status {
		case storage.CheckFail:
			tag = failure("[FAIL]")
		case storage.CheckWarn:
			tag = warning("[WARN]")
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if report.Valid {
		fmt.Fprintln(w, "Result: VALID")
		return
	}
	failures, warnings := report.Counts()
	fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
}

func init() {
	logCmd.Flags().IntVar(&flagLogLimit, "limit", 20, "number of recent events to show, 0 for all")
	logCmd.Flags().BoolVar(&flagLogVerify, "verify", false, "verify the journal's hash chain")
	logCmd.Flags().BoolVar(&flagLogJSON, "json", false, "output JSON")
	rootCmd.AddCommand(logCmd)
}

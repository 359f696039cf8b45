package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect recorded attendance",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List recorded attendance",
	Long: `List recorded attendance, optionally for one day or one person.
Names match ignoring case and diacritics ("jan novak" matches "Jan Novák").

Examples:
  attendance ledger show --date 2024-01-01
  attendance ledger show --name alice --json`,
	Args: cobra.NoArgs,
	RunE: runLedgerShow,
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Check whether a person is already recorded for a day",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerCheck,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)

	ledgerShowCmd.Flags().String("date", "", "Only show this day (YYYY-MM-DD)")
	ledgerShowCmd.Flags().String("name", "", "Only show this person")
	ledgerShowCmd.Flags().Bool("json", false, "Output as JSON")

	ledgerCheckCmd.Flags().String("date", "", "Day to check (YYYY-MM-DD, default today)")
}

// LedgerEntry is one event in the ledger show JSON output.
type LedgerEntry struct {
	Name       string  `json:"name"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Confidence float64 `json:"confidence"`
}

// parseDay parses a YYYY-MM-DD flag value in the local time zone.
func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(constants.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")
	filter := ledger.Filter{
		Day:  mustGetString(cmd, "date"),
		Name: mustGetString(cmd, "name"),
	}
	if filter.Day != "" {
		if _, err := parseDay(filter.Day); err != nil {
			return err
		}
	}

	cfg := loadConfig(cmd)
	log := newLogger(cfg)

	l, _, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.Query(ctx, filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]LedgerEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, LedgerEntry{Name: e.Name, Date: e.Date, Time: e.Time, Confidence: e.Confidence})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(entries) == 0 {
		fmt.Println("No attendance recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tTIME\tMATCH %")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Date, e.Time, ledger.FormatConfidence(e.Confidence))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", len(entries))
	return nil
}

func runLedgerCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	day := time.Now()
	if s := mustGetString(cmd, "date"); s != "" {
		d, err := parseDay(s)
		if err != nil {
			return err
		}
		day = d
	}

	cfg := loadConfig(cmd)
	log := newLogger(cfg)

	l, _, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()

	recorded, err := l.HasRecordedToday(ctx, name, day)
	if err != nil {
		return err
	}

	if recorded {
		fmt.Printf("%s: recorded on %s\n", name, ledger.Day(day))
	} else {
		fmt.Printf("%s: not recorded on %s\n", name, ledger.Day(day))
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Face recognition attendance from a camera feed",
	Long: `Attendance recognizes known people in a live camera feed and records
at most one attendance entry per person per day.

Known people are loaded from a directory of reference images named after
the person (alice.jpg) or grouped in a directory per person (alice/1.jpg).
Entries are written to a CSV ledger by default, or to SQLite, PostgreSQL
or MySQL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("images", "", "Directory with reference images (env IMAGES_DIR)")
	pf.String("ledger-file", "", "CSV ledger path (env ATTENDANCE_FILE)")
	pf.String("ledger-backend", "", "Ledger backend: csv, sqlite, postgres, mysql (env LEDGER_BACKEND)")
	pf.String("log-level", "", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	pf.String("log-format", "", "Log format: pretty, text or json (env LOG_FORMAT)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

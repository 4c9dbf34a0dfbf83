package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koba/db-fixpoint/internal/database"
	"github.com/koba/db-fixpoint/internal/diffing"
	"github.com/koba/db-fixpoint/internal/filter"
	"github.com/koba/db-fixpoint/internal/fixpoint"
	"github.com/koba/db-fixpoint/internal/logging"
	"github.com/koba/db-fixpoint/internal/store"
)

var (
	fixpointDir        string
	logLevel           string
	parentName         string
	skipTables         []string
	ignoreColumns      []string
	ignoreTableColumns []string
	compareTables      []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fixpoint",
	Short: "Database fixpoint capture, restore and compare tool",
	Long:  `A tool to capture named snapshots of database contents, restore them, and compare the live database against them.`,
}

var captureCmd = &cobra.Command{
	Use:   "capture <name>",
	Short: "Capture the current database state as a fixpoint",
	Long:  `Read every table of the database and store it as a named fixpoint. With --parent only the changes against that fixpoint are stored.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCapture,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore the database from a fixpoint",
	Long:  `Resolve a named fixpoint (following its parent chain if incremental) and replace the database contents with it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var compareCmd = &cobra.Command{
	Use:   "compare <name>",
	Short: "Compare the live database against a fixpoint",
	Long:  `Load a named fixpoint and compare the current database contents against it, ignoring configured columns. Exits non-zero on mismatch.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCompare,
}

var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a fixpoint",
	Long:  `Delete a named fixpoint from the fixpoint directory. Removing an absent fixpoint is not an error.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fixpointDir, "dir", "./fixpoints", "Directory holding fixpoint files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	captureCmd.Flags().StringVar(&parentName, "parent", "", "Store only the changes against this fixpoint")
	captureCmd.Flags().StringSliceVar(&skipTables, "skip-tables", nil, "Tables to exclude from the capture")
	captureCmd.Flags().StringSliceVar(&ignoreColumns, "ignore-columns", []string{"updated_at"}, "Columns never recorded in incremental change entries")

	compareCmd.Flags().StringSliceVar(&ignoreColumns, "ignore-columns", []string{"updated_at"}, "Columns ignored in every table")
	compareCmd.Flags().StringSliceVar(&ignoreTableColumns, "ignore-table-columns", nil, "Extra ignored columns per table, as table:column")
	compareCmd.Flags().StringSliceVar(&compareTables, "tables", nil, "Tables to compare (default: all tables on either side)")
	compareCmd.Flags().StringSliceVar(&skipTables, "skip-tables", nil, "Tables to exclude from the comparison")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(rmCmd)
}

func newFixpoint(ignored filter.IgnoredColumns) (*fixpoint.Fixpoint, func(), error) {
	config, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	gw, err := database.NewGateway(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	if err := gw.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st, err := store.New(fixpointDir, diffing.Options{IgnoreColumns: ignored.Global})
	if err != nil {
		gw.Close()
		return nil, nil, err
	}

	fp := fixpoint.New(gw, st, fixpoint.Options{
		SkipTables: skipTables,
		Ignored:    ignored,
		Logger:     logging.NewLogger(logLevel),
	})
	return fp, func() { gw.Close() }, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	fp, cleanup, err := newFixpoint(filter.IgnoredColumns{Global: ignoreColumns})
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := fp.Capture(args[0], parentName)
	if err != nil {
		return fmt.Errorf("failed to capture fixpoint: %w", err)
	}

	fmt.Printf("Captured fixpoint %s (%d tables)\n", args[0], len(snap))
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	fp, cleanup, err := newFixpoint(filter.IgnoredColumns{})
	if err != nil {
		return err
	}
	defer cleanup()

	if err := fp.Restore(args[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fixpoint %s does not exist; capture it first: %w", args[0], err)
		}
		return fmt.Errorf("failed to restore fixpoint: %w", err)
	}

	fmt.Printf("Restored fixpoint %s\n", args[0])
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	ignored := filter.IgnoredColumns{
		Global:   ignoreColumns,
		PerTable: make(map[string][]string),
	}
	for _, spec := range ignoreTableColumns {
		table, column, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("invalid --ignore-table-columns value %q, expected table:column", spec)
		}
		ignored.PerTable[table] = append(ignored.PerTable[table], column)
	}

	fp, cleanup, err := newFixpoint(ignored)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := fp.Compare(args[0], compareTables...); err != nil {
		var mismatch *fixpoint.MismatchError
		if errors.As(err, &mismatch) {
			return mismatch
		}
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fixpoint %s does not exist; capture it first: %w", args[0], err)
		}
		return fmt.Errorf("failed to compare fixpoint: %w", err)
	}

	fmt.Printf("Database matches fixpoint %s\n", args[0])
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	st, err := store.New(fixpointDir, diffing.Options{})
	if err != nil {
		return err
	}

	if err := st.Remove(args[0]); err != nil {
		return err
	}

	fmt.Printf("Removed fixpoint %s\n", args[0])
	return nil
}

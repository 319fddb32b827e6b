// Command releng-history queries the removal history recorded by releng clean.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"

	"releng-kit/internal/config"
	"releng-kit/internal/database"
	"releng-kit/internal/exitcodes"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	dbPath  string
	recent  int
	stats   bool
	days    int
	action  string
	path    string
	runID   string
	largest int
	purge   int
	vacuum  bool
	jsonOut bool
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options

	fs := pflag.NewFlagSet("releng-history", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.dbPath, "db", config.DefaultHistoryPath(), "path to the history database")
	fs.IntVar(&opts.recent, "recent", 0, "show the N most recent records")
	fs.BoolVar(&opts.stats, "stats", false, "show removal statistics")
	fs.IntVar(&opts.days, "days", 30, "number of days covered by --stats")
	fs.StringVar(&opts.action, "action", "", "filter by action (DELETE, PRUNE, DRY_RUN, ERROR)")
	fs.StringVar(&opts.path, "path", "", "filter by path pattern (SQL LIKE syntax)")
	fs.StringVar(&opts.runID, "run", "", "show every record of one clean run")
	fs.IntVar(&opts.largest, "largest", 0, "show the N largest deleted files")
	fs.IntVar(&opts.purge, "purge-older-than", 0, "delete records older than N days")
	fs.BoolVar(&opts.vacuum, "vacuum", false, "compact the database file")
	fs.BoolVar(&opts.jsonOut, "json", false, "output in JSON format")

	if err := fs.Parse(args); err != nil {
		return exitcodes.InvalidConfig
	}
	if opts.dbPath == "" {
		fmt.Fprintln(stderr, "ERROR: no --db given and no home directory for the default")
		return exitcodes.InvalidConfig
	}

	db, err := database.NewHistoryDB(opts.dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to open database %s: %v\n", opts.dbPath, err)
		return exitcodes.RuntimeError
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "ERROR: Failed to close database: %v\n", err)
		}
	}()

	switch {
	case opts.stats:
		err = showStats(stdout, db, opts.days, opts.jsonOut)
	case opts.recent > 0:
		err = show(stdout, opts.jsonOut, "", func() ([]database.Removal, error) { return db.GetRecent(opts.recent) })
	case opts.action != "":
		err = show(stdout, opts.jsonOut, "Records with action: "+opts.action,
			func() ([]database.Removal, error) { return db.GetByAction(opts.action) })
	case opts.path != "":
		err = show(stdout, opts.jsonOut, "Records matching path pattern: "+opts.path,
			func() ([]database.Removal, error) { return db.GetByPath(opts.path) })
	case opts.runID != "":
		err = show(stdout, opts.jsonOut, "Run "+opts.runID,
			func() ([]database.Removal, error) { return db.GetByRun(opts.runID) })
	case opts.largest > 0:
		err = show(stdout, opts.jsonOut, fmt.Sprintf("Largest %d deletions:", opts.largest),
			func() ([]database.Removal, error) { return db.GetLargest(opts.largest) })
	case opts.purge > 0:
		var n int64
		if n, err = db.DeleteOldRecords(opts.purge); err == nil {
			fmt.Fprintf(stdout, "Deleted %d records older than %d days\n", n, opts.purge)
		}
	case opts.vacuum:
		err = db.Vacuum()
	default:
		fmt.Fprintf(stderr, "Usage of releng-history:\n%s", fs.FlagUsages())
		fmt.Fprintln(stderr, "\nExamples:")
		fmt.Fprintln(stderr, "  releng-history --recent 10             # Show 10 most recent records")
		fmt.Fprintln(stderr, "  releng-history --stats --days 7        # Show statistics for a week")
		fmt.Fprintln(stderr, "  releng-history --action ERROR          # Show failed removals")
		fmt.Fprintln(stderr, "  releng-history --path 'lib/%'          # Show removals under lib/")
		fmt.Fprintln(stderr, "  releng-history --largest 10 --json     # Show 10 largest deletions as JSON")
		return exitcodes.InvalidConfig
	}

	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitcodes.RuntimeError
	}
	return exitcodes.Success
}

func showStats(w io.Writer, db *database.HistoryDB, days int, jsonOut bool) error {
	stats, err := db.GetStats(days)
	if err != nil {
		return fmt.Errorf("get statistics: %w", err)
	}

	if jsonOut {
		return writeJSON(w, stats)
	}

	fmt.Fprintf(w, "Removal Statistics (Last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:             %d\n", stats.Runs)
	fmt.Fprintf(w, "Files Deleted:    %d\n", stats.TotalDeleted)
	fmt.Fprintf(w, "Dirs Pruned:      %d\n", stats.TotalPruned)
	fmt.Fprintf(w, "Dry Run Records:  %d\n", stats.TotalDryRun)
	fmt.Fprintf(w, "Errors:           %d\n", stats.TotalErrors)
	fmt.Fprintf(w, "Space Freed:      %s\n", formatBytes(stats.BytesFreed))

	if len(stats.ByMode) > 0 {
		modes := make([]string, 0, len(stats.ByMode))
		for m := range stats.ByMode {
			modes = append(modes, m)
		}
		sort.Strings(modes)

		fmt.Fprintln(w, "\nBy Mode:")
		for _, m := range modes {
			fmt.Fprintf(w, "  %-15s %d\n", m, stats.ByMode[m])
		}
	}
	return nil
}

func show(w io.Writer, jsonOut bool, title string, query func() ([]database.Removal, error)) error {
	records, err := query()
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(w, records)
	}

	if title != "" {
		fmt.Fprintf(w, "%s\n\n", title)
	}
	printRecords(w, records)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRecords(w io.Writer, records []database.Removal) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Timestamp", "Run", "Action", "Reason", "Size", "Path"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, r := range records {
		run := r.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		table.Append([]string{
			fmt.Sprint(r.ID),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			run,
			r.Action,
			r.Reason,
			formatBytes(r.Size),
			r.Path,
		})
	}
	table.Render()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

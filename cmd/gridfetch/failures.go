package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ligustah/gridfetch/internal/failures"
)

// runFailures prints the failure log grouped by cause.
func runFailures(args []string) int {
	fs := flag.NewFlagSet("failures", flag.ContinueOnError)

	var cf configFlags
	cf.register(fs)
	runID := fs.String("run", "", "Only show failures from this run id")
	records := fs.Bool("records", false, "Print every record, not only the summary")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gridfetch failures [options]

Summarize the failure log written by fetch. Failed files are fetched again by
the next fetch run; this command only helps to see why they failed.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	newLogger(cf.verbose)

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext("failures")
	defer cancel()

	all, err := failures.Read(ctx, cfg.FailureLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading failure log: %v\n", err)
		return ExitStorageError
	}

	var recs []failures.Record
	for _, r := range all {
		if *runID == "" || r.RunID == *runID {
			recs = append(recs, r)
		}
	}

	fmt.Printf("Failure log: %s\n", cfg.FailureLog)
	fmt.Printf("Records: %d\n", len(recs))
	if len(recs) == 0 {
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nCOUNT\tKIND\tREASON")
	for _, s := range failures.Summarize(recs) {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Count, s.Kind, s.Reason)
	}
	tw.Flush()

	if *records {
		tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\nTIME\tRUN\tKEY\tATTEMPTS\tKIND")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Time.Format("2006-01-02T15:04:05Z"), r.RunID, r.Key, r.Attempt, r.Kind)
		}
		tw.Flush()
	}

	return ExitSuccess
}

package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/ligustah/gridfetch/internal/downloader"
	"github.com/ligustah/gridfetch/internal/storage"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// runPlan reports what fetch would do without contacting the data server.
func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)

	var cf configFlags
	cf.register(fs)
	list := fs.Bool("list", false, "Print the storage key of every pending job")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gridfetch plan [options]

Enumerate jobs from the catalog and check storage for files already present.
No requests are sent to the data server.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	logger := newLogger(cf.verbose)

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext("plan")
	defer cancel()

	jobs, code, ok := planJobs(ctx, cfg, logger)
	if !ok {
		return code
	}

	bucket, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	if err := downloader.Filter(ctx, bucket, jobs, cfg.Workers*4, logger); err != nil {
		fmt.Fprintln(os.Stderr, "[gridfetch] Plan interrupted")
		return ExitInterrupted
	}

	counts := gddp.Count(jobs)
	fmt.Printf("Storage: %s\n", cfg.Storage)
	fmt.Printf("Jobs: %d\n", len(jobs))
	fmt.Printf("Already downloaded: %d\n", counts[gddp.StatusSkipped])
	fmt.Printf("Pending: %d\n", counts[gddp.StatusPending])

	type group struct{ model, scenario string }
	pending := make(map[group]int)
	for _, j := range jobs {
		if j.Status == gddp.StatusPending {
			pending[group{j.Model, j.Scenario}]++
		}
	}
	if len(pending) > 0 {
		groups := make([]group, 0, len(pending))
		for g := range pending {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, k int) bool {
			if groups[i].model != groups[k].model {
				return groups[i].model < groups[k].model
			}
			return groups[i].scenario < groups[k].scenario
		})

		fmt.Println("\nPending by model/scenario:")
		for _, g := range groups {
			fmt.Printf("  %-20s %-12s %d\n", g.model, g.scenario, pending[g])
		}
	}

	if *list {
		fmt.Println()
		for _, j := range jobs {
			if j.Status == gddp.StatusPending {
				fmt.Println(j.Key())
			}
		}
	}

	return ExitSuccess
}

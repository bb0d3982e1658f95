package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ligustah/gridfetch/internal/storage"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// runClean removes zero-byte objects from storage. fetch already treats them
// as missing, so this only tidies up after other tools or killed processes.
// By default prompts for confirmation unless -force is specified.
func runClean(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)

	var cf configFlags
	cf.register(fs)
	prefix := fs.String("prefix", "", "Only consider keys under this prefix, e.g. ACCESS-CM2/")
	dryRun := fs.Bool("dry-run", false, "List empty files without deleting them")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gridfetch clean [options]

Delete zero-byte files left in storage by interrupted downloads.

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

	ctx, cancel := signalContext("clean")
	defer cancel()

	bucket, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	empty, err := gddp.FindEmpty(ctx, bucket, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	for _, e := range empty {
		fmt.Println(e.Key)
	}
	fmt.Fprintf(os.Stderr, "[gridfetch] Found %d empty files in %s\n", len(empty), cfg.Storage)

	if *dryRun || len(empty) == 0 {
		return ExitSuccess
	}

	if !*force {
		fmt.Printf("Delete %d empty files from %s? [y/N]: ", len(empty), cfg.Storage)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return ExitSuccess
		}
	}

	deleted, err := gddp.DeleteEmpty(ctx, bucket, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[gridfetch] Deleted %d empty files\n", len(deleted))
	return ExitSuccess
}

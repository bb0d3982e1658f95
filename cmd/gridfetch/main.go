package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/gridfetch/internal/config"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitConfigError  = 3
	ExitCatalogError = 4
	ExitStorageError = 5
	ExitFailures     = 8
	ExitInterrupted  = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "fetch":
		return runFetch(cmdArgs)
	case "plan":
		return runPlan(cmdArgs)
	case "failures":
		return runFailures(cmdArgs)
	case "clean":
		return runClean(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: gridfetch <command> [options]

Commands:
  fetch     Download NEX-GDDP-CMIP6 subsets into storage, skipping files already present
  plan      Enumerate jobs and check storage without contacting the data server
  failures  Summarize the failure log of previous runs
  clean     Delete zero-byte files left behind by interrupted downloads

Run 'gridfetch <command> -h' for command-specific help.`)
}

// configFlags are the options shared by every command. Flags override the
// environment, which overrides the config file.
type configFlags struct {
	file    string
	envFile string
	verbose bool

	manifest          string
	referenceVariable string
	baseURL           string
	storage           string
	failureLog        string
	models            string
	variables         string
	scenarios         string
	workers           int
	retryAttempts     int
	retryBackoff      time.Duration
	timeout           time.Duration
	delay             time.Duration
	jitter            time.Duration
	progress          bool
	metricsAddr       string
}

func (f *configFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "config", "", "YAML configuration file")
	fs.StringVar(&f.envFile, "env-file", ".env", "Load GRIDFETCH_ variables from this file if it exists")
	fs.BoolVar(&f.verbose, "v", false, "Verbose (debug) logging")

	fs.StringVar(&f.manifest, "manifest", "", "Catalog manifest path or bucket URL")
	fs.StringVar(&f.referenceVariable, "reference-variable", "", "Variable whose catalog rows pick the ensemble member")
	fs.StringVar(&f.baseURL, "base-url", "", "NCSS endpoint")
	fs.StringVar(&f.storage, "storage", "", "Destination directory or bucket URL")
	fs.StringVar(&f.failureLog, "failure-log", "", "Failure log (.db or .sqlite for sqlite, else JSON lines)")
	fs.StringVar(&f.models, "models", "", "Comma separated models")
	fs.StringVar(&f.variables, "variables", "", "Comma separated variables")
	fs.StringVar(&f.scenarios, "scenarios", "", "Comma separated name:start-end scenario ranges")
	fs.IntVar(&f.workers, "workers", 0, "Number of concurrent downloads")
	fs.IntVar(&f.retryAttempts, "retry-attempts", 0, "Total attempts per file")
	fs.DurationVar(&f.retryBackoff, "retry-backoff", 0, "Initial wait between attempts")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout")
	fs.DurationVar(&f.delay, "politeness-delay", 0, "Fixed wait before every request")
	fs.DurationVar(&f.jitter, "politeness-jitter", 0, "Random extra wait before every request")
	fs.BoolVar(&f.progress, "progress", false, "Show progress output")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
}

// load builds the effective configuration. fs must already be parsed.
func (f *configFlags) load(fs *flag.FlagSet) (config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if f.file != "" {
		var err error
		cfg, err = config.LoadFromFile(f.file)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	override := config.Config{
		Manifest:          f.manifest,
		ReferenceVariable: f.referenceVariable,
		BaseURL:           f.baseURL,
		Storage:           f.storage,
		FailureLog:        f.failureLog,
		Workers:           f.workers,
		Timeout:           f.timeout,
		Progress:          f.progress,
		MetricsAddr:       f.metricsAddr,
	}
	override.Retry.Attempts = f.retryAttempts
	if f.models != "" {
		override.Models = config.SplitList(f.models)
	}
	if f.variables != "" {
		override.Variables = config.SplitList(f.variables)
	}
	if f.scenarios != "" {
		s, err := config.ParseScenarios(f.scenarios)
		if err != nil {
			return config.Config{}, &config.Error{Field: "-scenarios", Err: err}
		}
		override.Scenarios = s
	}
	cfg = cfg.Merge(override)

	// Zero is a meaningful wait, so these apply whenever given.
	if set["politeness-delay"] {
		cfg.Politeness.Delay = f.delay
	}
	if set["politeness-jitter"] {
		cfg.Politeness.Jitter = f.jitter
	}
	if set["retry-backoff"] {
		cfg.Retry.Backoff = f.retryBackoff
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(name string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stderr, "\n[gridfetch] Received interrupt, stopping %s...\n", name)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// parseFlags parses args into fs. When ok is false the command must return
// code.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess, false
		}
		return ExitInvalidArgs, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return ExitInvalidArgs, false
	}
	return ExitSuccess, true
}

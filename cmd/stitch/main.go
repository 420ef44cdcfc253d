// ABOUTME: CLI entrypoint for stitch: aggregate SSE transcripts, stream a live prompt, or serve HTTP.
// ABOUTME: Wires config, logging, the aggregator, the SQLite archive, and the renderers together.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/2389-research/stitch/config"
	stitchlog "github.com/2389-research/stitch/log"
	"github.com/2389-research/stitch/store"
)

var version = "dev"

// options holds everything parsed from flags and positional arguments.
// String fields left empty fall back to the loaded configuration.
type options struct {
	configPath  string
	serverMode  bool
	listen      string
	prompt      string
	system      string
	transport   string
	live        bool
	tui         bool
	muxOutput   bool
	format      string
	retryPolicy string
	baseURL     string
	model       string
	dbPath      string
	logLevel    string
	jobs        int
	showVersion bool
	files       []string
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("stitch %s\n", version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts, os.Stdin, os.Stdout, os.Stderr))
}

// parseFlags parses args into options. Usage goes to stderr.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("stitch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "stitch.yaml", "YAML configuration file (ignored when missing)")
	fs.BoolVar(&opts.serverMode, "server", false, "Start HTTP server mode")
	fs.StringVar(&opts.listen, "listen", "", "Server listen address (default from config, :2389)")
	fs.StringVar(&opts.prompt, "prompt", "", "Send a prompt to the API and aggregate the streamed reply")
	fs.StringVar(&opts.system, "system", "", "System prompt for -prompt")
	fs.StringVar(&opts.transport, "transport", "sdk", "Transport for -prompt: sdk (openai-go) or http")
	fs.BoolVar(&opts.live, "live", false, "Echo text deltas to stderr while streaming")
	fs.BoolVar(&opts.tui, "tui", false, "Show a terminal view of the stream for -prompt")
	fs.BoolVar(&opts.muxOutput, "mux", false, "Print the result as a mux Response (JSON)")
	fs.StringVar(&opts.format, "format", "", "Output format: json, yaml, html, text")
	fs.StringVar(&opts.retryPolicy, "retry", "", "Retry policy for -prompt: none, standard, aggressive")
	fs.StringVar(&opts.baseURL, "base-url", "", "API base URL including the version segment")
	fs.StringVar(&opts.model, "model", "", "Model for -prompt")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite archive for aggregated messages")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.IntVar(&opts.jobs, "j", 4, "Transcripts aggregated concurrently")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() { printHelp(stderr, version) }

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.files = fs.Args()
	if opts.jobs < 1 {
		opts.jobs = 1
	}
	return opts, nil
}

// resolveConfig loads the configuration file and environment, then applies
// non-empty flag values on top.
func resolveConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Listen, opts.listen)
	override(&cfg.Format, opts.format)
	override(&cfg.Retry, opts.retryPolicy)
	override(&cfg.BaseURL, opts.baseURL)
	override(&cfg.Model, opts.model)
	override(&cfg.DB, opts.dbPath)
	override(&cfg.LogLevel, opts.logLevel)
	return cfg, cfg.Validate()
}

// run dispatches to the selected mode and returns the process exit code:
// 0 on success, 1 on failure, 2 on invalid usage.
func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logger, err := stitchlog.New(stderr, cfg.LogLevel, opts.serverMode)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer logger.Sync()
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	var st *store.Store
	if cfg.DB != "" {
		st, err = store.Open(cfg.DB)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer st.Close()
	}

	switch {
	case opts.serverMode:
		return runServer(ctx, cfg, st, logger, stderr)
	case opts.prompt != "":
		return runPrompt(ctx, opts, cfg, st, logger, stdin, stdout, stderr)
	case len(opts.files) > 0:
		return runAggregate(ctx, opts, cfg, st, logger, stdin, stdout, stderr)
	default:
		printHelp(stderr, version)
		return 2
	}
}

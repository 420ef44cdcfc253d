// ABOUTME: Help display for the stitch CLI with grouped flags, examples, and environment status.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/2389-research/stitch/config"
)

// printHelp writes usage, grouped flags, examples, and environment status to w.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "stitch %s: rebuild complete chat messages from streamed completions\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  stitch [flags] <transcript.sse>...   Aggregate recorded SSE transcripts (- for stdin)")
	fmt.Fprintln(w, "  stitch -prompt \"...\" [flags]         Stream a live completion and aggregate it")
	fmt.Fprintln(w, "  stitch -server [-listen :2389]       Start the HTTP API")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Output Flags:")
	fmt.Fprintln(w, "  -format <fmt>         json, yaml, html, text (default: text)")
	fmt.Fprintln(w, "  -mux                  Print a mux Response instead")
	fmt.Fprintln(w, "  -db <path>            Archive results in a SQLite database")
	fmt.Fprintln(w, "  -j <n>                Transcripts aggregated concurrently (default: 4)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Prompt Flags:")
	fmt.Fprintln(w, "  -model <name>         Model name (default: gpt-4o-mini)")
	fmt.Fprintln(w, "  -system <text>        System prompt")
	fmt.Fprintln(w, "  -base-url <url>       API base URL (default: https://api.openai.com/v1)")
	fmt.Fprintln(w, "  -transport <t>        sdk or http (default: sdk)")
	fmt.Fprintln(w, "  -retry <policy>       none, standard, aggressive (default: none)")
	fmt.Fprintln(w, "  -live                 Echo text to stderr as it streams")
	fmt.Fprintln(w, "  -tui                  Show the stream in a terminal view (reply, tool calls, status)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -config <path>        YAML config file (default: stitch.yaml)")
	fmt.Fprintln(w, "  -log-level <level>    debug, info, warn, error (default: info)")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  stitch -format json recording.sse")
	fmt.Fprintln(w, "  curl -sN ... | stitch -")
	fmt.Fprintln(w, "  stitch -prompt \"What's the weather in Oslo?\" -live")
	fmt.Fprintln(w, "  stitch -server -db stitch.db")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	for _, key := range []string{config.EnvAPIKey, config.EnvOpenAIAPIKey, config.EnvBaseURL, config.EnvModel, config.EnvDB} {
		fmt.Fprintf(w, "  %-20s %s\n", key, envStatus(key))
	}
}

// envStatus returns "[set]" if the named environment variable is non-empty.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}

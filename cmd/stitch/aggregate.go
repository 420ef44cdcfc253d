// ABOUTME: Transcript mode: aggregates recorded SSE files concurrently, one aggregator per file.
// ABOUTME: Results are printed in argument order; partial messages are still printed on failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/2389-research/stitch/config"
	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/render"
	"github.com/2389-research/stitch/store"
)

type result struct {
	source string
	msg    *llm.Message
	err    error
	id     string
}

func runAggregate(ctx context.Context, opts options, cfg config.Config, st *store.Store, logger *zap.Logger, stdin io.Reader, stdout, stderr io.Writer) int {
	results := make([]result, len(opts.files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, path := range opts.files {
		g.Go(func() error {
			results[i] = aggregateFile(gctx, path, stdin, st, logger)
			return nil
		})
	}
	_ = g.Wait()

	code := 0
	for i, res := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(stdout)
			}
			fmt.Fprintf(stdout, "== %s ==\n", res.source)
		}
		if res.err != nil {
			fmt.Fprintf(stderr, "error: %s: %v\n", res.source, res.err)
			code = 1
		}
		if res.msg == nil {
			continue
		}
		if res.id != "" {
			logger.Info("archived message", zap.String("source", res.source), zap.String("id", res.id))
		}
		if err := writeMessage(stdout, res.msg, cfg.Format, opts.muxOutput); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			code = 1
		}
	}
	return code
}

func aggregateFile(ctx context.Context, path string, stdin io.Reader, st *store.Store, logger *zap.Logger) result {
	res := result{source: path}

	var body io.ReadCloser
	if path == "-" {
		res.source = "stdin"
		body = io.NopCloser(stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			res.err = err
			return res
		}
		body = f
	}
	src := llm.NewSSESource(body)
	defer src.Close()

	agg := llm.NewAggregator(llm.WithLogger(logger.With(zap.String("source", res.source))))
	res.msg, res.err = llm.Collect(ctx, src, agg)
	if res.err != nil || st == nil {
		return res
	}

	rec, err := st.Save(ctx, res.msg, res.source)
	if err != nil {
		res.err = err
		return res
	}
	res.id = rec.ID.String()
	return res
}

// writeMessage renders msg to w in format, or as a mux Response when asMux is set.
func writeMessage(w io.Writer, msg *llm.Message, format string, asMux bool) error {
	if asMux {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(llm.ToMuxResponse(msg))
	}
	data, err := render.Message(msg, format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

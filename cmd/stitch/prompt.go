// ABOUTME: Prompt mode: sends one prompt to an OpenAI-compatible API and aggregates the streamed reply.
// ABOUTME: The sdk transport uses openai-go, the http transport the llm Streamer; -tui shows a live terminal view.
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/2389-research/stitch/config"
	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/store"
	"github.com/2389-research/stitch/tui"
)

func runPrompt(ctx context.Context, opts options, cfg config.Config, st *store.Store, logger *zap.Logger, stdin io.Reader, stdout, stderr io.Writer) int {
	if cfg.APIKey == "" {
		fmt.Fprintln(stderr, "error: no API key found")
		fmt.Fprintf(stderr, "Set %s or %s\n", config.EnvAPIKey, config.EnvOpenAIAPIKey)
		return 1
	}

	var stream func(ctx context.Context, aggOpts ...llm.AggregatorOption) (*llm.Message, error)
	switch opts.transport {
	case "sdk", "":
		client := llm.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, logger,
			option.WithMaxRetries(cfg.RetryPolicy().MaxRetries))
		stream = func(ctx context.Context, aggOpts ...llm.AggregatorOption) (*llm.Message, error) {
			return client.Prompt(ctx, opts.system, opts.prompt, aggOpts...)
		}
	case "http":
		body := chatRequest(cfg.Model, opts.system, opts.prompt)
		stream = func(ctx context.Context, aggOpts ...llm.AggregatorOption) (*llm.Message, error) {
			streamer := llm.NewStreamer(cfg.BaseURL, cfg.APIKey,
				llm.WithStreamerRetry(cfg.RetryPolicy()),
				llm.WithStreamerLogger(logger),
				llm.WithStreamerAggregatorOptions(aggOpts...))
			return streamer.Do(ctx, body)
		}
	default:
		fmt.Fprintf(stderr, "error: unknown transport %q (want sdk or http)\n", opts.transport)
		return 2
	}

	var msg *llm.Message
	var err error
	switch {
	case opts.tui:
		msg, err = tui.Run(ctx, cfg.Model, stream, stdin, stderr)
	case opts.live:
		msg, err = stream(ctx,
			llm.WithTextHandler(func(delta string) { fmt.Fprint(stderr, delta) }),
			llm.WithToolCallHandler(func(id, name string) {
				fmt.Fprintf(stderr, "\n[tool call %s %s]\n", id, name)
			}))
		fmt.Fprintln(stderr)
	default:
		msg, err = stream(ctx)
	}

	code := 0
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		code = 1
	}
	if msg == nil {
		return 1
	}
	if err == nil && st != nil {
		if rec, saveErr := st.Save(ctx, msg, "prompt"); saveErr != nil {
			fmt.Fprintf(stderr, "error: %v\n", saveErr)
			code = 1
		} else {
			logger.Info("archived message", zap.String("id", rec.ID.String()))
		}
	}
	if werr := writeMessage(stdout, msg, cfg.Format, opts.muxOutput); werr != nil {
		fmt.Fprintf(stderr, "error: %v\n", werr)
		return 1
	}
	return code
}

// chatRequest builds a streaming Chat Completions body that asks for usage.
func chatRequest(model, system, prompt string) map[string]any {
	var messages []map[string]string
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	return map[string]any{
		"model":          model,
		"messages":       messages,
		"stream":         true,
		"stream_options": map[string]bool{"include_usage": true},
	}
}

// ABOUTME: Tests for the SQLite message archive.
// ABOUTME: Covers save/get round trips, newest-first listing, limits, and missing ids.
package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "stitch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleMessage(text string) *llm.Message {
	return &llm.Message{
		Metadata:     llm.Metadata{ID: "chatcmpl-1", Model: "gpt-4o"},
		Text:         text,
		ToolCalls:    []llm.ToolCall{{ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`}},
		Usage:        llm.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		FinishReason: llm.FinishToolExecution,
	}
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	rec, err := s.Save(ctx, sampleMessage("hello"), "transcript.sse")
	require.NoError(t, err)
	assert.NotEqual(t, ulid.ULID{}, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "transcript.sse", got.Source)
	assert.Equal(t, sampleMessage("hello"), got.Message)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, 0)
}

func TestGetMissing(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), ulid.Make())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	var ids []ulid.ULID
	for _, text := range []string{"one", "two", "three"} {
		rec, err := s.Save(ctx, sampleMessage(text), "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].Message.Text)
	assert.Equal(t, ids[0], all[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListEmpty(t *testing.T) {
	records, err := openStore(t).List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSaveNil(t *testing.T) {
	_, err := openStore(t).Save(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Save(context.Background(), sampleMessage("mem"), "")
	require.NoError(t, err)
	got, err := s.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "mem", got.Message.Text)
}

// ABOUTME: Tests for the render cache covering hits, TTL expiry, error handling, and concurrent access.
package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/stitch/llm"
)

type countingRenderer struct {
	calls  atomic.Int64
	output []byte
	err    error
}

func (r *countingRenderer) render(msg *llm.Message, format string) ([]byte, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.output, nil
}

func TestCacheHit(t *testing.T) {
	r := &countingRenderer{output: []byte("out")}
	c := NewCache(r.render, time.Minute)

	for i := 0; i < 3; i++ {
		data, err := c.Render("id1", &llm.Message{}, FormatHTML)
		require.NoError(t, err)
		assert.Equal(t, "out", string(data))
	}
	assert.Equal(t, int64(1), r.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCacheKeysByIDAndFormat(t *testing.T) {
	r := &countingRenderer{output: []byte("out")}
	c := NewCache(r.render, time.Minute)

	c.Render("id1", &llm.Message{}, FormatHTML)
	c.Render("id1", &llm.Message{}, FormatText)
	c.Render("id2", &llm.Message{}, FormatHTML)
	assert.Equal(t, int64(3), r.calls.Load())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheExpires(t *testing.T) {
	r := &countingRenderer{output: []byte("out")}
	c := NewCache(r.render, 20*time.Millisecond)

	c.Render("id", &llm.Message{}, FormatText)
	time.Sleep(40 * time.Millisecond)
	c.Render("id", &llm.Message{}, FormatText)
	assert.Equal(t, int64(2), r.calls.Load())
}

func TestCacheSkipsErrors(t *testing.T) {
	r := &countingRenderer{err: errors.New("boom")}
	c := NewCache(r.render, time.Minute)

	_, err := c.Render("id", &llm.Message{}, FormatText)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheDefaultsToMessageRenderer(t *testing.T) {
	c := NewCache(nil, time.Minute)
	data, err := c.Render("id", &llm.Message{Text: "hi"}, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text": "hi"`)
}

func TestCacheConcurrentAccess(t *testing.T) {
	r := &countingRenderer{output: []byte("out")}
	c := NewCache(r.render, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Render("id", &llm.Message{}, FormatText)
			assert.NoError(t, err)
			assert.Equal(t, "out", string(data))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestCacheSweepsExpiredEntries(t *testing.T) {
	r := &countingRenderer{output: []byte("out")}
	c := NewCache(r.render, 20*time.Millisecond)

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Render(id, &llm.Message{}, FormatText)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	time.Sleep(40 * time.Millisecond)
	_, err := c.Render("d", &llm.Message{}, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

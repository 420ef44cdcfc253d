// ABOUTME: Tests for the HTTP service using httptest against the chi router.
// ABOUTME: Covers aggregation, violation reporting, archive listing, rendering, and health.
package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/store"
)

const textTranscript = "data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"**hi**\"}}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":1,\"total_tokens\":3}}\n\n" +
	"data: [DONE]\n\n"

const orphanTranscript = "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"before\"}}]}\n\n" +
	"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{}\"}}]}}]}\n\n"

func newTestServer(t *testing.T, withStore bool) (*Server, *store.Store) {
	t.Helper()
	cfg := Config{}
	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "stitch.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		cfg.Store = st
	}
	return New(cfg), st
}

func do(s http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","store":false}`, rec.Body.String())
}

func TestAggregateWithoutStore(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodPost, "/v1/aggregate", textTranscript)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Record-ID"))

	var resp aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.ID)
	assert.Equal(t, "**hi**", resp.Message.Text)
	assert.Equal(t, llm.FinishStop, resp.Message.FinishReason)
	assert.Equal(t, 3, resp.Message.Usage.TotalTokens)
}

func TestAggregatePersistsAndServesArchive(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(s, http.MethodPost, "/v1/aggregate", textTranscript)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get("X-Record-ID")
	require.NotEmpty(t, id)

	list := do(s, http.MethodGet, "/v1/messages", "")
	require.Equal(t, http.StatusOK, list.Code)
	var records []store.Record
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID.String())

	get := do(s, http.MethodGet, "/v1/messages/"+id, "")
	require.Equal(t, http.StatusOK, get.Code)
	var got store.Record
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &got))
	assert.Equal(t, "**hi**", got.Message.Text)

	html := do(s, http.MethodGet, "/v1/messages/"+id+"?format=html", "")
	require.Equal(t, http.StatusOK, html.Code)
	assert.Equal(t, "text/html; charset=utf-8", html.Header().Get("Content-Type"))
	assert.Contains(t, html.Body.String(), "<strong>hi</strong>")
}

func TestAggregateRendersRequestedFormat(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodPost, "/v1/aggregate?format=yaml", textTranscript)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "finish_reason: stop")
}

func TestAggregateProtocolViolation(t *testing.T) {
	s, st := newTestServer(t, true)
	rec := do(s, http.MethodPost, "/v1/aggregate", orphanTranscript)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(llm.ViolationOrphanFragment), resp.Kind)
	require.NotNil(t, resp.Index)
	assert.Equal(t, 0, *resp.Index)
	require.NotNil(t, resp.Partial)
	assert.Equal(t, "before", resp.Partial.Text)
	assert.NotEmpty(t, resp.RequestID)

	records, err := st.List(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAggregateMalformedChunk(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodPost, "/v1/aggregate", "data: {oops\n\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAggregateBodyTooLarge(t *testing.T) {
	s := New(Config{MaxBodyBytes: 16})
	rec := do(s, http.MethodPost, "/v1/aggregate", textTranscript)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUnknownFormat(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodPost, "/v1/aggregate?format=pdf", textTranscript)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveRoutesNeedStore(t *testing.T) {
	s, _ := newTestServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/v1/messages", "").Code)
}

func TestGetErrors(t *testing.T) {
	s, _ := newTestServer(t, true)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/messages/not-a-ulid", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/v1/messages/01ARZ3NDEKTSV4RRFFQ69G5FAV", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/messages?limit=-1", "").Code)
}

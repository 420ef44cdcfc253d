// ABOUTME: HTTP service that aggregates posted SSE transcripts and serves archived messages.
// ABOUTME: Routes are built on chi; persistence is optional and backed by the SQLite store.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/render"
	"github.com/2389-research/stitch/store"
)

const defaultMaxBody = 16 << 20

// Config holds the server's collaborators.
type Config struct {
	Addr string // listen address (default ":2389")

	// Store archives aggregated messages. Optional; without it the
	// /v1/messages routes answer 503.
	Store *store.Store

	Logger *zap.Logger

	// MaxBodyBytes caps a posted transcript (default 16 MiB).
	MaxBodyBytes int64

	// RenderTTL is how long rendered archive entries are cached (default 10m).
	RenderTTL time.Duration
}

// Server is the stitch HTTP service.
type Server struct {
	cfg    Config
	logger *zap.Logger
	cache  *render.Cache
	router chi.Router
}

// New creates a Server and builds its routes.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":2389"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.RenderTTL <= 0 {
		cfg.RenderTTL = 10 * time.Minute
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.Named("server"),
		cache:  render.NewCache(nil, cfg.RenderTTL),
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server for the configured address with
// timeouts suited to long-running uploads.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/aggregate", s.handleAggregate)
		r.Get("/messages", s.handleList)
		r.Get("/messages/{id}", s.handleGet)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  s.cfg.Store != nil,
	})
}

// aggregateResponse is the JSON body returned by POST /v1/aggregate.
type aggregateResponse struct {
	ID      string       `json:"id,omitempty"`
	Message *llm.Message `json:"message"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error     string       `json:"error"`
	Kind      string       `json:"kind,omitempty"`
	CallID    string       `json:"call_id,omitempty"`
	Index     *int         `json:"index,omitempty"`
	Partial   *llm.Message `json:"partial,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	format, ok := formatParam(w, r, render.FormatJSON)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	src := llm.NewSSESource(body)
	defer src.Close()

	agg := llm.NewAggregator(llm.WithLogger(s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))))
	msg, err := llm.Collect(r.Context(), src, agg)
	if err != nil {
		s.writeAggregateError(w, r, msg, err)
		return
	}

	var id string
	if s.cfg.Store != nil {
		rec, err := s.cfg.Store.Save(r.Context(), msg, r.Header.Get("X-Source"))
		if err != nil {
			s.logger.Error("save message", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, errorResponse{Error: "failed to save message"})
			return
		}
		id = rec.ID.String()
		w.Header().Set("X-Record-ID", id)
	}

	if format == render.FormatJSON {
		writeJSON(w, http.StatusOK, aggregateResponse{ID: id, Message: msg})
		return
	}
	s.writeRendered(w, msg, format, render.Message)
}

func (s *Server) writeAggregateError(w http.ResponseWriter, r *http.Request, partial *llm.Message, err error) {
	resp := errorResponse{Error: err.Error(), Partial: partial}

	var pv *llm.ProtocolViolationError
	var mbe *http.MaxBytesError
	status := http.StatusBadRequest
	switch {
	case errors.As(err, &pv):
		status = http.StatusUnprocessableEntity
		resp.Kind = string(pv.Kind)
		resp.CallID = pv.CallID
		if pv.Index >= 0 {
			idx := pv.Index
			resp.Index = &idx
		}
	case errors.As(err, &mbe):
		status = http.StatusRequestEntityTooLarge
	case r.Context().Err() != nil:
		// Client went away; nothing useful can be written.
		return
	}
	s.logger.Warn("aggregate failed", zap.Int("status", status), zap.Error(err))
	writeError(w, r, status, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := s.cfg.Store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list messages", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, errorResponse{Error: "failed to list messages"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	format, ok := formatParam(w, r, render.FormatJSON)
	if !ok {
		return
	}
	id, err := ulid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errorResponse{Error: "invalid message id"})
		return
	}

	rec, err := s.cfg.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errorResponse{Error: "message not found"})
		return
	}
	if err != nil {
		s.logger.Error("get message", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, errorResponse{Error: "failed to load message"})
		return
	}

	if format == render.FormatJSON {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	s.writeRendered(w, rec.Message, format, func(m *llm.Message, f string) ([]byte, error) {
		return s.cache.Render(rec.ID.String(), m, f)
	})
}

func (s *Server) writeRendered(w http.ResponseWriter, msg *llm.Message, format string, fn render.Func) {
	data, err := fn(msg, format)
	if err != nil {
		s.logger.Error("render message", zap.String("format", format), zap.Error(err))
		http.Error(w, "failed to render message", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Store == nil {
		writeError(w, r, http.StatusServiceUnavailable, errorResponse{Error: "no message store configured"})
		return false
	}
	return true
}

func formatParam(w http.ResponseWriter, r *http.Request, fallback string) (string, bool) {
	format := r.URL.Query().Get("format")
	switch format {
	case "":
		return fallback, true
	case render.FormatJSON, render.FormatYAML, render.FormatHTML, render.FormatText:
		return format, true
	default:
		writeError(w, r, http.StatusBadRequest, errorResponse{Error: "unknown format " + strconv.Quote(format)})
		return "", false
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	resp.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

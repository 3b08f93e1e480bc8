// Package api exposes extraction, sync and history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/crmsync"
	"github.com/sells-group/crm-extract/internal/extract"
	"github.com/sells-group/crm-extract/internal/llm"
	"github.com/sells-group/crm-extract/internal/model"
	"github.com/sells-group/crm-extract/internal/store"
)

const maxBodyBytes = 1 << 20

// Prober reports whether the CRM is reachable.
type Prober interface {
	TestConnection(ctx context.Context) bool
}

// Deps are the collaborators behind the HTTP surface. Completer, Syncer
// and Prober may be nil when their credentials are not configured; the
// matching endpoints then answer with LLMErr or CRMErr.
type Deps struct {
	Store     store.Store
	Completer llm.Completer
	Syncer    *crmsync.Orchestrator
	Prober    Prober

	LLMErr error
	CRMErr error

	AllowedOrigins []string
}

// Server holds the HTTP handlers.
type Server struct {
	deps   Deps
	engine *extract.Engine
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.LLMErr == nil {
		deps.LLMErr = apperr.Configuration("completion provider is not configured")
	}
	if deps.CRMErr == nil {
		deps.CRMErr = apperr.Configuration("hubspot is not configured")
	}
	s := &Server{deps: deps}
	if deps.Completer != nil {
		s.engine = extract.NewEngine(deps.Completer)
	}
	return s
}

// Router builds the chi router with CORS and request logging.
func (s *Server) Router() http.Handler {
	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/sync-to-hubspot", s.handleSync)
		r.Get("/hubspot/test", s.handleHubSpotTest)
		r.Get("/llm/test", s.handleLLMTest)
		r.Get("/extractions", s.handleListExtractions)
		r.Post("/extractions", s.handleStoreExtraction)
		r.Get("/extractions/{id}", s.handleGetExtraction)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractRequest struct {
	MeetingSummary string `json:"meetingSummary"`
}

type extractResponse struct {
	ID            int64                 `json:"id"`
	ExtractedData model.ExtractedRecord `json:"extractedData"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	if err := extract.CheckSummary(req.MeetingSummary); err != nil {
		writeError(w, err)
		return
	}
	if s.engine == nil {
		writeError(w, s.deps.LLMErr)
		return
	}

	ext, rec, err := s.engine.ExtractAndSave(r.Context(), s.deps.Store, req.MeetingSummary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{ID: ext.ID, ExtractedData: rec})
}

type syncRequest struct {
	ExtractionID *int64               `json:"extractionId"`
	SyncOptions  *crmsync.OptionFlags `json:"syncOptions"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ExtractionID == nil {
		writeError(w, apperr.Validation("invalid request",
			apperr.FieldError{Path: "extractionId", Message: "is required"}))
		return
	}
	if s.deps.Syncer == nil {
		writeError(w, s.deps.CRMErr)
		return
	}

	res, err := s.deps.Syncer.Sync(r.Context(), *req.ExtractionID, req.SyncOptions.Resolve())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHubSpotTest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prober == nil {
		writeJSON(w, http.StatusOK, map[string]any{"connected": false, "error": s.deps.CRMErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": s.deps.Prober.TestConnection(r.Context())})
}

func (s *Server) handleLLMTest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Completer == nil {
		writeJSON(w, http.StatusOK, map[string]any{"connected": false, "error": s.deps.LLMErr.Error()})
		return
	}
	out, err := llm.Ping(r.Context(), s.deps.Completer)
	if err != nil {
		zap.L().Warn("api: llm test failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"connected": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "response": out})
}

func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListExtractions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type extractionDetail struct {
	model.Extraction
	Record *model.ExtractedRecord `json:"record"`
}

func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperr.Validation("invalid extraction id",
			apperr.FieldError{Path: "id", Message: "must be a positive integer"}))
		return
	}

	ext, err := s.deps.Store.GetExtraction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	detail := extractionDetail{Extraction: *ext}
	if rec, err := ext.Record(); err == nil {
		detail.Record = &rec
	} else {
		zap.L().Warn("api: stored extraction does not parse", zap.Int64("id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, detail)
}

type storeExtractionRequest struct {
	MeetingSummary string `json:"meetingSummary"`
	ExtractedData  any    `json:"extractedData"`
}

func (s *Server) handleStoreExtraction(w http.ResponseWriter, r *http.Request) {
	var req storeExtractionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ExtractedData == nil {
		writeError(w, apperr.Validation("invalid request",
			apperr.FieldError{Path: "extractedData", Message: "is required"}))
		return
	}
	rec, err := model.Validate(req.ExtractedData)
	if err != nil {
		writeError(w, err)
		return
	}

	ext, err := extract.Save(r.Context(), s.deps.Store, req.MeetingSummary, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, extractResponse{ID: ext.ID, ExtractedData: rec})
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperr.Validation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

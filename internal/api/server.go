// Package api serves the analysis, question and recommendation endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httputils "github.com/Fau1con/renderresponse"
	"github.com/charmbracelet/log"

	"github.com/abelbrown/civicwatch/internal/aggregate"
	"github.com/abelbrown/civicwatch/internal/analysis"
)

// maxBodyBytes caps request bodies on POST endpoints.
const maxBodyBytes = 1 << 20

// Service is the analysis backend behind the endpoints.
type Service interface {
	AnalyzeNews(ctx context.Context) (analysis.Report, error)
	AskQuestion(ctx context.Context, question string) (analysis.Answer, error)
	Recommend(ctx context.Context, topic string) analysis.Recommendation
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server routes requests to a Service.
type Server struct {
	mux  *http.ServeMux
	svc  Service
	log  *log.Logger
	opts Options
}

// NewServer creates a Server and registers its endpoints.
func NewServer(svc Service, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		mux:  http.NewServeMux(),
		svc:  svc,
		log:  logger,
		opts: opts,
	}
	s.endpoints()
	return s
}

func (s *Server) endpoints() {
	s.mux.HandleFunc("/analyze", s.AnalyzeHandler)
	s.mux.HandleFunc("/ask", s.AskHandler)
	s.mux.HandleFunc("/recommend", s.RecommendHandler)
	s.mux.HandleFunc("/healthz", s.HealthHandler)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = RecoverMiddleware(s.log)(handler)
	handler = LoggingMiddleware(s.log)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("civicwatch server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type analyzeResponse struct {
	Status    string                     `json:"status"`
	Message   string                     `json:"message,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
	Analyses  []analysis.ArticleAnalysis `json:"analyses"`
	Origin    aggregate.Origin           `json:"origin"`
	RunID     string                     `json:"run_id"`
}

// AnalyzeHandler runs one analysis cycle. A batch served from the cache is
// flagged with status "warning".
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !httputils.ValidateMethod(w, r, http.MethodGet) {
		return
	}

	report, err := s.svc.AnalyzeNews(r.Context())
	if err != nil {
		s.log.Error("analysis failed", "request_id", RequestID(r.Context()), "err", err)
		writeJSON(w, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("Failed to fetch or analyze news: %v", err),
		}, http.StatusInternalServerError)
		return
	}

	resp := analyzeResponse{
		Status:    report.Status,
		Timestamp: report.Timestamp,
		Analyses:  report.Analyses,
		Origin:    report.Origin,
		RunID:     report.RunID,
	}
	if report.Origin == aggregate.OriginCache {
		resp.Status = "warning"
		resp.Message = "Live fetch failed. Using cached news."
	}
	writeJSON(w, resp, http.StatusOK)
}

type askRequest struct {
	Question string `json:"question"`
}

// AskHandler answers a citizen question.
func (s *Server) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !httputils.ValidateMethod(w, r, http.MethodPost) {
		return
	}

	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, map[string]string{"error": "Invalid JSON body"}, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, map[string]string{"error": "Question is required"}, http.StatusBadRequest)
		return
	}

	answer, err := s.svc.AskQuestion(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, analysis.ErrEmptyQuestion) {
			writeJSON(w, map[string]string{"error": "Question is required"}, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"error": fmt.Sprintf("Failed to answer question: %v", err)}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, answer, http.StatusOK)
}

type recommendRequest struct {
	Topic string `json:"topic"`
}

// RecommendHandler returns policy recommendations. GET, or POST without a
// topic, recommends from the latest analyses.
func (s *Server) RecommendHandler(w http.ResponseWriter, r *http.Request) {
	if !httputils.ValidateMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	var req recommendRequest
	if r.Method == http.MethodPost {
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, map[string]string{"error": "Invalid JSON body"}, http.StatusBadRequest)
			return
		}
	}

	rec := s.svc.Recommend(r.Context(), req.Topic)
	if rec.Status == "error" {
		writeJSON(w, map[string]string{
			"error": fmt.Sprintf("Failed to generate policy recommendation: %s", rec.Recommendations),
		}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"recommendation": rec.Recommendations}, http.StatusOK)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !httputils.ValidateMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// decodeBody reads a JSON object. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	httputils.RenderJSON(w, data, status)
}

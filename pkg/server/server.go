package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"bankboard/pkg/analysis"
	"bankboard/pkg/config"
	"bankboard/pkg/export"
	"bankboard/pkg/generator"
	"bankboard/pkg/loader"
	"bankboard/pkg/margin"
	"bankboard/pkg/models"
)

const indexHTML = `<!doctype html>
<html>
<head><title>bankboard</title></head>
<body>
<h1>bankboard</h1>
<p>POST a bank CSV export to /api/analyze, fetch margins from /api/margin.</p>
</body>
</html>
`

// Server exposes the analysis pipeline over HTTP for the dashboard
// front end.
type Server struct {
	config   *config.Config
	logger   *log.Logger
	mux      *http.ServeMux
	template *template.Template
	loader   *loader.Loader
	analyzer *analysis.Analyzer

	// filtered operations per uploaded file, for CSV download
	results sync.Map
}

// New creates a new HTTP server.
func New(cfg *config.Config, logger *log.Logger) *Server {
	tmpl := template.Must(template.New("index").Parse(indexHTML))
	s := &Server{
		config:   cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		template: tmpl,
		loader:   loader.New(logger, cfg.Strict),
		analyzer: analysis.New(logger),
	}
	s.setupRoutes()
	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

// Handler returns the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.withLogging(s.handleHome))
	s.mux.HandleFunc("/healthz", s.withLogging(s.handleHealth))

	s.mux.HandleFunc("/api/analyze", s.withLogging(s.handleAnalyze))
	s.mux.HandleFunc("/api/files/", s.withLogging(s.handleFiles))
	s.mux.HandleFunc("/api/margin", s.withLogging(s.handleMargin))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, r, http.StatusNotFound, "not found", nil)
		return
	}
	if err := s.template.ExecuteTemplate(w, "index", nil); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render page", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ---------------- analyze handler ----------------

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("operations")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "operations file required", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return
	}

	opts, err := s.optionsFromForm(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	result, err := s.loader.LoadBytes(data)
	if err != nil {
		var schemaErr *loader.SchemaError
		if errors.As(err, &schemaErr) {
			s.respondError(w, r, http.StatusBadRequest, schemaErr.Error(), nil)
			return
		}
		s.respondError(w, r, http.StatusBadRequest, "failed to load operations", err)
		return
	}

	report := s.analyzer.Run(result.Operations, opts)

	filename := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)) + "-filtered.csv"
	s.results.Store(filename, report.Expenses)

	s.logger.Info("analysis complete",
		"file", header.Filename,
		"operations", len(result.Operations),
		"expenses", len(report.Expenses),
		"skipped", result.Skipped,
	)

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"file":    filename,
		"skipped": result.Skipped,
		"report":  report,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) optionsFromForm(r *http.Request) (analysis.Options, error) {
	opts := analysis.Options{Quantile: s.config.Quantile}

	if v := r.FormValue("quantile"); v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid quantile %q", v)
		}
		opts.Quantile = q
	}
	if v := r.FormValue("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opts, fmt.Errorf("invalid start date %q", v)
		}
		opts.Start = t
	}
	if v := r.FormValue("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opts, fmt.Errorf("invalid end date %q", v)
		}
		opts.End = t
	}
	opts.Categories = splitList(r.FormValue("categories"))
	opts.Subcategories = splitList(r.FormValue("subcategories"))
	return opts, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---------------- file download handler ----------------

// handleFiles serves the filtered operations of a previous analysis as
// a bank-dialect CSV.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if filename == "" {
		s.respondError(w, r, http.StatusBadRequest, "filename required", nil)
		return
	}

	value, ok := s.results.Load(filename)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found", nil)
		return
	}
	ops, ok := value.([]models.Operation)
	if !ok {
		s.respondError(w, r, http.StatusInternalServerError, "internal type assertion error", nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteOperations(w, ops); err != nil {
		s.logger.Warn("failed to write csv response", "err", err)
	}
}

// ---------------- margin handler ----------------

func (s *Server) handleMargin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	scenario := generator.Default()
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, r, http.StatusBadRequest, "invalid months", err)
			return
		}
		scenario.Months = n
	}
	if v := r.URL.Query().Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid seed", err)
			return
		}
		scenario.Seed = seed
	}

	incomes, costs := scenario.Generate(time.Now())
	incomeByCategory, costsByCategory := margin.ByCategory(incomes, costs)

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"totals":             margin.CalculateTotals(incomes, costs),
		"monthly":            margin.ByMonth(incomes, costs),
		"income_by_category": incomeByCategory,
		"costs_by_category":  costsByCategory,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log request start/end and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}

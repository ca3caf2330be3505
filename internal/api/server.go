// Package api serves report directories over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"PcapLens/internal/core/model"
	"PcapLens/internal/query"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ReportInfo describes one report directory.
type ReportInfo struct {
	Name      string    `json:"name"`
	Artifacts []string  `json:"artifacts"`
	Complete  bool      `json:"complete"`
	Modified  time.Time `json:"modified"`
}

// Server serves the report directories below a root directory and,
// when a querier is configured, the reports stored in ClickHouse.
type Server struct {
	root    string
	querier query.Querier
	log     *zap.SugaredLogger
}

// Option configures a Server.
type Option func(*Server)

// WithQuerier enables the stored report endpoints.
func WithQuerier(q query.Querier) Option {
	return func(s *Server) {
		s.querier = q
	}
}

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates a new report server over root.
func NewServer(root string, options ...Option) *Server {
	s := &Server{root: root, log: zap.NewNop().Sugar()}
	for _, o := range options {
		o(s)
	}
	return s
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/reports", s.listReportsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/reports/{name}/{artifact}", s.artifactHandler).Methods(http.MethodGet)
	if s.querier != nil {
		r.HandleFunc("/api/v1/captures", s.capturesHandler).Methods(http.MethodGet)
		r.HandleFunc("/api/v1/captures/{capture}/errors", s.errorCountsHandler).Methods(http.MethodGet)
		r.HandleFunc("/api/v1/captures/{capture}/events", s.errorEventsHandler).Methods(http.MethodGet)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API server starting on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.log.Info("API server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("API server exited.")
	return nil
}

// ListReports scans the root for report directories, sorted by name.
func (s *Server) ListReports() ([]ReportInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []ReportInfo{}, nil
		}
		return nil, err
	}

	reports := []ReportInfo{}
	for _, e := range entries {
		if !e.IsDir() || !model.ValidReportName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		r := ReportInfo{Name: e.Name(), Artifacts: []string{}, Modified: info.ModTime().UTC()}
		for _, a := range model.Artifacts {
			if fileExists(filepath.Join(s.root, e.Name(), a)) {
				r.Artifacts = append(r.Artifacts, a)
			}
		}
		r.Complete = slices.Contains(r.Artifacts, model.ArtifactSummary) &&
			!fileExists(filepath.Join(s.root, e.Name(), model.MarkerIncomplete))
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *Server) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := s.ListReports()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list reports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, reports)
}

func (s *Server) artifactHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, artifact := vars["name"], vars["artifact"]
	if !model.ValidReportName(name) {
		http.Error(w, "invalid report name", http.StatusBadRequest)
		return
	}
	if !model.IsArtifact(artifact) {
		http.Error(w, fmt.Sprintf("unknown artifact: %s", artifact), http.StatusNotFound)
		return
	}

	data, err := os.ReadFile(filepath.Join(s.root, name, artifact))
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		s.log.Warnw("failed to read artifact", "report", name, "artifact", artifact, "error", err)
		http.Error(w, "failed to read artifact", http.StatusInternalServerError)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(artifact, ".json") {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) capturesHandler(w http.ResponseWriter, r *http.Request) {
	captures, err := s.querier.Captures(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query captures: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, captures)
}

func (s *Server) errorCountsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.querier.ErrorCounts(r.Context(), mux.Vars(r)["capture"])
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query error counts: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, counts)
}

func (s *Server) errorEventsHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := query.ErrorQuery{
		Capture: mux.Vars(r)["capture"],
		Kind:    params.Get("kind"),
		Src:     params.Get("src"),
	}
	if limit := params.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = n
	}

	events, err := s.querier.ErrorEvents(r.Context(), q)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query error events: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

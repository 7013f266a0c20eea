// Package server provides the admin HTTP surface: active-namespace
// management, document cancellation, phase status and suggestion review.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/config"
	"github.com/adiwibowo/perkaya/internal/db"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/types"
	"github.com/adiwibowo/perkaya/internal/vectorstore"
)

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	namespaces *NamespaceStore
	jwtService *JWTService
	db         *db.DB            // nil when no database is configured
	index      vectorstore.Index // nil when no vector store is configured
}

// New assembles the admin server. The database and vector index are
// optional; the endpoints that need them return 503 when absent.
func New(cfg *config.Config, database *db.DB, index vectorstore.Index) (*Server, error) {
	jwtService, err := NewJWTService(cfg.Server.JWTSecret, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		namespaces: NewNamespaceStore(cfg.ArtifactsDir),
		jwtService: jwtService,
		db:         database,
		index:      index,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /namespace", s.auth(s.handleGetNamespace))
	mux.HandleFunc("PUT /namespace", s.auth(s.handleSetNamespace))
	mux.HandleFunc("GET /namespaces", s.auth(s.handleListNamespaces))
	mux.HandleFunc("POST /documents/{doc_id}/cancel", s.auth(s.handleCancel))
	mux.HandleFunc("GET /documents/{doc_id}/status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /documents/{doc_id}/suggestions", s.auth(s.handleListSuggestions))
	mux.HandleFunc("POST /suggestions/{id}/status", s.auth(s.handleSetSuggestionStatus))

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// auth requires a valid bearer token on every admin route.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.jwtService.ValidateToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetNamespace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"active": s.namespaces.Active(s.cfg.Namespace),
	})
}

func (s *Server) handleSetNamespace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active string `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.namespaces.SetActive(body.Active); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": body.Active})
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store not configured")
		return
	}
	names, err := s.index.ListNamespaces(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": names})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "doc_id is required")
		return
	}
	metrics.SetCancel(docID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"doc_id": docID,
		"status": "cancel requested",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	dir := &artifacts.Dir{Root: s.cfg.ArtifactsDir, DocID: docID}

	status := map[string]any{"doc_id": docID, "cancelled": metrics.IsCancelled(docID)}
	for phase, name := range map[string]string{
		"planner": artifacts.FilePhase1Progress,
		"enrich":  artifacts.FilePhase2Progress,
	} {
		var progress types.PhaseProgress
		if err := dir.ReadJSON(name, &progress); err == nil {
			status[phase] = progress
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	statusFilter := types.SuggestionStatus(r.URL.Query().Get("status"))

	if s.db != nil {
		suggestions, err := s.db.ListSuggestions(r.Context(), docID, statusFilter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, suggestions)
		return
	}

	// No database: serve straight from the artifact directory.
	dir := &artifacts.Dir{Root: s.cfg.ArtifactsDir, DocID: docID}
	var suggestions []types.Suggestion
	if err := dir.ReadJSON(artifacts.FileSuggestions, &suggestions); err != nil {
		var missing *artifacts.MissingInputError
		if errors.As(err, &missing) {
			writeError(w, http.StatusNotFound, "no suggestions for document")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if statusFilter != "" {
		kept := suggestions[:0]
		for _, sug := range suggestions {
			if sug.Status == statusFilter {
				kept = append(kept, sug)
			}
		}
		suggestions = kept
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleSetSuggestionStatus(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	id := r.PathValue("id")
	var body struct {
		Status types.SuggestionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Status != types.StatusApproved && body.Status != types.StatusRejected && body.Status != types.StatusPending {
		writeError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}
	if err := s.db.SetStatus(r.Context(), id, body.Status); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "suggestion not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(body.Status)})
}

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
)

const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error    string                `json:"error"`
	Problems []models.FieldProblem `json:"problems,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var spec models.QuerySpec
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&spec); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("scope_query", spec.ScopeQuery),
		zap.String("risks_query", spec.RisksQuery),
		zap.Int("limit", spec.Limit))
	response, err := s.engine.ExecuteSpec(r.Context(), spec)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// decodeProposals accepts a bare array or {"proposals": [...]}.
func decodeProposals(r io.Reader) ([]*models.ProposalRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	var records []*models.ProposalRecord
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &records)
		return records, err
	}
	var wrapped struct {
		Proposals []*models.ProposalRecord `json:"proposals"`
	}
	err = json.Unmarshal(data, &wrapped)
	return wrapped.Proposals, err
}

func (s *Server) handleUpsertProposals(w http.ResponseWriter, r *http.Request) {
	records, err := decodeProposals(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, rec := range records {
		if rec == nil {
			s.respondError(w, http.StatusBadRequest, "null proposal in batch")
			return
		}
	}
	s.logger.Debug("upsert proposals request", zap.Int("count", len(records)))
	if err := s.index.Upsert(r.Context(), records); err != nil {
		s.respondFailure(w, "upsert failed", err)
		return
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"ids": ids, "status": "indexed", "total": s.index.Len()})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		records := s.index.All()
		s.respondJSON(w, http.StatusOK, map[string]any{"proposals": records, "total": len(records)})
		return
	}
	if s.keyword == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword lookup not enabled")
		return
	}
	limit := s.config.Search.MaxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	hits, err := s.keyword.Search(r.Context(), q, limit, &keyword.SearchOptions{FuzzyEnabled: true})
	if err != nil {
		s.logger.Error("keyword lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records := make([]*models.ProposalRecord, 0, len(hits))
	for _, hit := range hits {
		// The keyword index may briefly lag a removal.
		if rec, err := s.index.Get(hit.ID); err == nil {
			records = append(records, rec)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"proposals": records, "total": len(records)})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.index.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete proposal request", zap.String("id", id))
	if err := s.index.Remove(r.Context(), id); err != nil {
		s.respondFailure(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type spaceStatus struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Field      string `json:"field"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	spaces := make([]spaceStatus, 0, len(s.index.Spaces()))
	for _, sp := range s.index.Spaces() {
		spaces = append(spaces, spaceStatus{
			Name:       sp.Name(),
			Kind:       string(sp.Kind()),
			Field:      sp.Field(),
			Model:      sp.Model(),
			Dimensions: sp.Dimensions(),
		})
	}
	resp := map[string]any{
		"proposals":          s.index.Len(),
		"spaces":             spaces,
		"embedding_provider": s.config.Embedding.Provider,
		"storage_driver":     s.config.Storage.Driver,
	}
	if s.keyword != nil {
		if n, err := s.keyword.DocCount(); err == nil {
			resp["keyword_documents"] = n
		}
	}
	opts := storage.Options{
		Driver:       s.config.Storage.Driver,
		DatabasePath: s.config.Storage.DatabasePath,
		BadgerPath:   s.config.Storage.BadgerPath,
	}
	if diskBytes, err := storage.DiskUsageBytes(opts.Path(), s.config.Storage.SnapshotPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondFailure maps the error taxonomy onto HTTP status codes.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	var (
		verr *models.ValidationError
		mErr *models.MissingFieldError
		qErr *models.InvalidQueryError
		eErr *models.EmbeddingServiceError
	)
	switch {
	case errors.As(err, &verr):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Problems: verr.Problems})
	case errors.As(err, &mErr), errors.As(err, &qErr):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &eErr):
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

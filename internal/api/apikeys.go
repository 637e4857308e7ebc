package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

// APIKeyCreateRequest is the request body for POST /keys
type APIKeyCreateRequest struct {
	Name string `json:"name"`
}

// APIKeyCreateResponse carries the one-time token. The token is shown
// exactly once; only its hash is kept.
type APIKeyCreateResponse struct {
	Token string         `json:"token"`
	Key   *models.APIKey `json:"key"`
}

func (s *Server) handleAPIKeyList(w http.ResponseWriter, r *http.Request) {
	keys, err := s.apiKeys.List()
	if err != nil {
		s.logger.Error("failed to list API keys", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Items: keys, Total: len(keys)})
}

func (s *Server) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	var req APIKeyCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	token, key, err := s.apiKeys.Create(req.Name)
	if err != nil {
		s.logger.Error("failed to create API key", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	s.sendJSON(w, http.StatusCreated, APIKeyCreateResponse{Token: token, Key: key})
}

func (s *Server) handleAPIKeyRevoke(w http.ResponseWriter, r *http.Request) {
	err := s.apiKeys.Revoke(chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrInvalidAPIKey) {
		s.sendError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to revoke API key", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

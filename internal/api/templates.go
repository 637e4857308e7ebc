package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/render"
)

// TemplateRequest is the request body for template create/update
type TemplateRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	templates, total, err := s.templates.List(filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Items: templates, Total: total})
}

func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Subject == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "name, subject and body are required")
		return
	}

	tmpl := &models.Template{
		Name:      req.Name,
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: render.ExtractVariables(req.Subject, req.Body),
	}

	if err := s.templates.Create(tmpl); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	s.sendJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var req TemplateRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Subject == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "name, subject and body are required")
		return
	}

	tmpl.Name = req.Name
	tmpl.Subject = req.Subject
	tmpl.Body = req.Body
	tmpl.Variables = render.ExtractVariables(req.Subject, req.Body)

	if err := s.templates.Update(tmpl); err != nil {
		s.logger.Error("failed to update template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.campaigns.CountActiveByTemplate(id)
	if err != nil {
		s.logger.Error("failed to check campaign references", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	if n > 0 {
		s.sendError(w, http.StatusConflict, "Template is used by an active campaign")
		return
	}

	if err := s.templates.Delete(id); err != nil {
		s.logger.Error("failed to delete template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

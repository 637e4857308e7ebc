package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

// ContactRequest is the request body for contact create/update
type ContactRequest struct {
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Company      string            `json:"company"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

func (s *Server) handleContactList(w http.ResponseWriter, r *http.Request) {
	filter := models.ContactListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	contacts, total, err := s.contacts.List(filter)
	if err != nil {
		s.logger.Error("failed to list contacts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list contacts")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Items: contacts, Total: total})
}

func (s *Server) handleContactCreate(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	contact := &models.Contact{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Company:      req.Company,
		CustomFields: req.CustomFields,
	}

	if err := s.contacts.Create(contact); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.sendError(w, http.StatusConflict, "A contact with this email already exists")
			return
		}
		s.logger.Error("failed to create contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create contact")
		return
	}

	s.sendJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleContactGet(w http.ResponseWriter, r *http.Request) {
	contact, err := s.contacts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load contact")
		return
	}
	if contact == nil {
		s.sendError(w, http.StatusNotFound, "Contact not found")
		return
	}

	s.sendJSON(w, http.StatusOK, contact)
}

func (s *Server) handleContactUpdate(w http.ResponseWriter, r *http.Request) {
	contact, err := s.contacts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load contact")
		return
	}
	if contact == nil {
		s.sendError(w, http.StatusNotFound, "Contact not found")
		return
	}

	var req ContactRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	contact.Email = req.Email
	contact.FirstName = req.FirstName
	contact.LastName = req.LastName
	contact.Company = req.Company
	contact.CustomFields = req.CustomFields

	if err := s.contacts.Update(contact); err != nil {
		s.logger.Error("failed to update contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update contact")
		return
	}

	s.sendJSON(w, http.StatusOK, contact)
}

func (s *Server) handleContactDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Past send history survives deletion; only in-flight campaigns block
	// it, because their recipient lists still need the contact.
	n, err := s.campaigns.CountInFlightByContact(id)
	if err != nil {
		s.logger.Error("failed to check campaign references", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete contact")
		return
	}
	if n > 0 {
		s.sendError(w, http.StatusConflict, "Contact is part of an active campaign")
		return
	}

	if err := s.contacts.Delete(id); err != nil {
		s.logger.Error("failed to delete contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete contact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter with a default
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

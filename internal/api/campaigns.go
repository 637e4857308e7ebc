package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/outflowhq/outflow/internal/dispatch"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

// CampaignRequest is the request body for campaign create/update
type CampaignRequest struct {
	Name               string     `json:"name"`
	TemplateID         string     `json:"template_id"`
	ContactIDs         []string   `json:"contact_ids"`
	DailyLimit         int        `json:"daily_limit"`
	DelayBetweenEmails int        `json:"delay_between_emails"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
}

func (s *Server) handleCampaignList(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	campaigns, total, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Items: campaigns, Total: total})
}

func (s *Server) handleCampaignCreate(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	if req.TemplateID != "" {
		tmpl, err := s.templates.GetByID(req.TemplateID)
		if err != nil {
			s.logger.Error("failed to load template", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
			return
		}
		if tmpl == nil {
			s.sendError(w, http.StatusBadRequest, "template does not exist")
			return
		}
	}

	campaign := &models.Campaign{
		Name:               req.Name,
		TemplateID:         req.TemplateID,
		ContactIDs:         req.ContactIDs,
		DailyLimit:         req.DailyLimit,
		DelayBetweenEmails: req.DelayBetweenEmails,
		ScheduledAt:        req.ScheduledAt,
	}
	if req.ScheduledAt != nil {
		campaign.Status = models.StatusScheduled
	}

	if err := s.campaigns.Create(campaign); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.sendJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleCampaignGet(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleCampaignUpdate(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if campaign.Status == models.StatusSending || campaign.Status == models.StatusCompleted {
		s.sendError(w, http.StatusConflict, "Campaign settings cannot change while sending or after completion")
		return
	}

	var req CampaignRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	campaign.Name = req.Name
	campaign.TemplateID = req.TemplateID
	campaign.ContactIDs = req.ContactIDs
	campaign.DailyLimit = req.DailyLimit
	campaign.DelayBetweenEmails = req.DelayBetweenEmails
	campaign.ScheduledAt = req.ScheduledAt

	if err := s.campaigns.Update(campaign); err != nil {
		s.logger.Error("failed to update campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update campaign")
		return
	}

	// Moving the start time between draft and scheduled follows from
	// whether one is set.
	switch {
	case campaign.ScheduledAt != nil && campaign.Status == models.StatusDraft:
		err = s.campaigns.UpdateStatus(campaign.ID, models.StatusScheduled, models.StatusDraft)
	case campaign.ScheduledAt == nil && campaign.Status == models.StatusScheduled:
		err = s.campaigns.UpdateStatus(campaign.ID, models.StatusDraft, models.StatusScheduled)
	}
	if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
		s.logger.Error("failed to update campaign status", "error", err)
	}

	campaign, err = s.campaigns.GetByID(campaign.ID)
	if err != nil || campaign == nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleCampaignDelete(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if !campaign.Status.Deletable() {
		s.sendError(w, http.StatusConflict, "Campaign cannot be deleted while sending; pause it first")
		return
	}

	if err := s.campaigns.Delete(campaign.ID); err != nil {
		s.logger.Error("failed to delete campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCampaignStart(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.Start(chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrCampaignNotFound):
			s.sendError(w, http.StatusNotFound, "Campaign not found")
		case errors.Is(err, dispatch.ErrInvalidState):
			s.sendError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to start campaign", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to start campaign")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleCampaignPause(w http.ResponseWriter, r *http.Request) {
	err := s.campaigns.UpdateStatus(chi.URLParam(r, "id"), models.StatusPaused, models.StatusSending)
	if errors.Is(err, repository.ErrInvalidTransition) {
		s.sendError(w, http.StatusConflict, "Only a sending campaign can be paused")
		return
	}
	if err != nil {
		s.logger.Error("failed to pause campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to pause campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusPaused)})
}

func (s *Server) handleCampaignResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.campaigns.UpdateStatus(id, models.StatusSending, models.StatusPaused)
	if errors.Is(err, repository.ErrInvalidTransition) {
		s.sendError(w, http.StatusConflict, "Only a paused campaign can be resumed")
		return
	}
	if err != nil {
		s.logger.Error("failed to resume campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to resume campaign")
		return
	}

	// Re-enter scheduling so the remaining recipients get fresh entries.
	result, err := s.scheduler.Start(id)
	if err != nil {
		s.logger.Error("failed to reschedule campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to resume campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleCampaignSends(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	sends, err := s.sends.ListByCampaign(id)
	if err != nil {
		s.logger.Error("failed to list sends", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list sends")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Items: sends, Total: len(sends)})
}

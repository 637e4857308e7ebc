package api

import (
	"net/http"

	"github.com/outflowhq/outflow/internal/models"
)

// AnalyticsResponse aggregates delivery and engagement numbers
type AnalyticsResponse struct {
	Campaigns   int     `json:"campaigns"`
	EmailsSent  int     `json:"emails_sent"`
	TotalOpens  int     `json:"total_opens"`
	TotalClicks int     `json:"total_clicks"`
	OpenRate    float64 `json:"open_rate"`
	ClickRate   float64 `json:"click_rate"`

	RecentOpens []models.OpenEventWithCampaign `json:"recent_opens"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	campaigns, sent, opened, clicked, err := s.campaigns.Totals()
	if err != nil {
		s.logger.Error("failed to aggregate campaign totals", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}

	recent, err := s.sends.RecentOpens(queryInt(r, "recent", 10))
	if err != nil {
		s.logger.Error("failed to list recent opens", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}

	resp := AnalyticsResponse{
		Campaigns:   campaigns,
		EmailsSent:  sent,
		TotalOpens:  opened,
		TotalClicks: clicked,
		RecentOpens: recent,
	}
	if sent > 0 {
		resp.OpenRate = float64(opened) / float64(sent)
		resp.ClickRate = float64(clicked) / float64(sent)
	}

	s.sendJSON(w, http.StatusOK, resp)
}

package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/outflowhq/outflow/internal/tracking"
)

// handleTrackOpen serves the tracking pixel. It always answers with the
// pixel, whatever happened internally: a broken image in someone's inbox
// would leak that tracking exists, and an error body would too.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	err := s.sink.RecordOpen(trackingID, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		s.logger.Error("failed to record open", "tracking_id", trackingID, "error", err)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(tracking.Pixel)))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(tracking.Pixel)
}

// handleTrackClick records a click and redirects to the original target
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	target := r.URL.Query().Get("u")
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.sendError(w, http.StatusBadRequest, "Invalid redirect target")
		return
	}

	if err := s.sink.RecordClick(trackingID); err != nil {
		s.logger.Error("failed to record click", "tracking_id", trackingID, "error", err)
	}

	http.Redirect(w, r, target, http.StatusFound)
}

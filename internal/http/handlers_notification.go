package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	notifications, err := s.finance.Notifications(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, notifications)
}

// handleMarkNotificationRead is idempotent: re-marking a read notification
// succeeds with the same response.
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := s.finance.MarkNotificationRead(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

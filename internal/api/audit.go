package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/finboard-core/internal/audit"
)

// handleListAudit returns the widget change history, most recent first.
//
// Query parameters:
//   - action: created, updated, corrected or removed
//   - widget: widget ID
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:   audit.Action(q.Get("action")),
		WidgetID: q.Get("widget"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/finboard-core/internal/projection"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// createWidgetRequest is a widget configuration plus creation options.
type createWidgetRequest struct {
	widget.Config

	// SkipProbe creates the widget without test-fetching its apiUrl first.
	SkipProbe bool `json:"skipProbe"`
}

// reorderRequest is the body of PUT /widgets/order.
type reorderRequest struct {
	IDs []string `json:"ids"`
}

// handleListWidgets returns every widget in display order.
func (s *Server) handleListWidgets(w http.ResponseWriter, _ *http.Request) {
	widgets := s.store.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"widgets":         widgets,
		"count":           len(widgets),
		"currentTemplate": s.store.CurrentTemplate(),
	})
}

// handleGetWidget returns a single widget by ID.
func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	wd, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get widget")
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// handleCreateWidget adds a widget. Unless skipProbe is set the apiUrl is
// fetched once first and a failing source is rejected.
func (s *Server) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !req.SkipProbe {
		if _, err := s.engine.Probe(r.Context(), req.APIURL); err != nil {
			var verr *widget.ValidationError
			if errors.As(err, &verr) {
				s.writeDomainError(w, err, "failed to create widget")
				return
			}
			writeError(w, http.StatusBadRequest, ErrCodeAPITestFailed, err.Error())
			return
		}
	}

	wd, err := s.store.Create(r.Context(), req.Config)
	if err != nil {
		s.writeDomainError(w, err, "failed to create widget")
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// handleUpdateWidget partially updates a widget. Acquisition restarts only
// when the source settings change.
func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	var patch widget.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	wd, err := s.store.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, err, "failed to update widget")
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// handleDeleteWidget removes a widget. Its session is torn down before the
// response is written.
func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to delete widget")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearWidgets removes every widget.
func (s *Server) handleClearWidgets(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearAll(r.Context()); err != nil {
		s.writeDomainError(w, err, "failed to clear widgets")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderWidgets sets the display order. The body must list every
// widget ID exactly once.
func (s *Server) handleReorderWidgets(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.Reorder(r.Context(), req.IDs); err != nil {
		s.writeDomainError(w, err, "failed to reorder widgets")
		return
	}
	s.handleListWidgets(w, r)
}

// handleRefreshWidget fetches the widget's apiUrl now and returns the
// updated widget. The polling schedule is unchanged.
func (s *Server) handleRefreshWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Refresh(r.Context(), id); err != nil {
		s.writeDomainError(w, err, "failed to refresh widget")
		return
	}
	s.handleGetWidget(w, r)
}

// handleStartAcquisition (re)starts acquisition for a widget.
func (s *Server) handleStartAcquisition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The session must outlive this request.
	if err := s.engine.Start(context.WithoutCancel(r.Context()), id); err != nil {
		s.writeDomainError(w, err, "failed to start acquisition")
		return
	}

	info, _ := s.engine.Session(id)
	writeJSON(w, http.StatusOK, info)
}

// handleStopAcquisition stops acquisition for a widget without removing it.
func (s *Server) handleStopAcquisition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		s.writeDomainError(w, err, "failed to stop acquisition")
		return
	}

	s.engine.Stop(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "stopped": true})
}

// handleWidgetFields lists the fields of the widget's current data.
//
// Query parameters:
//   - search: case-insensitive key filter
//   - arraysOnly: "true" keeps only array fields
func (s *Server) handleWidgetFields(w http.ResponseWriter, r *http.Request) {
	wd, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get widget")
		return
	}

	q := r.URL.Query()
	writeJSON(w, http.StatusOK, fieldsResponse(wd.Data, q.Get("search"), q.Get("arraysOnly") == "true"))
}

// handleWidgetView returns the display projection for the widget's mode.
//
// Query parameters (table mode):
//   - search: row filter
//   - sort: field to sort by
//   - dir: "asc" (default) or "desc"
//   - limit: maximum rows (default 10)
func (s *Server) handleWidgetView(w http.ResponseWriter, r *http.Request) {
	wd, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get widget")
		return
	}

	q := r.URL.Query()
	opts := projection.TableOptions{
		Search:     q.Get("search"),
		SortKey:    q.Get("sort"),
		Descending: q.Get("dir") == "desc",
	}
	if v := q.Get("limit"); v != "" {
		limit, convErr := strconv.Atoi(v)
		if convErr != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	writeJSON(w, http.StatusOK, projection.Project(wd, opts))
}

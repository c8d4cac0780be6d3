package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/finboard-core/internal/widget"
)

// handleListTemplates returns the built-in dashboard templates.
func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := widget.Templates()
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

// handleApplyTemplate replaces every widget with the template's widgets.
func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ApplyTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to apply template")
		return
	}
	s.handleListWidgets(w, r)
}

// handleDashboard returns dashboard-level state.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"currentTemplate": s.store.CurrentTemplate(),
		"widgetCount":     s.store.Count(),
	})
}

// handleExport downloads the widget configurations as a document.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	data, err := widget.Export(s.store.Configs(), now)
	if err != nil {
		s.writeDomainError(w, err, "failed to export dashboard")
		return
	}

	filename := fmt.Sprintf("finboard-config-%s.json", now.UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // Best-effort write to response
}

// handleImport replaces every widget with those in the uploaded document.
// With ?strict=true a document from another format version is rejected.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	var configs []widget.Config
	if r.URL.Query().Get("strict") == "true" {
		var doc *widget.Document
		if doc, err = widget.LoadDocument(body); err == nil {
			configs = doc.Widgets
		}
	} else {
		configs, err = widget.Import(body)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to import dashboard")
		return
	}

	if err := s.store.Replace(r.Context(), configs); err != nil {
		s.writeDomainError(w, err, "failed to import dashboard")
		return
	}

	s.logger.Info("dashboard imported", "widgets", len(configs))
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(configs),
		"widgets":  s.store.List(),
	})
}

// handleListSessions returns the acquisition engine's session snapshot.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.engine.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

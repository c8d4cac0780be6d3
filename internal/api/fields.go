package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// fieldsRequest is the body of POST /fields.
type fieldsRequest struct {
	Document   json.RawMessage `json:"document"`
	Search     string          `json:"search"`
	ArraysOnly bool            `json:"arraysOnly"`
}

// discoverRequest is the body of POST /fields/discover.
type discoverRequest struct {
	URL        string `json:"url"`
	Search     string `json:"search"`
	ArraysOnly bool   `json:"arraysOnly"`
}

// resolveRequest is the body of POST /resolve.
type resolveRequest struct {
	Document json.RawMessage `json:"document"`
	Path     string          `json:"path"`
}

// fieldsResponse flattens doc and lists its discovery paths.
func fieldsResponse(doc fieldpath.Value, search string, arraysOnly bool) map[string]any {
	all := fieldpath.Flatten(doc)
	fields := fieldpath.Filter(all, fieldpath.FilterOptions{Search: search, ArraysOnly: arraysOnly})
	discovered := fieldpath.Discover(doc)
	if discovered == nil {
		discovered = []string{}
	}
	return map[string]any{
		"fields":     fields,
		"total":      len(all),
		"discovered": discovered,
	}
}

// handleFields flattens a pasted document.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	var req fieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	doc, ok := parseDocument(w, req.Document)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fieldsResponse(doc, req.Search, req.ArraysOnly))
}

// handleDiscoverFields probes a URL and flattens the response, the way the
// add-widget flow tests an API before saving.
func (s *Server) handleDiscoverFields(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	doc, err := s.engine.Probe(r.Context(), req.URL)
	if err != nil {
		var verr *widget.ValidationError
		if errors.As(err, &verr) {
			s.writeDomainError(w, err, "failed to probe url")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeAPITestFailed, err.Error())
		return
	}

	resp := fieldsResponse(doc, req.Search, req.ArraysOnly)
	resp["data"] = doc
	writeJSON(w, http.StatusOK, resp)
}

// handleResolve reads one path from a pasted document.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	doc, ok := parseDocument(w, req.Document)
	if !ok {
		return
	}

	path := fieldpath.StripTypeAnnotation(req.Path)
	v, found := fieldpath.Resolve(doc, path)
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"found": found,
		"value": v,
		"text":  fieldpath.Text(v),
	})
}

func parseDocument(w http.ResponseWriter, raw json.RawMessage) (fieldpath.Value, bool) {
	if len(raw) == 0 {
		writeBadRequest(w, "document is required")
		return nil, false
	}
	doc, err := fieldpath.Parse(raw)
	if err != nil {
		writeBadRequest(w, err.Error())
		return nil, false
	}
	return doc, true
}

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/render"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// workspace returns the open workspace for the {id} path parameter, opening
// it on first use. On failure the response has been written.
func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workflow.Workspace, bool) {
	ws, err := s.workspaces.Acquire(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.writeServiceError(w, err, "certificate")
		return nil, false
	}
	return ws, true
}

// handleCreateCertificate handles POST /v1/certificates.
func (s *Server) handleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	var cert model.Certificate
	if !decodeJSON(w, r, &cert) {
		return
	}
	created, err := s.svc.Create(r.Context(), &cert, actor(r))
	if err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListCertificates handles GET /v1/certificates.
func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.CertificateFilter{Search: q.Get("search")}
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, model.Status(st))
		}
	}
	if v := q.Get("type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			filter.Type = append(filter.Type, model.CertificateType(t))
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	certs, total, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err, "certificates")
		return
	}
	if certs == nil {
		certs = []*model.Certificate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"certificates": certs,
		"total":        total,
	})
}

// handleGetCertificate handles GET /v1/certificates/{id}. An open workspace
// answers with its working copy.
func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if ws, ok := s.workspaces.Lookup(id); ok {
		writeJSON(w, http.StatusOK, ws.Status().Certificate)
		return
	}
	cert, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// handleEditCertificate handles PUT /v1/certificates/{id}. The working copy
// changes; nothing is persisted until save.
func (s *Server) handleEditCertificate(w http.ResponseWriter, r *http.Request) {
	var cert model.Certificate
	if !decodeJSON(w, r, &cert) {
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Edit(&cert); err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	writeJSON(w, http.StatusOK, ws.Status())
}

// handleDeleteCertificate handles DELETE /v1/certificates/{id}.
func (s *Server) handleDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.workspaces.Release(id)
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus handles GET /v1/certificates/{id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Status())
}

// handleSave handles POST /v1/certificates/{id}/save.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Save(r.Context()); err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	writeJSON(w, http.StatusOK, ws.Status())
}

// handleGenerate handles POST /v1/certificates/{id}/generate. Rendering runs
// in the background; poll status or watch the event stream for the result.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Generate(r.Context()); err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	writeJSON(w, http.StatusAccepted, ws.Status())
}

// handleCopyJSON handles GET /v1/certificates/{id}/json.
func (s *Server) handleCopyJSON(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data, err := ws.CopyJSON(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDocument handles GET /v1/certificates/{id}/pdf.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	data, cert, err := s.svc.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err, "certificate")
		return
	}
	w.Header().Set("Content-Type", render.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.Filename(cert)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleCloseWorkspace handles POST /v1/certificates/{id}/close. Unsaved
// edits in the working copy are discarded.
func (s *Server) handleCloseWorkspace(w http.ResponseWriter, r *http.Request) {
	closed := s.workspaces.Release(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"closed": closed})
}

// handleListDispatches handles GET /v1/certificates/{id}/dispatches.
func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	ds, err := s.svc.Dispatches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err, "dispatches")
		return
	}
	if ds == nil {
		ds = []*model.Dispatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispatches": ds})
}

// handleGetEvents handles GET /v1/certificates/{id}/events.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.svc.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err, "events")
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

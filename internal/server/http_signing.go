package server

import (
	"net/http"

	"github.com/alfredjeanlab/certflow/internal/signing"
)

// writeSnapshot writes a flow snapshot or maps err.
func (s *Server) writeSnapshot(w http.ResponseWriter, snap signing.Snapshot, err error) {
	if err != nil {
		s.writeServiceError(w, err, "signature session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSigningSnapshot handles GET /v1/certificates/{id}/signing.
func (s *Server) handleSigningSnapshot(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Signing().Snapshot())
}

// handleSigningOpen handles POST /v1/certificates/{id}/signing/open.
func (s *Server) handleSigningOpen(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.OpenSigning()
	s.writeSnapshot(w, snap, err)
}

// handleSigningApply handles PATCH /v1/certificates/{id}/signing.
func (s *Server) handleSigningApply(w http.ResponseWriter, r *http.Request) {
	var p signing.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().Apply(p)
	s.writeSnapshot(w, snap, err)
}

// handleSigningUseSaved handles POST /v1/certificates/{id}/signing/saved-signature.
func (s *Server) handleSigningUseSaved(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().UseSavedSignature()
	s.writeSnapshot(w, snap, err)
}

// handleSigningClear handles POST /v1/certificates/{id}/signing/clear.
func (s *Server) handleSigningClear(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().ClearSignature()
	s.writeSnapshot(w, snap, err)
}

// handleSigningSameAs handles POST /v1/certificates/{id}/signing/same-as.
func (s *Server) handleSigningSameAs(w http.ResponseWriter, r *http.Request) {
	var in struct {
		On bool `json:"on"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().SetSameAsInspected(in.On)
	s.writeSnapshot(w, snap, err)
}

// handleSigningNext handles POST /v1/certificates/{id}/signing/next.
func (s *Server) handleSigningNext(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().Next()
	s.writeSnapshot(w, snap, err)
}

// handleSigningBack handles POST /v1/certificates/{id}/signing/back.
func (s *Server) handleSigningBack(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap, err := ws.Signing().Back()
	s.writeSnapshot(w, snap, err)
}

// handleSigningFinish handles POST /v1/certificates/{id}/signing/finish.
func (s *Server) handleSigningFinish(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	pair, err := ws.FinishSigning(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "signature session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signatures": pair,
		"status":     ws.Status(),
	})
}

// handleSigningClose handles POST /v1/certificates/{id}/signing/close.
func (s *Server) handleSigningClose(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ws.Signing().Close()
	writeJSON(w, http.StatusOK, ws.Signing().Snapshot())
}

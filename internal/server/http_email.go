package server

import (
	"net/http"
)

type emailEditInput struct {
	Recipient *string `json:"recipient,omitempty"`
	CC        *string `json:"cc,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// handleEmailState handles GET /v1/certificates/{id}/email.
func (s *Server) handleEmailState(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Email().State())
}

// handleEmailOpen handles POST /v1/certificates/{id}/email/open. It answers
// 409 while the certificate is missing a signature.
func (s *Server) handleEmailOpen(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	st, err := ws.OpenEmail(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "email session")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEmailEdit handles PATCH /v1/certificates/{id}/email.
func (s *Server) handleEmailEdit(w http.ResponseWriter, r *http.Request) {
	var in emailEditInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	sess := ws.Email()
	st := sess.State()
	var err error
	if in.Recipient != nil {
		if st, err = sess.SetRecipient(*in.Recipient); err != nil {
			s.writeServiceError(w, err, "email session")
			return
		}
	}
	if in.CC != nil {
		if st, err = sess.SetCC(*in.CC); err != nil {
			s.writeServiceError(w, err, "email session")
			return
		}
	}
	if in.Message != nil {
		if st, err = sess.SetMessage(*in.Message); err != nil {
			s.writeServiceError(w, err, "email session")
			return
		}
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEmailSend handles POST /v1/certificates/{id}/email/send. Delivery
// runs in the background; the response carries the sending state.
func (s *Server) handleEmailSend(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	st, err := ws.Email().Send(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "email session")
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// handleEmailClose handles POST /v1/certificates/{id}/email/close.
func (s *Server) handleEmailClose(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ws.Email().Close()
	writeJSON(w, http.StatusOK, ws.Email().State())
}

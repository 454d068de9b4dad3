package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/events/stream", s.handleEventStream)
	r.Get("/v1/workspaces", s.handleRoster)

	r.Route("/v1/certificates", func(r chi.Router) {
		r.Use(s.logRequests)
		r.Get("/", s.handleListCertificates)
		r.Post("/", s.handleCreateCertificate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCertificate)
			r.Put("/", s.handleEditCertificate)
			r.Delete("/", s.handleDeleteCertificate)
			r.Get("/status", s.handleStatus)
			r.Post("/save", s.handleSave)
			r.Post("/generate", s.handleGenerate)
			r.Get("/json", s.handleCopyJSON)
			r.Get("/pdf", s.handleDocument)
			r.Post("/close", s.handleCloseWorkspace)
			r.Get("/dispatches", s.handleListDispatches)
			r.Get("/events", s.handleGetEvents)

			r.Route("/signing", func(r chi.Router) {
				r.Get("/", s.handleSigningSnapshot)
				r.Patch("/", s.handleSigningApply)
				r.Post("/open", s.handleSigningOpen)
				r.Post("/saved-signature", s.handleSigningUseSaved)
				r.Post("/clear", s.handleSigningClear)
				r.Post("/same-as", s.handleSigningSameAs)
				r.Post("/next", s.handleSigningNext)
				r.Post("/back", s.handleSigningBack)
				r.Post("/finish", s.handleSigningFinish)
				r.Post("/close", s.handleSigningClose)
			})

			r.Route("/email", func(r chi.Router) {
				r.Get("/", s.handleEmailState)
				r.Patch("/", s.handleEmailEdit)
				r.Post("/open", s.handleEmailOpen)
				r.Post("/send", s.handleEmailSend)
				r.Post("/close", s.handleEmailClose)
			})
		})
	})
	return AuthMiddleware(authToken, r)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoster handles GET /v1/workspaces.
func (s *Server) handleRoster(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": s.workspaces.Roster()})
}

func actor(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

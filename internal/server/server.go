// Package server exposes the certificate workflow over HTTP/JSON and gRPC.
package server

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/certflow/internal/actionbar"
	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/presence"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Certflow-Actor"

// Server holds the workflow service and the open workspaces.
type Server struct {
	svc        *workflow.Service
	workspaces *presence.Tracker[*workflow.Workspace]
	hub        *EventHub
	logger     *slog.Logger
}

// NewServer returns a Server. hub may be nil when event streaming is not
// wanted; the same hub should be the service's broadcast hook.
func NewServer(svc *workflow.Service, workspaces *presence.Tracker[*workflow.Workspace], hub *EventHub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = NewEventHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, workspaces: workspaces, hub: hub, logger: logger}
}

// conflict reports whether err is a state error of one of the workflow
// components: the request was well formed but not valid right now.
func conflict(err error) bool {
	for _, target := range []error{
		actionbar.ErrDisabled,
		signing.ErrClosed,
		signing.ErrWrongStep,
		signing.ErrNoSavedSignature,
		dispatch.ErrClosed,
		dispatch.ErrSendInFlight,
		dispatch.ErrAlreadySent,
		workflow.ErrWorkspaceClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError maps workflow errors to HTTP responses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, entity string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, validationBody(ve))
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, entity+" not found")
	case conflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "entity", entity, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func validationBody(ve *model.ValidationError) map[string]any {
	fields := make([]map[string]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		fields = append(fields, map[string]string{"field": fe.Field, "message": fe.Message})
	}
	return map[string]any{"error": ve.Error(), "fields": fields}
}

// serviceStatus maps workflow errors to gRPC status errors.
func serviceStatus(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.Is(err, sql.ErrNoRows):
		return status.Errorf(codes.NotFound, "%s not found", entity)
	case conflict(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Errorf(codes.Internal, "failed to get %s: %v", entity, err)
}

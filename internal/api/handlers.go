package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/drivelink/internal/driver"
	"github.com/mattjoyce/drivelink/internal/journal"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 1000
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.driver.Status()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Connected:     st.Connected,
		Stage:         st.Stage,
		Busy:          st.Busy,
	})
}

// handleCommand handles POST /command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	if req.Properties == nil || req.Properties.Command() == "" {
		s.writeError(w, http.StatusBadRequest, "properties.command is required")
		return
	}
	t, err := req.Timeouts.parse()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.driver.Send(r.Context(), req.Properties, t)
	s.writeOutcome(w, out, err)
}

// handleCommandFile handles POST /command/file.
func (s *Server) handleCommandFile(w http.ResponseWriter, r *http.Request) {
	var req FileCommandRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	t, err := req.Timeouts.parse()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.driver.SendFile(r.Context(), req.Path, t)
	s.writeOutcome(w, out, err)
}

// handleMessage handles POST /message.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	out, err := s.driver.Message(r.Context(), req.Text)
	s.writeOutcome(w, out, err)
}

// handleShutdown handles POST /shutdown. The body is optional.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	t, err := req.Timeouts.parse()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.driver.Shutdown(r.Context(), t)
	s.writeOutcome(w, out, err)
}

// handleListCommands handles GET /commands?limit=N.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list commands")
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	respondJSON(w, http.StatusOK, CommandListResponse{Commands: entries})
}

// handleGetCommand handles GET /commands/{id}.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.history.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "command not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get command", "command_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get command")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// decodeBody decodes a JSON body into dst. An empty body is accepted when
// required is false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return true
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeOutcome maps a driver outcome to an HTTP response. The body is always
// the outcome when one exists, so clients see the command id and error text.
func (s *Server) writeOutcome(w http.ResponseWriter, out *driver.Outcome, err error) {
	switch {
	case err == nil:
		respondJSON(w, statusFor(out.Status), out)
	case errors.Is(err, driver.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "request ended before the remote engine was free")
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func statusFor(status journal.Status) int {
	switch status {
	case journal.StatusSucceeded:
		return http.StatusOK
	case journal.StatusTimedOut:
		return http.StatusGatewayTimeout
	case journal.StatusRemoteException, journal.StatusSendFailed:
		return http.StatusBadGateway
	case journal.StatusLocalShutdown, journal.StatusRemoteShutdown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kaura24/regaudit/internal/types"
)

// resolveRequest is the reviewer's resolution payload.
type resolveRequest struct {
	Decision         types.ResolutionDecision `json:"decision"`
	CorrectedPayload json.RawMessage          `json:"corrected_payload,omitempty"`
	ResolvedBy       string                   `json:"resolved_by,omitempty"`
	Note             string                   `json:"note,omitempty"`
}

// handleRunPacket returns the open or resolved packet for a run.
func (s *Server) handleRunPacket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	packet, err := s.repo.GetPacketByRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, packet)
}

// handleGetPacket returns one packet by its own id.
func (s *Server) handleGetPacket(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid packet id")
		return
	}
	packet, err := s.repo.GetPacket(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, packet)
}

// handleResolvePacket applies the one-time reviewer resolution. Resolution
// does not resume the run; the client calls resume separately once ready.
func (s *Server) handleResolvePacket(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid packet id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	packet, err := s.orc.ResolvePacket(r.Context(), id, types.Resolution{
		Decision:         req.Decision,
		CorrectedPayload: req.CorrectedPayload,
		ResolvedBy:       req.ResolvedBy,
		Note:             req.Note,
	})
	if err != nil {
		status := httpStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.errorResponse(w, status, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, packet)
}

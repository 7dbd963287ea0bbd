package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/types"
)

// createRunRequest is the submission payload.
type createRunRequest struct {
	Sources []types.SourceRef   `json:"sources"`
	Mode    types.ExecutionMode `json:"mode"`
}

// executeRunRequest optionally overrides the mode chosen at submission.
type executeRunRequest struct {
	Mode types.ExecutionMode `json:"mode,omitempty"`
}

func (s *Server) parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

// handleCreateRun registers a new submission in pending state.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = types.ModeMultiAgent
	}

	run, err := s.orc.CreateRun(r.Context(), req.Sources, req.Mode)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, run)
}

// handleListRuns returns every persisted run.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.repo.ListRuns(r.Context())
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleExecuteRun queues the run and executes it in the background. The
// response is immediate; progress arrives via the event stream or polling.
func (s *Server) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}

	var req executeRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	run, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	if run.Status != types.StatusPending && run.Status != types.StatusQueued {
		s.errorResponse(w, http.StatusConflict, "run is "+string(run.Status)+" and cannot be executed")
		return
	}
	run.Status = types.StatusQueued
	if err := s.repo.SaveRun(r.Context(), run); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	go func() {
		if err := s.orc.ExecuteRun(context.Background(), id, req.Mode); err != nil {
			s.log.Error("execution failed",
				zap.String("run_id", id.String()),
				zap.Error(err))
		}
	}()
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": id.String(),
		"status": string(types.StatusQueued),
	})
}

// handleCancelRun requests cooperative cancellation.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	if err := s.orc.CancelRun(r.Context(), id); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"run_id": id.String()})
}

// handleResumeRun continues a suspended run in the background. The packet
// must already be resolved; an unresolved packet fails fast with 412.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}

	run, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	if run.Status != types.StatusHITL {
		s.errorResponse(w, http.StatusConflict, "run is "+string(run.Status)+", not awaiting review")
		return
	}
	packet, err := s.repo.GetPacketByRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	if !packet.Resolved() {
		s.errorResponse(w, http.StatusPreconditionFailed, "hitl packet is not resolved yet")
		return
	}

	go func() {
		if err := s.orc.ResumeRun(context.Background(), id); err != nil {
			s.log.Error("resume failed",
				zap.String("run_id", id.String()),
				zap.Error(err))
		}
	}()
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"run_id": id.String()})
}

// handleRunEvents returns the append-only audit trail.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	if _, err := s.repo.GetRun(r.Context(), id); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	events, err := s.repo.GetEvents(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleRunArtifacts returns every artifact for a run, keyed "stage:kind".
func (s *Server) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	if _, err := s.repo.GetRun(r.Context(), id); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	artifacts, err := s.repo.Artifacts(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, artifacts)
}

// handleRunArtifact returns one artifact payload.
func (s *Server) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	stage := r.PathValue("stage")
	kind := types.ArtifactKind(r.PathValue("kind"))

	raw, err := s.repo.GetArtifact(r.Context(), id, stage, kind)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw) //nolint:errcheck
}

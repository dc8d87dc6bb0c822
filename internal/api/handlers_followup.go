package api

import (
	"encoding/json"
	"net/http"

	"github.com/greenroomhq/greenroom/internal/orchestrator"
)

type followUpBody struct {
	Prompt          string `json:"prompt"`
	Variant         string `json:"variant,omitempty"`
	RetryProcessID  string `json:"retry_process_id,omitempty"`
	ForceWhenDirty  bool   `json:"force_when_dirty,omitempty"`
	PerformGitReset *bool  `json:"perform_git_reset,omitempty"`
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var body followUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	process, err := s.orch.FollowUp(r.Context(), r.PathValue("id"), orchestrator.FollowUpRequest{
		Prompt:          body.Prompt,
		Variant:         body.Variant,
		RetryProcessID:  body.RetryProcessID,
		ForceWhenDirty:  body.ForceWhenDirty,
		PerformGitReset: body.PerformGitReset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toProcessJSON(process))
}

type queueFollowUpBody struct {
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleQueueFollowUp(w http.ResponseWriter, r *http.Request) {
	var body queueFollowUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Payload) == 0 {
		respondMessage(w, http.StatusBadRequest, "payload is required")
		return
	}
	if err := s.orch.QueueFollowUp(r.PathValue("id"), string(body.Payload)); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

func (s *Server) handleGetQueuedFollowUp(w http.ResponseWriter, r *http.Request) {
	draft, err := s.orch.QueuedFollowUp(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if draft == nil {
		respondData(w, nil)
		return
	}
	respondData(w, map[string]any{
		"payload":    json.RawMessage(draft.Payload),
		"updated_at": draft.UpdatedAt,
	})
}

func (s *Server) handleDiscardQueuedFollowUp(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DiscardQueuedFollowUp(r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

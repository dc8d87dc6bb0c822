package api

import (
	"encoding/json"
	"net/http"

	"github.com/greenroomhq/greenroom/internal/orchestrator"
)

type repoBody struct {
	RepoID string `json:"repo_id"`
}

func decodeRepoBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body repoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if body.RepoID == "" {
		respondMessage(w, http.StatusBadRequest, "repo_id is required")
		return "", false
	}
	return body.RepoID, true
}

func (s *Server) handleBranchStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.orch.BranchStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, statuses)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	repoID, ok := decodeRepoBody(w, r)
	if !ok {
		return
	}
	merge, err := s.orch.Merge(r.Context(), r.PathValue("id"), repoID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toMergeJSON(merge))
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	s.push(w, r, false)
}

func (s *Server) handleForcePush(w http.ResponseWriter, r *http.Request) {
	s.push(w, r, true)
}

func (s *Server) push(w http.ResponseWriter, r *http.Request, force bool) {
	repoID, ok := decodeRepoBody(w, r)
	if !ok {
		return
	}
	if err := s.orch.Push(r.Context(), r.PathValue("id"), repoID, force); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

type rebaseBody struct {
	RepoID        string `json:"repo_id"`
	OldBaseBranch string `json:"old_base_branch,omitempty"`
	NewBaseBranch string `json:"new_base_branch,omitempty"`
}

func (s *Server) handleRebase(w http.ResponseWriter, r *http.Request) {
	var body rebaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.RepoID == "" {
		respondMessage(w, http.StatusBadRequest, "repo_id is required")
		return
	}
	err := s.orch.Rebase(r.Context(), r.PathValue("id"), orchestrator.RebaseRequest{
		RepoID:        body.RepoID,
		OldBaseBranch: body.OldBaseBranch,
		NewBaseBranch: body.NewBaseBranch,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

func (s *Server) handleAbortConflicts(w http.ResponseWriter, r *http.Request) {
	repoID, ok := decodeRepoBody(w, r)
	if !ok {
		return
	}
	if err := s.orch.AbortConflicts(r.Context(), r.PathValue("id"), repoID); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

type changeTargetBody struct {
	RepoID       string `json:"repo_id"`
	TargetBranch string `json:"target_branch"`
}

func (s *Server) handleChangeTargetBranch(w http.ResponseWriter, r *http.Request) {
	var body changeTargetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.RepoID == "" {
		respondMessage(w, http.StatusBadRequest, "repo_id is required")
		return
	}
	if err := s.orch.ChangeTargetBranch(r.Context(), r.PathValue("id"), body.RepoID, body.TargetBranch); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

type renameBranchBody struct {
	NewBranch string `json:"new_branch"`
}

func (s *Server) handleRenameBranch(w http.ResponseWriter, r *http.Request) {
	var body renameBranchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orch.RenameBranch(r.Context(), r.PathValue("id"), body.NewBranch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, result)
}

func (s *Server) handleAttachPR(w http.ResponseWriter, r *http.Request) {
	repoID, ok := decodeRepoBody(w, r)
	if !ok {
		return
	}
	merge, err := s.orch.AttachPR(r.Context(), r.PathValue("id"), repoID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toMergeJSON(merge))
}

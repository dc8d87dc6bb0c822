package api

import (
	"encoding/json"
	"net/http"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/orchestrator"
)

type createAttemptBody struct {
	TaskID   string `json:"task_id"`
	Executor string `json:"executor"`
	Variant  string `json:"variant,omitempty"`
	Repos    []struct {
		RepoID       string `json:"repo_id"`
		TargetBranch string `json:"target_branch"`
	} `json:"repos"`
}

func (s *Server) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	var body createAttemptBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := orchestrator.CreateAttemptRequest{
		TaskID:   body.TaskID,
		Executor: body.Executor,
		Variant:  body.Variant,
	}
	for _, repo := range body.Repos {
		req.Repos = append(req.Repos, db.RepoTarget{RepoID: repo.RepoID, TargetBranch: repo.TargetBranch})
	}

	attempt, err := s.orch.CreateAttempt(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toAttemptJSON(attempt))
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		respondMessage(w, http.StatusBadRequest, "task_id query parameter is required")
		return
	}
	attempts, err := s.orch.ListAttempts(taskID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toAttemptListJSON(attempts))
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.orch.GetAttempt(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toAttemptJSON(attempt))
}

func (s *Server) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CleanupAttempt(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}

func (s *Server) handleAttemptRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.orch.Repos(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toAttemptRepoListJSON(repos))
}

func (s *Server) handleAttemptChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.orch.Children(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toTaskListJSON(children))
}

func (s *Server) handleAttemptProcesses(w http.ResponseWriter, r *http.Request) {
	processes, err := s.orch.Processes(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toProcessListJSON(processes))
}

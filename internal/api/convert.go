package api

import (
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
)

// Wire views of store records. The store types carry no serialization
// concerns; the API owns the JSON shape.

type attemptJSON struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Executor  string    `json:"executor"`
	Variant   string    `json:"variant,omitempty"`
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAttemptJSON(a *db.Attempt) attemptJSON {
	return attemptJSON{
		ID:        a.ID,
		TaskID:    a.TaskID,
		Executor:  a.Executor,
		Variant:   a.Variant,
		Branch:    a.Branch,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAttemptListJSON(attempts []db.Attempt) []attemptJSON {
	out := make([]attemptJSON, 0, len(attempts))
	for i := range attempts {
		out = append(out, toAttemptJSON(&attempts[i]))
	}
	return out
}

type attemptRepoJSON struct {
	RepoID       string `json:"repo_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Path         string `json:"path"`
	TargetBranch string `json:"target_branch"`
}

func toAttemptRepoListJSON(repos []db.AttemptRepoInfo) []attemptRepoJSON {
	out := make([]attemptRepoJSON, 0, len(repos))
	for _, info := range repos {
		out = append(out, attemptRepoJSON{
			RepoID:       info.Repo.ID,
			Name:         info.Repo.Name,
			DisplayName:  info.Repo.DisplayName,
			Path:         info.Repo.Path,
			TargetBranch: info.TargetBranch,
		})
	}
	return out
}

type processJSON struct {
	ID          string           `json:"id"`
	AttemptID   string           `json:"attempt_id"`
	RunReason   db.RunReason     `json:"run_reason"`
	Status      db.ProcessStatus `json:"status"`
	SessionID   string           `json:"session_id,omitempty"`
	ExitCode    *int64           `json:"exit_code,omitempty"`
	DroppedAt   *time.Time       `json:"dropped_at,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toProcessJSON(p *db.ExecutionProcess) processJSON {
	return processJSON{
		ID:          p.ID,
		AttemptID:   p.AttemptID,
		RunReason:   p.RunReason,
		Status:      p.Status,
		SessionID:   p.SessionID,
		ExitCode:    p.ExitCode,
		DroppedAt:   p.DroppedAt,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
		CreatedAt:   p.CreatedAt,
	}
}

func toProcessListJSON(processes []db.ExecutionProcess) []processJSON {
	out := make([]processJSON, 0, len(processes))
	for i := range processes {
		out = append(out, toProcessJSON(&processes[i]))
	}
	return out
}

type mergeJSON struct {
	ID           string       `json:"id"`
	AttemptID    string       `json:"attempt_id"`
	RepoID       string       `json:"repo_id"`
	MergeType    db.MergeType `json:"merge_type"`
	MergeCommit  string       `json:"merge_commit,omitempty"`
	PRNumber     int64        `json:"pr_number,omitempty"`
	PRURL        string       `json:"pr_url,omitempty"`
	PRStatus     db.PRStatus  `json:"pr_status,omitempty"`
	TargetBranch string       `json:"target_branch"`
	CreatedAt    time.Time    `json:"created_at"`
}

func toMergeJSON(m *db.Merge) mergeJSON {
	return mergeJSON{
		ID:           m.ID,
		AttemptID:    m.AttemptID,
		RepoID:       m.RepoID,
		MergeType:    m.MergeType,
		MergeCommit:  m.MergeCommit,
		PRNumber:     m.PRNumber,
		PRURL:        m.PRURL,
		PRStatus:     m.PRStatus,
		TargetBranch: m.TargetBranch,
		CreatedAt:    m.CreatedAt,
	}
}

type taskJSON struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Status        db.TaskStatus `json:"status"`
	ParentAttempt string        `json:"parent_attempt,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func toTaskListJSON(tasks []db.Task) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskJSON{
			ID:            t.ID,
			ProjectID:     t.ProjectID,
			Title:         t.Title,
			Description:   t.Description,
			Status:        t.Status,
			ParentAttempt: t.ParentAttempt,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}

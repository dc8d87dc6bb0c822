package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/greenroomhq/greenroom/internal/errors"
)

// Attempt represents one execution lineage of a task: its own branch plus a
// worktree per linked repo.
type Attempt struct {
	ID        string
	TaskID    string
	Executor  string
	Variant   string
	Branch    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttemptRepo joins an attempt to a repo with a per-repo target branch.
type AttemptRepo struct {
	ID           string
	AttemptID    string
	RepoID       string
	TargetBranch string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RepoTarget names a repo and the branch an attempt's work will merge into.
type RepoTarget struct {
	RepoID       string
	TargetBranch string
}

// AttemptRepoInfo is the join of a repo with its per-attempt target branch.
type AttemptRepoInfo struct {
	Repo
	TargetBranch string
}

// CreateAttemptWithRepos persists an attempt and all its repo links in one
// transaction. An empty target list is rejected before anything is written.
func (s *Store) CreateAttemptWithRepos(ctx context.Context, a *Attempt, targets []RepoTarget) error {
	if len(targets) == 0 {
		return apperrors.ErrEmptyRepoList()
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()

	return s.RunInTx(ctx, func(tx *TxOps) error {
		var variant any
		if a.Variant != "" {
			variant = a.Variant
		}
		if _, err := tx.Exec(`
			INSERT INTO attempts (id, task_id, executor, variant, branch, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.TaskID, a.Executor, variant, a.Branch, formatTime(a.CreatedAt), formatTime(a.UpdatedAt)); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		for _, target := range targets {
			if _, err := tx.Exec(`
				INSERT INTO attempt_repos (id, attempt_id, repo_id, target_branch, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), a.ID, target.RepoID, target.TargetBranch,
				formatTime(a.CreatedAt), formatTime(a.UpdatedAt)); err != nil {
				return fmt.Errorf("insert attempt repo %s: %w", target.RepoID, err)
			}
		}
		return nil
	})
}

// GetAttempt retrieves an attempt by ID. Returns nil if not found.
func (s *Store) GetAttempt(id string) (*Attempt, error) {
	row := s.QueryRow(`
		SELECT id, task_id, executor, variant, branch, created_at, updated_at
		FROM attempts WHERE id = ?
	`, id)

	var a Attempt
	var variant sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.TaskID, &a.Executor, &variant, &a.Branch, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get attempt %s: %w", id, err)
	}
	a.Variant = variant.String
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)

	return &a, nil
}

// ListAttemptsForTask returns attempts for a task, newest first.
func (s *Store) ListAttemptsForTask(taskID string) ([]Attempt, error) {
	rows, err := s.Query(`
		SELECT id, task_id, executor, variant, branch, created_at, updated_at
		FROM attempts WHERE task_id = ? ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var variant sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Executor, &variant, &a.Branch, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Variant = variant.String
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return attempts, nil
}

// UpdateAttemptBranch persists a new branch name on an attempt.
func (s *Store) UpdateAttemptBranch(id, branch string) error {
	_, err := s.Exec(`
		UPDATE attempts SET branch = ?, updated_at = ? WHERE id = ?
	`, branch, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update attempt branch: %w", err)
	}
	return nil
}

// FindReposForAttempt returns the repos linked to an attempt together with
// their target branches.
func (s *Store) FindReposForAttempt(attemptID string) ([]AttemptRepoInfo, error) {
	rows, err := s.Query(`
		SELECT r.id, r.name, r.display_name, r.path, r.created_at, r.updated_at, ar.target_branch
		FROM repos r
		JOIN attempt_repos ar ON ar.repo_id = r.id
		WHERE ar.attempt_id = ?
		ORDER BY r.name
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("find repos for attempt: %w", err)
	}
	defer rows.Close()

	var infos []AttemptRepoInfo
	for rows.Next() {
		var info AttemptRepoInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.Name, &info.DisplayName, &info.Path, &createdAt, &updatedAt, &info.TargetBranch); err != nil {
			return nil, fmt.Errorf("scan attempt repo: %w", err)
		}
		info.CreatedAt = parseTime(createdAt)
		info.UpdatedAt = parseTime(updatedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt repos: %w", err)
	}

	return infos, nil
}

// UpdateTargetBranch sets the target branch for one (attempt, repo) pair.
func (s *Store) UpdateTargetBranch(attemptID, repoID, targetBranch string) error {
	_, err := s.Exec(`
		UPDATE attempt_repos SET target_branch = ?, updated_at = ?
		WHERE attempt_id = ? AND repo_id = ?
	`, targetBranch, formatTime(time.Now()), attemptID, repoID)
	if err != nil {
		return fmt.Errorf("update target branch: %w", err)
	}
	return nil
}

// UpdateTargetBranchForChildren retargets attempts chained off the given
// attempt: every repo link of a child attempt whose target branch equals
// oldBranch is moved to newBranch. Returns the number of links updated.
func (s *Store) UpdateTargetBranchForChildren(parentAttemptID, oldBranch, newBranch string) (int64, error) {
	result, err := s.Exec(`
		UPDATE attempt_repos
		SET target_branch = ?, updated_at = ?
		WHERE target_branch = ?
		  AND attempt_id IN (
		      SELECT a.id FROM attempts a
		      JOIN tasks t ON a.task_id = t.id
		      WHERE t.parent_attempt = ?
		  )
	`, newBranch, formatTime(time.Now()), oldBranch, parentAttemptID)
	if err != nil {
		return 0, fmt.Errorf("update children target branches: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListChildTasks returns tasks whose parent_attempt is the given attempt.
func (s *Store) ListChildTasks(attemptID string) ([]Task, error) {
	rows, err := s.Query(`
		SELECT id, project_id, title, description, status, parent_attempt, created_at, updated_at
		FROM tasks WHERE parent_attempt = ? ORDER BY created_at
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list child tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child tasks: %w", err)
	}

	return tasks, nil
}

package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Project represents a project registered in the system. Scripts are
// project-level configuration resolved by the orchestrator when dispatching
// setup, cleanup, and dev-server processes.
type Project struct {
	ID                  string
	Name                string
	SetupScript         string
	CleanupScript       string
	DevScript           string
	DevScriptWorkingDir string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SaveProject creates or updates a project.
func (s *Store) SaveProject(p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()

	_, err := s.Exec(`
		INSERT INTO projects (id, name, setup_script, cleanup_script, dev_script, dev_script_working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			setup_script = excluded.setup_script,
			cleanup_script = excluded.cleanup_script,
			dev_script = excluded.dev_script,
			dev_script_working_dir = excluded.dev_script_working_dir,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.SetupScript, p.CleanupScript, p.DevScript, p.DevScriptWorkingDir,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns nil if not found.
func (s *Store) GetProject(id string) (*Project, error) {
	row := s.QueryRow(`
		SELECT id, name, setup_script, cleanup_script, dev_script, dev_script_working_dir, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var setupScript, cleanupScript, devScript, devScriptDir sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.Name, &setupScript, &cleanupScript, &devScript, &devScriptDir, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}

	p.SetupScript = setupScript.String
	p.CleanupScript = cleanupScript.String
	p.DevScript = devScript.String
	p.DevScriptWorkingDir = devScriptDir.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	return &p, nil
}

// GetProjectForAttempt resolves the project that owns an attempt's task.
func (s *Store) GetProjectForAttempt(attemptID string) (*Project, error) {
	row := s.QueryRow(`
		SELECT p.id, p.name, p.setup_script, p.cleanup_script, p.dev_script, p.dev_script_working_dir, p.created_at, p.updated_at
		FROM projects p
		JOIN tasks t ON t.project_id = p.id
		JOIN attempts a ON a.task_id = t.id
		WHERE a.id = ?
	`, attemptID)

	var p Project
	var setupScript, cleanupScript, devScript, devScriptDir sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.Name, &setupScript, &cleanupScript, &devScript, &devScriptDir, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project for attempt %s: %w", attemptID, err)
	}

	p.SetupScript = setupScript.String
	p.CleanupScript = cleanupScript.String
	p.DevScript = devScript.String
	p.DevScriptWorkingDir = devScriptDir.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	return &p, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.Query(`
		SELECT id, name, setup_script, cleanup_script, dev_script, dev_script_working_dir, created_at, updated_at
		FROM projects ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var setupScript, cleanupScript, devScript, devScriptDir sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &setupScript, &cleanupScript, &devScript, &devScriptDir, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.SetupScript = setupScript.String
		p.CleanupScript = cleanupScript.String
		p.DevScript = devScript.String
		p.DevScriptWorkingDir = devScriptDir.String
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// Repo represents a git repository registered in the system. Name is the
// logical directory name used to build worktree paths.
type Repo struct {
	ID          string
	Name        string
	DisplayName string
	Path        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveRepo creates or updates a repo.
func (s *Store) SaveRepo(r *Repo) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.UpdatedAt = time.Now()

	_, err := s.Exec(`
		INSERT INTO repos (id, name, display_name, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			path = excluded.path,
			updated_at = excluded.updated_at
	`, r.ID, r.Name, r.DisplayName, r.Path, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save repo: %w", err)
	}
	return nil
}

// GetRepo retrieves a repo by ID. Returns nil if not found.
func (s *Store) GetRepo(id string) (*Repo, error) {
	row := s.QueryRow(`
		SELECT id, name, display_name, path, created_at, updated_at
		FROM repos WHERE id = ?
	`, id)

	var r Repo
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Path, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get repo %s: %w", id, err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	return &r, nil
}

// ListRepos returns all registered repos.
func (s *Store) ListRepos() ([]Repo, error) {
	rows, err := s.Query(`
		SELECT id, name, display_name, path, created_at, updated_at
		FROM repos ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		var r Repo
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Path, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repos: %w", err)
	}

	return repos, nil
}

// LinkRepoToProject registers a repo under a project with optional
// copy_files globs (comma-separated) applied on worktree creation.
func (s *Store) LinkRepoToProject(projectID, repoID, copyFiles string) error {
	_, err := s.Exec(`
		INSERT INTO project_repos (project_id, repo_id, copy_files)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id, repo_id) DO UPDATE SET
			copy_files = excluded.copy_files
	`, projectID, repoID, copyFiles)
	if err != nil {
		return fmt.Errorf("link repo to project: %w", err)
	}
	return nil
}

// GetCopyFiles returns the copy_files globs configured for a repo within a
// project, or "" when unset.
func (s *Store) GetCopyFiles(projectID, repoID string) (string, error) {
	var copyFiles sql.NullString
	err := s.QueryRow(`
		SELECT copy_files FROM project_repos WHERE project_id = ? AND repo_id = ?
	`, projectID, repoID).Scan(&copyFiles)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get copy files: %w", err)
	}
	return copyFiles.String, nil
}

// ListProjectRepos returns the repos linked to a project.
func (s *Store) ListProjectRepos(projectID string) ([]Repo, error) {
	rows, err := s.Query(`
		SELECT r.id, r.name, r.display_name, r.path, r.created_at, r.updated_at
		FROM repos r
		JOIN project_repos pr ON pr.repo_id = r.id
		WHERE pr.project_id = ?
		ORDER BY r.name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		var r Repo
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Path, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project repo: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project repos: %w", err)
	}

	return repos, nil
}

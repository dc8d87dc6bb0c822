package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunReason categorizes the work an execution process performs.
type RunReason string

const (
	RunSetupScript   RunReason = "setup_script"
	RunCleanupScript RunReason = "cleanup_script"
	RunCodingAgent   RunReason = "coding_agent"
	RunDevServer     RunReason = "dev_server"
)

// ProcessStatus enumerates execution process states.
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
	ProcessKilled    ProcessStatus = "killed"
)

// ExecutionProcess records one spawned run inside an attempt's worktree set.
// Dropped processes are soft-deleted rewind leftovers: the row stays for
// history but the process no longer counts toward the attempt's state.
type ExecutionProcess struct {
	ID             string
	AttemptID      string
	RunReason      RunReason
	ExecutorAction string // JSON-encoded executor action
	Status         ProcessStatus
	SessionID      string
	ExitCode       *int64
	DroppedAt      *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProcessRepoState records a repo's HEAD commit captured immediately before
// a process ran. Rewind restores worktrees to these commits.
type ProcessRepoState struct {
	ProcessID        string
	RepoID           string
	BeforeHeadCommit string
}

// CreateProcess persists a new execution process.
func (s *Store) CreateProcess(p *ExecutionProcess) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProcessRunning
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()

	var sessionID, startedAt any
	if p.SessionID != "" {
		sessionID = p.SessionID
	}
	if p.StartedAt != nil {
		startedAt = formatTime(*p.StartedAt)
	}

	_, err := s.Exec(`
		INSERT INTO execution_processes (id, attempt_id, run_reason, executor_action, status, session_id, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.AttemptID, string(p.RunReason), p.ExecutorAction, string(p.Status),
		sessionID, startedAt, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process by ID. Returns nil if not found.
func (s *Store) GetProcess(id string) (*ExecutionProcess, error) {
	row := s.QueryRow(selectProcess+" WHERE id = ?", id)

	p, err := scanProcessRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get process %s: %w", id, err)
	}
	return p, nil
}

// UpdateProcessStatus finalizes or transitions a process. A terminal status
// also stamps completed_at.
func (s *Store) UpdateProcessStatus(id string, status ProcessStatus, exitCode *int64) error {
	now := formatTime(time.Now())
	var completedAt any
	if status != ProcessRunning {
		completedAt = now
	}
	var code any
	if exitCode != nil {
		code = *exitCode
	}

	_, err := s.Exec(`
		UPDATE execution_processes
		SET status = ?, exit_code = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(status), code, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("update process status: %w", err)
	}
	return nil
}

// UpdateProcessSessionID records the agent session id once it is known.
func (s *Store) UpdateProcessSessionID(id, sessionID string) error {
	_, err := s.Exec(`
		UPDATE execution_processes SET session_id = ?, updated_at = ? WHERE id = ?
	`, sessionID, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update process session id: %w", err)
	}
	return nil
}

// ListProcesses returns non-dropped processes for an attempt in creation
// order.
func (s *Store) ListProcesses(attemptID string) ([]ExecutionProcess, error) {
	rows, err := s.Query(selectProcess+`
		WHERE attempt_id = ? AND dropped_at IS NULL
		ORDER BY created_at, id
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	return collectProcesses(rows)
}

// RunningProcesses returns running, non-dropped processes for an attempt.
// When excludeDevServers is set, dev server processes are filtered out.
func (s *Store) RunningProcesses(attemptID string, excludeDevServers bool) ([]ExecutionProcess, error) {
	query := selectProcess + `
		WHERE attempt_id = ? AND status = ? AND dropped_at IS NULL
	`
	args := []any{attemptID, string(ProcessRunning)}
	if excludeDevServers {
		query += " AND run_reason != ?"
		args = append(args, string(RunDevServer))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("running processes: %w", err)
	}
	defer rows.Close()

	return collectProcesses(rows)
}

// RunningDevServers returns running dev server processes across all attempts
// of a project.
func (s *Store) RunningDevServers(projectID string) ([]ExecutionProcess, error) {
	rows, err := s.Query(selectProcess+`
		WHERE run_reason = ? AND status = ? AND dropped_at IS NULL
		  AND attempt_id IN (
		      SELECT a.id FROM attempts a
		      JOIN tasks t ON a.task_id = t.id
		      WHERE t.project_id = ?
		  )
		ORDER BY created_at, id
	`, string(RunDevServer), string(ProcessRunning), projectID)
	if err != nil {
		return nil, fmt.Errorf("running dev servers: %w", err)
	}
	defer rows.Close()

	return collectProcesses(rows)
}

// LatestCodingAgentProcess returns the most recent non-dropped coding agent
// process for an attempt, or nil when the attempt has none.
func (s *Store) LatestCodingAgentProcess(attemptID string) (*ExecutionProcess, error) {
	row := s.QueryRow(selectProcess+`
		WHERE attempt_id = ? AND run_reason = ? AND dropped_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, attemptID, string(RunCodingAgent))

	p, err := scanProcessRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest coding agent process: %w", err)
	}
	return p, nil
}

// LatestSessionID returns the newest non-empty session id recorded by a
// coding agent run of the attempt, or "" when none exists.
func (s *Store) LatestSessionID(attemptID string) (string, error) {
	var sessionID string
	err := s.QueryRow(`
		SELECT session_id FROM execution_processes
		WHERE attempt_id = ? AND run_reason = ? AND session_id IS NOT NULL AND session_id != '' AND dropped_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, attemptID, string(RunCodingAgent)).Scan(&sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("latest session id: %w", err)
	}
	return sessionID, nil
}

// DropAtAndAfter soft-deletes the given process and every later process of
// the attempt, leaving earlier processes untouched. Ordering follows
// creation time with id as tiebreaker.
func (s *Store) DropAtAndAfter(attemptID, processID string) error {
	_, err := s.Exec(`
		UPDATE execution_processes
		SET dropped_at = ?, updated_at = ?
		WHERE attempt_id = ?
		  AND dropped_at IS NULL
		  AND (created_at > (SELECT created_at FROM execution_processes WHERE id = ?)
		       OR (created_at = (SELECT created_at FROM execution_processes WHERE id = ?) AND id >= ?))
	`, formatTime(time.Now()), formatTime(time.Now()), attemptID, processID, processID, processID)
	if err != nil {
		return fmt.Errorf("drop processes: %w", err)
	}
	return nil
}

// SaveProcessRepoStates records the pre-run HEAD commits for a process.
func (s *Store) SaveProcessRepoStates(states []ProcessRepoState) error {
	for _, st := range states {
		if _, err := s.Exec(`
			INSERT INTO process_repo_states (process_id, repo_id, before_head_commit)
			VALUES (?, ?, ?)
			ON CONFLICT(process_id, repo_id) DO UPDATE SET
				before_head_commit = excluded.before_head_commit
		`, st.ProcessID, st.RepoID, st.BeforeHeadCommit); err != nil {
			return fmt.Errorf("save process repo state: %w", err)
		}
	}
	return nil
}

// GetProcessRepoStates returns the recorded pre-run HEAD commits for a
// process.
func (s *Store) GetProcessRepoStates(processID string) ([]ProcessRepoState, error) {
	rows, err := s.Query(`
		SELECT process_id, repo_id, before_head_commit
		FROM process_repo_states WHERE process_id = ?
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("get process repo states: %w", err)
	}
	defer rows.Close()

	var states []ProcessRepoState
	for rows.Next() {
		var st ProcessRepoState
		if err := rows.Scan(&st.ProcessID, &st.RepoID, &st.BeforeHeadCommit); err != nil {
			return nil, fmt.Errorf("scan process repo state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process repo states: %w", err)
	}

	return states, nil
}

const selectProcess = `
	SELECT id, attempt_id, run_reason, executor_action, status, session_id, exit_code, dropped_at, started_at, completed_at, created_at, updated_at
	FROM execution_processes
`

type processScanner interface {
	Scan(dest ...any) error
}

func scanProcess(sc processScanner) (*ExecutionProcess, error) {
	var p ExecutionProcess
	var runReason, status, createdAt, updatedAt string
	var sessionID, droppedAt, startedAt, completedAt sql.NullString
	var exitCode sql.NullInt64

	if err := sc.Scan(&p.ID, &p.AttemptID, &runReason, &p.ExecutorAction, &status,
		&sessionID, &exitCode, &droppedAt, &startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.RunReason = RunReason(runReason)
	p.Status = ProcessStatus(status)
	p.SessionID = sessionID.String
	if exitCode.Valid {
		code := exitCode.Int64
		p.ExitCode = &code
	}
	if droppedAt.Valid {
		ts := parseTime(droppedAt.String)
		p.DroppedAt = &ts
	}
	if startedAt.Valid {
		ts := parseTime(startedAt.String)
		p.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := parseTime(completedAt.String)
		p.CompletedAt = &ts
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	return &p, nil
}

func scanProcessRow(row *sql.Row) (*ExecutionProcess, error) {
	return scanProcess(row)
}

func collectProcesses(rows *sql.Rows) ([]ExecutionProcess, error) {
	var processes []ExecutionProcess
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		processes = append(processes, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}
	return processes, nil
}

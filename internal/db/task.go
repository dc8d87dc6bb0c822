package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "inprogress"
	TaskInReview   TaskStatus = "inreview"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task represents a unit of work owning zero or more attempts. A successful
// merge advances the task to done.
type Task struct {
	ID            string
	ProjectID     string
	Title         string
	Description   string
	Status        TaskStatus
	ParentAttempt string // attempt this task was chained off, if any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SaveTask creates or updates a task.
func (s *Store) SaveTask(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = time.Now()

	var parent any
	if t.ParentAttempt != "" {
		parent = t.ParentAttempt
	}

	_, err := s.Exec(`
		INSERT INTO tasks (id, project_id, title, description, status, parent_attempt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			parent_attempt = excluded.parent_attempt,
			updated_at = excluded.updated_at
	`, t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), parent,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.QueryRow(`
		SELECT id, project_id, title, description, status, parent_attempt, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTaskStatus sets a task's status.
func (s *Store) UpdateTaskStatus(id string, status TaskStatus) error {
	_, err := s.Exec(`
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// DeleteTask removes a task after detaching any children that point at its
// attempts. Nulling the parent pointers first keeps child tasks valid once
// the attempts cascade away.
func (s *Store) DeleteTask(id string) error {
	_, err := s.Exec(`
		UPDATE tasks SET parent_attempt = NULL
		WHERE parent_attempt IN (SELECT id FROM attempts WHERE task_id = ?)
	`, id)
	if err != nil {
		return fmt.Errorf("detach child tasks: %w", err)
	}

	if _, err := s.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListTasks returns tasks for a project ordered by creation time descending.
func (s *Store) ListTasks(projectID string) ([]Task, error) {
	rows, err := s.Query(`
		SELECT id, project_id, title, description, status, parent_attempt, created_at, updated_at
		FROM tasks WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	var description, parentAttempt sql.NullString
	var status, createdAt, updatedAt string

	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &status, &parentAttempt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Status = TaskStatus(status)
	t.ParentAttempt = parentAttempt.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanTaskRows(rows *sql.Rows) (*Task, error) {
	var t Task
	var description, parentAttempt sql.NullString
	var status, createdAt, updatedAt string

	if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &status, &parentAttempt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Status = TaskStatus(status)
	t.ParentAttempt = parentAttempt.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

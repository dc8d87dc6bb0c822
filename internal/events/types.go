// Package events provides event types and publishing infrastructure for greenroom.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventAttemptCreated indicates a new attempt was persisted.
	EventAttemptCreated EventType = "attempt_created"
	// EventFollowUp indicates a follow-up was dispatched to an attempt.
	EventFollowUp EventType = "follow_up"
	// EventProcessStarted indicates an execution process began running.
	EventProcessStarted EventType = "process_started"
	// EventProcessFinished indicates an execution process completed, failed,
	// or was killed.
	EventProcessFinished EventType = "process_finished"
	// EventMerged indicates an attempt branch was merged into its target.
	EventMerged EventType = "merged"
	// EventPushed indicates an attempt branch was pushed to the remote.
	EventPushed EventType = "pushed"
	// EventRebased indicates an attempt branch was rebased onto a new base.
	EventRebased EventType = "rebased"
	// EventBranchRenamed indicates an attempt branch was renamed across repos.
	EventBranchRenamed EventType = "branch_renamed"
	// EventPRAttached indicates a pull request was linked to an attempt repo.
	EventPRAttached EventType = "pr_attached"
	// EventPRStatusChanged indicates a tracked PR moved between open,
	// merged, and closed.
	EventPRStatusChanged EventType = "pr_status_changed"
	// EventError indicates a non-fatal background failure.
	EventError EventType = "error"
)

// Event represents a published event, scoped to one attempt.
type Event struct {
	Type      EventType `json:"type"`
	AttemptID string    `json:"attempt_id"`
	Data      any       `json:"data"`
	Time      time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, attemptID string, data any) Event {
	return Event{
		Type:      eventType,
		AttemptID: attemptID,
		Data:      data,
		Time:      time.Now(),
	}
}

// ProcessUpdate carries process lifecycle data.
type ProcessUpdate struct {
	ProcessID string `json:"process_id"`
	RunReason string `json:"run_reason"`
	Status    string `json:"status"`
	ExitCode  *int64 `json:"exit_code,omitempty"`
}

// MergeData carries merge outcome data.
type MergeData struct {
	RepoID       string `json:"repo_id"`
	TargetBranch string `json:"target_branch"`
	MergeCommit  string `json:"merge_commit,omitempty"`
	PRNumber     int64  `json:"pr_number,omitempty"`
}

// RenameData carries branch rename outcome data.
type RenameData struct {
	OldBranch       string `json:"old_branch"`
	NewBranch       string `json:"new_branch"`
	ChildrenUpdated int64  `json:"children_updated"`
	ReposRenamed    int    `json:"repos_renamed"`
}

// ErrorData represents a background failure surfaced as an event.
type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ScratchKindDraftFollowUp is the scratch slot holding a queued follow-up
// message not yet dispatched.
const ScratchKindDraftFollowUp = "draft_follow_up"

// Scratch is per-attempt keyed ephemeral state, such as a draft follow-up
// prompt. One payload per (attempt, kind).
type Scratch struct {
	AttemptID string
	Kind      string
	Payload   string // JSON
	UpdatedAt time.Time
}

// UpsertScratch stores or replaces a scratch payload.
func (s *Store) UpsertScratch(attemptID, kind, payload string) error {
	_, err := s.Exec(`
		INSERT INTO scratch (attempt_id, kind, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(attempt_id, kind) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, attemptID, kind, payload, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert scratch: %w", err)
	}
	return nil
}

// GetScratch returns a scratch payload, or nil when the slot is empty.
func (s *Store) GetScratch(attemptID, kind string) (*Scratch, error) {
	row := s.QueryRow(`
		SELECT attempt_id, kind, payload, updated_at
		FROM scratch WHERE attempt_id = ? AND kind = ?
	`, attemptID, kind)

	var sc Scratch
	var updatedAt string
	if err := row.Scan(&sc.AttemptID, &sc.Kind, &sc.Payload, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get scratch: %w", err)
	}
	sc.UpdatedAt = parseTime(updatedAt)

	return &sc, nil
}

// DeleteScratch clears a scratch slot. Deleting an empty slot is a no-op.
func (s *Store) DeleteScratch(attemptID, kind string) error {
	_, err := s.Exec(`
		DELETE FROM scratch WHERE attempt_id = ? AND kind = ?
	`, attemptID, kind)
	if err != nil {
		return fmt.Errorf("delete scratch: %w", err)
	}
	return nil
}

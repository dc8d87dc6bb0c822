package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MergeType distinguishes direct local merges from tracked pull requests.
type MergeType string

const (
	MergeDirect MergeType = "direct"
	MergePR     MergeType = "pr"
)

// PRStatus tracks the lifecycle of a pull request merge record.
type PRStatus string

const (
	PROpen   PRStatus = "open"
	PRMerged PRStatus = "merged"
	PRClosed PRStatus = "closed"
)

// Merge records that an attempt's branch was integrated into a target branch
// for one repo. Rows are append-only history; the latest row per
// (attempt, repo) determines whether an open PR exists.
type Merge struct {
	ID           string
	AttemptID    string
	RepoID       string
	MergeType    MergeType
	MergeCommit  string
	PRNumber     int64
	PRURL        string
	PRStatus     PRStatus
	TargetBranch string
	CreatedAt    time.Time
}

// CreateDirectMerge records a local merge commit.
func (s *Store) CreateDirectMerge(attemptID, repoID, mergeCommit, targetBranch string) (*Merge, error) {
	m := &Merge{
		ID:           uuid.NewString(),
		AttemptID:    attemptID,
		RepoID:       repoID,
		MergeType:    MergeDirect,
		MergeCommit:  mergeCommit,
		TargetBranch: targetBranch,
		CreatedAt:    time.Now(),
	}

	_, err := s.Exec(`
		INSERT INTO merges (id, attempt_id, repo_id, merge_type, merge_commit, target_branch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.AttemptID, m.RepoID, string(m.MergeType), m.MergeCommit, m.TargetBranch, formatTime(m.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create direct merge: %w", err)
	}
	return m, nil
}

// CreatePRMerge records a tracked pull request.
func (s *Store) CreatePRMerge(attemptID, repoID string, prNumber int64, prURL, targetBranch string) (*Merge, error) {
	m := &Merge{
		ID:           uuid.NewString(),
		AttemptID:    attemptID,
		RepoID:       repoID,
		MergeType:    MergePR,
		PRNumber:     prNumber,
		PRURL:        prURL,
		PRStatus:     PROpen,
		TargetBranch: targetBranch,
		CreatedAt:    time.Now(),
	}

	_, err := s.Exec(`
		INSERT INTO merges (id, attempt_id, repo_id, merge_type, pr_number, pr_url, pr_status, target_branch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.AttemptID, m.RepoID, string(m.MergeType), m.PRNumber, m.PRURL, string(m.PRStatus),
		m.TargetBranch, formatTime(m.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create pr merge: %w", err)
	}
	return m, nil
}

// UpdatePRStatus transitions a PR merge record and stamps the merge commit
// when the PR landed.
func (s *Store) UpdatePRStatus(mergeID string, status PRStatus, mergeCommit string) error {
	var commit any
	if mergeCommit != "" {
		commit = mergeCommit
	}
	_, err := s.Exec(`
		UPDATE merges SET pr_status = ?, merge_commit = COALESCE(?, merge_commit) WHERE id = ?
	`, string(status), commit, mergeID)
	if err != nil {
		return fmt.Errorf("update pr status: %w", err)
	}
	return nil
}

// LatestMergeForRepo returns the newest merge record for an (attempt, repo)
// pair, or nil when the attempt was never merged there.
func (s *Store) LatestMergeForRepo(attemptID, repoID string) (*Merge, error) {
	row := s.QueryRow(selectMerge+`
		WHERE attempt_id = ? AND repo_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, attemptID, repoID)

	m, err := scanMerge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest merge for repo: %w", err)
	}
	return m, nil
}

// ListMerges returns all merge records for an attempt, newest first.
func (s *Store) ListMerges(attemptID string) ([]Merge, error) {
	rows, err := s.Query(selectMerge+`
		WHERE attempt_id = ?
		ORDER BY created_at DESC, id DESC
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list merges: %w", err)
	}
	defer rows.Close()

	return collectMerges(rows)
}

// HasOpenPR reports whether the latest merge of any repo linked to the
// attempt is an open pull request.
func (s *Store) HasOpenPR(attemptID string) (bool, error) {
	var count int
	err := s.QueryRow(`
		SELECT COUNT(*) FROM merges m
		WHERE m.attempt_id = ?
		  AND m.merge_type = ?
		  AND m.pr_status = ?
		  AND m.created_at = (
		      SELECT MAX(m2.created_at) FROM merges m2
		      WHERE m2.attempt_id = m.attempt_id AND m2.repo_id = m.repo_id
		  )
	`, attemptID, string(MergePR), string(PROpen)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has open pr: %w", err)
	}
	return count > 0, nil
}

// ListOpenPRMerges returns every open PR merge record across all attempts,
// for the background PR status poller.
func (s *Store) ListOpenPRMerges() ([]Merge, error) {
	rows, err := s.Query(selectMerge+`
		WHERE merge_type = ? AND pr_status = ?
		ORDER BY created_at
	`, string(MergePR), string(PROpen))
	if err != nil {
		return nil, fmt.Errorf("list open pr merges: %w", err)
	}
	defer rows.Close()

	return collectMerges(rows)
}

const selectMerge = `
	SELECT id, attempt_id, repo_id, merge_type, merge_commit, pr_number, pr_url, pr_status, target_branch, created_at
	FROM merges
`

func scanMerge(sc processScanner) (*Merge, error) {
	var m Merge
	var mergeType, createdAt string
	var mergeCommit, prURL, prStatus sql.NullString
	var prNumber sql.NullInt64

	if err := sc.Scan(&m.ID, &m.AttemptID, &m.RepoID, &mergeType, &mergeCommit,
		&prNumber, &prURL, &prStatus, &m.TargetBranch, &createdAt); err != nil {
		return nil, err
	}

	m.MergeType = MergeType(mergeType)
	m.MergeCommit = mergeCommit.String
	m.PRNumber = prNumber.Int64
	m.PRURL = prURL.String
	m.PRStatus = PRStatus(prStatus.String)
	m.CreatedAt = parseTime(createdAt)

	return &m, nil
}

func collectMerges(rows *sql.Rows) ([]Merge, error) {
	var merges []Merge
	for rows.Next() {
		m, err := scanMerge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		merges = append(merges, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merges: %w", err)
	}
	return merges, nil
}

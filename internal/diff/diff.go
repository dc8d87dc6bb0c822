// Package diff computes and streams the changes an attempt has made in a
// worktree relative to its target branch.
package diff

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Stats summarizes a diff.
type Stats struct {
	FilesChanged int `json:"files_changed"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

// FileDiff represents changes to a single file.
type FileDiff struct {
	Path      string `json:"path"`
	Status    string `json:"status"`             // modified, added, deleted, renamed, copied
	OldPath   string `json:"old_path,omitempty"` // for renames and copies
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Binary    bool   `json:"binary"`
	Hunks     []Hunk `json:"hunks,omitempty"`
}

// Hunk is a contiguous block of changed lines.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Lines    []Line `json:"lines"`
}

// Line is a single diff line.
type Line struct {
	Type    string `json:"type"` // context, addition, deletion
	Content string `json:"content"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Snapshot is the full diff of a worktree against its base at one moment.
type Snapshot struct {
	BaseCommit string     `json:"base_commit"`
	Stats      Stats      `json:"stats"`
	Files      []FileDiff `json:"files"`
}

// Service computes worktree diffs. Diffs always run from the merge base of
// the target branch and HEAD through the working tree, so uncommitted agent
// edits show up and commits landing on the target afterwards do not bleed
// in as reverse changes.
type Service struct {
	cache *Cache
}

// NewService creates a diff service. cache may be nil to disable caching.
func NewService(cache *Cache) *Service {
	return &Service{cache: cache}
}

// gitOutput runs a git command in dir and returns raw stdout.
func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// MergeBase resolves the common ancestor of the target branch and HEAD.
func (s *Service) MergeBase(ctx context.Context, worktreePath, targetBranch string) (string, error) {
	out, err := gitOutput(ctx, worktreePath, "merge-base", targetBranch, "HEAD")
	if err != nil {
		return "", fmt.Errorf("merge-base %s: %w", targetBranch, err)
	}
	return strings.TrimSpace(out), nil
}

// GetStats returns summary statistics for the worktree against base.
func (s *Service) GetStats(ctx context.Context, worktreePath, base string) (*Stats, error) {
	out, err := gitOutput(ctx, worktreePath, "diff", "--shortstat", base, "--")
	if err != nil {
		return nil, err
	}
	return parseShortstat(out), nil
}

// GetFileList returns the changed files without hunk content.
func (s *Service) GetFileList(ctx context.Context, worktreePath, base string) ([]FileDiff, error) {
	numstat, err := gitOutput(ctx, worktreePath, "diff", "--numstat", "-M", base, "--")
	if err != nil {
		return nil, err
	}
	nameStatus, err := gitOutput(ctx, worktreePath, "diff", "--name-status", "-M", base, "--")
	if err != nil {
		return nil, err
	}

	files := parseNumstat(numstat)
	applyNameStatus(files, nameStatus)

	// Untracked files never appear in git diff output. Report them as
	// added so the stream reflects files the agent created but has not
	// committed yet.
	untracked, err := gitOutput(ctx, worktreePath, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	for _, path := range strings.Split(strings.TrimSpace(untracked), "\n") {
		if path == "" {
			continue
		}
		files = append(files, FileDiff{Path: path, Status: "added"})
	}

	if files == nil {
		files = []FileDiff{}
	}
	return files, nil
}

// GetFileDiff returns the hunks for a single file. Results keyed by base
// commit and path are cached; working-tree content changes move HEAD or the
// file's mtime, and the streamer recomputes on those, so stale entries are
// displaced by Invalidate rather than TTLs.
func (s *Service) GetFileDiff(ctx context.Context, worktreePath, base, filePath string) (*FileDiff, error) {
	cacheKey := base + ":" + filePath
	if s.cache != nil {
		if cached := s.cache.Get(cacheKey); cached != nil {
			return cached, nil
		}
	}

	out, err := gitOutput(ctx, worktreePath, "diff", "--histogram", "-U3", base, "--", filePath)
	if err != nil {
		return nil, err
	}
	fd := parseUnified(out, filePath)

	if s.cache != nil {
		s.cache.Set(cacheKey, fd)
	}
	return fd, nil
}

// GetSnapshot computes the complete diff. When statsOnly is true, hunks are
// omitted and only per-file counts and summary stats are returned.
func (s *Service) GetSnapshot(ctx context.Context, worktreePath, targetBranch string, statsOnly bool) (*Snapshot, error) {
	base, err := s.MergeBase(ctx, worktreePath, targetBranch)
	if err != nil {
		return nil, err
	}

	stats, err := s.GetStats(ctx, worktreePath, base)
	if err != nil {
		return nil, err
	}
	files, err := s.GetFileList(ctx, worktreePath, base)
	if err != nil {
		return nil, err
	}

	if !statsOnly {
		for i := range files {
			if files[i].Binary || files[i].Status == "deleted" {
				continue
			}
			fd, err := s.GetFileDiff(ctx, worktreePath, base, files[i].Path)
			if err != nil {
				continue
			}
			if fd.Binary {
				files[i].Binary = true
				continue
			}
			files[i].Hunks = fd.Hunks
		}
	}

	return &Snapshot{
		BaseCommit: base,
		Stats:      *stats,
		Files:      files,
	}, nil
}

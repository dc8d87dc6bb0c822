// Package git wraps git plumbing for worktree, branch, and integration
// operations on registered repositories.
package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxBranchNameLength is the maximum allowed length for branch names.
const MaxBranchNameLength = 256

// DefaultBranchPrefix namespaces branches created for attempts.
const DefaultBranchPrefix = "gr/"

// ErrInvalidBranchName indicates a branch name failed validation.
var ErrInvalidBranchName = errors.New("invalid branch name")

// branchNamePattern validates branch names: alphanumeric, slash, hyphen,
// underscore, dot. Must start with alphanumeric.
var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName validates a branch name against git ref-format rules.
// Returns an error describing the failure, or nil if valid.
//
// Rules:
//   - Must not be empty or exceed MaxBranchNameLength characters
//   - Must start with an alphanumeric character
//   - May only contain: a-z, A-Z, 0-9, /, -, _, .
//   - Must not contain '..', '//', '@{', or be 'HEAD' / '@'
//   - Must not end with '.lock', '.', or '/'
//   - Path components must not start or end with '.'
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidBranchName)
	}
	if len(name) > MaxBranchNameLength {
		return fmt.Errorf("%w: exceeds maximum length of %d characters", ErrInvalidBranchName, MaxBranchNameLength)
	}
	if strings.EqualFold(name, "head") {
		return fmt.Errorf("%w: '%s' is a reserved name", ErrInvalidBranchName, name)
	}
	if strings.Contains(name, "@{") {
		return fmt.Errorf("%w: cannot contain '@{' (git revision syntax)", ErrInvalidBranchName)
	}
	if name == "@" {
		return fmt.Errorf("%w: '@' alone is not allowed (it's shorthand for HEAD)", ErrInvalidBranchName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: cannot contain '..'", ErrInvalidBranchName)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: cannot end with '.lock'", ErrInvalidBranchName)
	}
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: cannot end with '.'", ErrInvalidBranchName)
	}
	if strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: cannot end with '/'", ErrInvalidBranchName)
	}
	if strings.Contains(name, "//") {
		return fmt.Errorf("%w: cannot contain '//'", ErrInvalidBranchName)
	}
	if strings.Contains(name, "/.") {
		return fmt.Errorf("%w: path components cannot start with '.'", ErrInvalidBranchName)
	}
	if strings.Contains(name, "./") {
		return fmt.Errorf("%w: path components cannot end with '.'", ErrInvalidBranchName)
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("%w: contains invalid characters (allowed: a-z, A-Z, 0-9, /, -, _, .)", ErrInvalidBranchName)
	}
	return nil
}

// maxSlugLength bounds the title-derived portion of generated branch names.
const maxSlugLength = 40

// BranchNameForAttempt derives a deterministic, git-safe branch name from a
// task title and attempt id, e.g. "gr/fix-login-flow-3f2a9c1d".
func BranchNameForAttempt(title, attemptID string) string {
	slug := slugify(title)
	short := ShortID(attemptID)
	if slug == "" {
		return DefaultBranchPrefix + short
	}
	return DefaultBranchPrefix + slug + "-" + short
}

// ShortID returns the first 8 characters of an id, for use in branch names
// and commit messages.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

var (
	nonSlugChars    = regexp.MustCompile(`[^a-z0-9]+`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

func slugify(s string) string {
	slug := strings.ToLower(s)
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = repeatedHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	return slug
}

// SanitizeWorktreeName converts a branch name to a safe directory name.
func SanitizeWorktreeName(branch string) string {
	safe := strings.ReplaceAll(branch, "/", "-")
	safe = strings.ToLower(safe)
	safe = nonSlugChars.ReplaceAllString(safe, "-")
	safe = repeatedHyphens.ReplaceAllString(safe, "-")
	return strings.Trim(safe, "-")
}

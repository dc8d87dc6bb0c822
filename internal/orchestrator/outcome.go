package orchestrator

// BusinessError is an operation outcome the client must branch on: the
// request was well-formed but the current repository or process state blocks
// it. The API layer returns these as HTTP 200 with a typed error_data
// payload rather than an error status.
type BusinessError struct {
	// Type is the error_data discriminator, e.g. "merge_conflicts".
	Type string `json:"type"`
	// Message carries operator-facing detail when the variant has any.
	Message string `json:"message,omitempty"`
	// Op distinguishes merge from rebase conflicts.
	Op string `json:"op,omitempty"`
	// RepoName names the repo that blocked a multi-repo operation.
	RepoName string `json:"repo_name,omitempty"`
}

func (e *BusinessError) Error() string {
	if e.Message != "" {
		return e.Type + ": " + e.Message
	}
	return e.Type
}

func errForcePushRequired() *BusinessError {
	return &BusinessError{
		Type:    "force_push_required",
		Message: "the remote rejected the push; retry with force to overwrite",
	}
}

func errMergeConflicts(message, op string) *BusinessError {
	return &BusinessError{Type: "merge_conflicts", Message: message, Op: op}
}

func errRebaseInProgress(repoName string) *BusinessError {
	return &BusinessError{
		Type:     "rebase_in_progress",
		Message:  "a rebase is already in progress; resolve or abort it first",
		RepoName: repoName,
	}
}

func errBranchAlreadyExists(repoName string) *BusinessError {
	return &BusinessError{
		Type:     "branch_already_exists",
		Message:  "a branch with that name already exists",
		RepoName: repoName,
	}
}

func errRenameFailed(repoName, message string) *BusinessError {
	return &BusinessError{Type: "rename_failed", Message: message, RepoName: repoName}
}

func errOpenPullRequest() *BusinessError {
	return &BusinessError{
		Type:    "open_pull_request",
		Message: "the attempt has an open pull request; close it before renaming",
	}
}

func errEmptyBranchName() *BusinessError {
	return &BusinessError{Type: "empty_branch_name", Message: "branch name must not be empty"}
}

func errInvalidBranchNameFormat(message string) *BusinessError {
	return &BusinessError{Type: "invalid_branch_name_format", Message: message}
}

func errProcessAlreadyRunning() *BusinessError {
	return &BusinessError{
		Type:    "process_already_running",
		Message: "another process is already running for this attempt",
	}
}

func errNoScriptConfigured(script string) *BusinessError {
	return &BusinessError{
		Type:    "no_script_configured",
		Message: "the project has no " + script + " configured",
	}
}

func errBranchDoesNotExist(branch string) *BusinessError {
	return &BusinessError{
		Type:    "branch_does_not_exist",
		Message: "branch " + branch + " does not exist locally or on the remote",
	}
}

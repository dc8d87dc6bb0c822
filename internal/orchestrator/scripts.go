package orchestrator

import (
	"context"

	"github.com/greenroomhq/greenroom/internal/db"
	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/executor"
)

// RunSetupScript dispatches the project's setup script into the attempt's
// worktrees. Returns a business outcome when no setup script is configured
// or another non-dev-server process is running.
func (o *Orchestrator) RunSetupScript(ctx context.Context, attemptID string) (*db.ExecutionProcess, error) {
	return o.runScript(ctx, attemptID, executor.ScriptContextSetup)
}

// RunCleanupScript dispatches the project's cleanup script.
func (o *Orchestrator) RunCleanupScript(ctx context.Context, attemptID string) (*db.ExecutionProcess, error) {
	return o.runScript(ctx, attemptID, executor.ScriptContextCleanup)
}

func (o *Orchestrator) runScript(ctx context.Context, attemptID string, scriptCtx executor.ScriptContext) (*db.ExecutionProcess, error) {
	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	running, err := o.store.RunningProcesses(attemptID, true)
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return nil, errProcessAlreadyRunning()
	}

	project, err := o.store.GetProjectForAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperrors.ErrProjectNotFound("for attempt " + attemptID)
	}
	var script, label string
	switch scriptCtx {
	case executor.ScriptContextSetup:
		script, label = project.SetupScript, "setup script"
	case executor.ScriptContextCleanup:
		script, label = project.CleanupScript, "cleanup script"
	}
	if script == "" {
		return nil, errNoScriptConfigured(label)
	}

	return o.container.StartProcess(ctx, attempt, executor.NewScriptAction(script, scriptCtx))
}

// StartDevServer starts the project's dev server for this attempt. At most
// one dev server runs per project: any dev server already running for a
// sibling attempt is killed first.
func (o *Orchestrator) StartDevServer(ctx context.Context, attemptID string) (*db.ExecutionProcess, error) {
	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	project, err := o.store.GetProjectForAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperrors.ErrProjectNotFound("for attempt " + attemptID)
	}
	if project.DevScript == "" {
		return nil, errNoScriptConfigured("dev server script")
	}

	servers, err := o.store.RunningDevServers(project.ID)
	if err != nil {
		return nil, err
	}
	for _, server := range servers {
		if err := o.container.StopProcess(ctx, server.ID); err != nil {
			return nil, err
		}
	}

	script := project.DevScript
	if project.DevScriptWorkingDir != "" {
		// The working dir is relative to the worktree the script runs in.
		script = "cd " + project.DevScriptWorkingDir + " && " + script
	}
	return o.container.StartProcess(ctx, attempt, executor.NewScriptAction(script, executor.ScriptContextDevServer))
}

// Stop kills an attempt's running processes, dev servers excepted. Dev
// servers stop when a sibling attempt claims the project slot, on merge, or
// on attempt cleanup.
func (o *Orchestrator) Stop(ctx context.Context, attemptID string) error {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return err
	}
	return o.container.TryStop(ctx, attemptID, true)
}

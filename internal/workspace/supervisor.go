package workspace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/executor"
)

// processHandle tracks a live process owned by this container instance.
type processHandle struct {
	id     string
	cmd    *exec.Cmd
	killed bool
	done   chan struct{}
}

// StartProcess materializes the attempt's worktrees, records each repo's HEAD
// for later rewind, and spawns the action's command in the attempt workspace.
// The returned process row is already persisted with status running; a
// supervising goroutine updates it when the process exits and dispatches the
// action's follow-on action on success.
func (c *Container) StartProcess(ctx context.Context, attempt *db.Attempt, action *executor.Action) (*db.ExecutionProcess, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if err := c.EnsureWorktrees(ctx, attempt); err != nil {
		return nil, err
	}

	repos, err := c.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		return nil, err
	}

	spec, err := executor.CommandForAction(action)
	if err != nil {
		return nil, err
	}
	raw, err := action.Marshal()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	process := &db.ExecutionProcess{
		AttemptID:      attempt.ID,
		RunReason:      runReasonForAction(action),
		ExecutorAction: raw,
		Status:         db.ProcessRunning,
		StartedAt:      &now,
	}
	if err := c.store.CreateProcess(process); err != nil {
		return nil, err
	}

	states := make([]db.ProcessRepoState, 0, len(repos))
	for _, info := range repos {
		wtPath := c.WorktreePath(attempt.ID, info.Repo.Name)
		head, err := c.git.HeadCommit(wtPath, "")
		if err != nil {
			c.failProcess(process, fmt.Errorf("capture head of %s: %w", info.Repo.Name, err))
			return nil, err
		}
		states = append(states, db.ProcessRepoState{
			ProcessID:        process.ID,
			RepoID:           info.Repo.ID,
			BeforeHeadCommit: head,
		})
	}
	if err := c.store.SaveProcessRepoStates(states); err != nil {
		c.failProcess(process, err)
		return nil, err
	}

	// Scripts and agents run in the first worktree; repos come back
	// ordered by name so the choice is stable across restarts.
	workDir := c.WorktreePath(attempt.ID, repos[0].Repo.Name)

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.failProcess(process, err)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		c.failProcess(process, err)
		return nil, fmt.Errorf("start %s: %w", spec.Program, err)
	}

	handle := &processHandle{id: process.ID, cmd: cmd, done: make(chan struct{})}
	c.mu.Lock()
	c.running[process.ID] = handle
	c.mu.Unlock()

	c.events.Publish(events.NewEvent(events.EventProcessStarted, attempt.ID, events.ProcessUpdate{
		ProcessID: process.ID,
		RunReason: string(process.RunReason),
		Status:    string(db.ProcessRunning),
	}))

	extract := executor.SessionExtractorForAction(action)
	go c.supervise(attempt, process, action, handle, stdout, extract)

	return process, nil
}

// supervise drains the process output, captures the agent session id from
// the first line that carries one, and settles the process row on exit.
func (c *Container) supervise(attempt *db.Attempt, process *db.ExecutionProcess, action *executor.Action, handle *processHandle, stdout io.Reader, extract func([]byte) string) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sessionFound := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if extract != nil && !sessionFound {
			if sid := extract(line); sid != "" {
				sessionFound = true
				if err := c.store.UpdateProcessSessionID(process.ID, sid); err != nil {
					c.logger.Warn("persist session id failed", "process", process.ID, "error", err)
				}
			}
		}
		c.logger.Debug("process output", "process", process.ID, "line", string(line))
	}

	err := handle.cmd.Wait()

	c.mu.Lock()
	killed := handle.killed
	delete(c.running, process.ID)
	c.mu.Unlock()

	var exitCode int64
	status := db.ProcessCompleted
	switch {
	case killed:
		status = db.ProcessKilled
		exitCode = int64(handle.cmd.ProcessState.ExitCode())
	case err != nil:
		status = db.ProcessFailed
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = int64(exitErr.ExitCode())
		} else {
			exitCode = -1
		}
	}
	if updateErr := c.store.UpdateProcessStatus(process.ID, status, &exitCode); updateErr != nil {
		c.logger.Error("update process status failed", "process", process.ID, "error", updateErr)
	}

	c.events.Publish(events.NewEvent(events.EventProcessFinished, attempt.ID, events.ProcessUpdate{
		ProcessID: process.ID,
		RunReason: string(process.RunReason),
		Status:    string(status),
		ExitCode:  &exitCode,
	}))

	// Waiters observe the settled row; the chained action runs after.
	close(handle.done)

	if status == db.ProcessCompleted && action.NextAction != nil {
		if _, nextErr := c.StartProcess(context.Background(), attempt, action.NextAction); nextErr != nil {
			c.logger.Error("dispatch next action failed", "attempt", attempt.ID, "error", nextErr)
			c.events.Publish(events.NewEvent(events.EventError, attempt.ID, events.ErrorData{
				Op:      "next_action",
				Message: nextErr.Error(),
			}))
		}
	}
}

// failProcess settles a process row that never reached a successful start.
func (c *Container) failProcess(process *db.ExecutionProcess, cause error) {
	c.logger.Error("process startup failed", "process", process.ID, "error", cause)
	code := int64(-1)
	if err := c.store.UpdateProcessStatus(process.ID, db.ProcessFailed, &code); err != nil {
		c.logger.Error("update process status failed", "process", process.ID, "error", err)
	}
}

// StopProcess kills a single running process by id. Processes not owned by
// this container instance (stale rows after a restart) are settled directly
// in the store.
func (c *Container) StopProcess(ctx context.Context, processID string) error {
	c.mu.Lock()
	handle, ok := c.running[processID]
	if ok {
		handle.killed = true
	}
	c.mu.Unlock()

	if !ok {
		process, err := c.store.GetProcess(processID)
		if err != nil {
			return err
		}
		if process == nil || process.Status != db.ProcessRunning {
			return nil
		}
		return c.store.UpdateProcessStatus(processID, db.ProcessKilled, nil)
	}

	if err := killProcessGroup(handle.cmd.Process.Pid); err != nil {
		return fmt.Errorf("kill process group: %w", err)
	}
	select {
	case <-handle.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// TryStop kills every running process of an attempt. With excludeDevServers
// set, dev servers keep running; used before follow-ups so a live preview
// survives the next agent run.
func (c *Container) TryStop(ctx context.Context, attemptID string, excludeDevServers bool) error {
	processes, err := c.store.RunningProcesses(attemptID, excludeDevServers)
	if err != nil {
		return err
	}
	for _, p := range processes {
		if err := c.StopProcess(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning reports whether this container instance currently owns a live
// process with the given id.
func (c *Container) IsRunning(processID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[processID]
	return ok
}

// WaitForProcess blocks until the process exits or the context is done.
// Returns immediately for processes this instance does not own.
func (c *Container) WaitForProcess(ctx context.Context, processID string) error {
	c.mu.Lock()
	handle, ok := c.running[processID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runReasonForAction(action *executor.Action) db.RunReason {
	switch action.Type {
	case executor.ActionScript:
		switch action.Script.Context {
		case executor.ScriptContextSetup:
			return db.RunSetupScript
		case executor.ScriptContextCleanup:
			return db.RunCleanupScript
		case executor.ScriptContextDevServer:
			return db.RunDevServer
		}
	}
	return db.RunCodingAgent
}

package executor

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// CommandSpec is an agent invocation ready for the process supervisor: the
// program, its arguments, and extra environment entries in KEY=VALUE form.
type CommandSpec struct {
	Program string
	Args    []string
	Env     []string
}

// Agent turns coding-agent actions into CLI invocations and knows how to
// recover the conversation session id from the agent's streamed output.
type Agent interface {
	// Name is the executor profile name this agent serves.
	Name() string
	// InitialCommand builds the invocation for a fresh conversation.
	InitialCommand(req *CodingAgentInitialRequest) (*CommandSpec, error)
	// FollowUpCommand builds the invocation continuing a session.
	FollowUpCommand(req *CodingAgentFollowUpRequest) (*CommandSpec, error)
	// SessionIDFromLine extracts the session id from one line of agent
	// output, returning "" when the line carries none.
	SessionIDFromLine(line []byte) string
}

// agents is the registry of supported executor profiles.
var agents = map[string]Agent{
	"claude": &claudeAgent{},
	"codex":  &codexAgent{},
}

// ResolveAgent returns the agent for an executor profile.
func ResolveAgent(profile Profile) (Agent, error) {
	agent, ok := agents[profile.Executor]
	if !ok {
		return nil, fmt.Errorf("unknown executor profile %q", profile.Executor)
	}
	return agent, nil
}

// AgentNames lists the registered executor profiles.
func AgentNames() []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	return names
}

// claudeAgent drives the Claude CLI in headless streaming mode. Each output
// line is a JSON object; the init message carries the session id.
type claudeAgent struct{}

func (a *claudeAgent) Name() string { return "claude" }

func (a *claudeAgent) baseArgs(variant string) []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if variant != "" {
		args = append(args, "--model", variant)
	}
	return args
}

func (a *claudeAgent) InitialCommand(req *CodingAgentInitialRequest) (*CommandSpec, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("claude: empty prompt")
	}
	args := append(a.baseArgs(req.Profile.Variant), req.Prompt)
	return &CommandSpec{Program: "claude", Args: args}, nil
}

func (a *claudeAgent) FollowUpCommand(req *CodingAgentFollowUpRequest) (*CommandSpec, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("claude: follow-up without session id")
	}
	args := append(a.baseArgs(req.Profile.Variant), "--resume", req.SessionID, req.Prompt)
	return &CommandSpec{Program: "claude", Args: args}, nil
}

func (a *claudeAgent) SessionIDFromLine(line []byte) string {
	return gjson.GetBytes(line, "session_id").String()
}

// codexAgent drives the Codex CLI in non-interactive JSON mode. Session
// (thread) ids arrive on the thread.started event.
type codexAgent struct{}

func (a *codexAgent) Name() string { return "codex" }

func (a *codexAgent) baseArgs(variant string) []string {
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if variant != "" {
		args = append(args, "--model", variant)
	}
	return args
}

func (a *codexAgent) InitialCommand(req *CodingAgentInitialRequest) (*CommandSpec, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("codex: empty prompt")
	}
	args := append(a.baseArgs(req.Profile.Variant), req.Prompt)
	return &CommandSpec{Program: "codex", Args: args}, nil
}

func (a *codexAgent) FollowUpCommand(req *CodingAgentFollowUpRequest) (*CommandSpec, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("codex: follow-up without session id")
	}
	args := append(a.baseArgs(req.Profile.Variant), "resume", req.SessionID, req.Prompt)
	return &CommandSpec{Program: "codex", Args: args}, nil
}

func (a *codexAgent) SessionIDFromLine(line []byte) string {
	if id := gjson.GetBytes(line, "thread_id").String(); id != "" {
		return id
	}
	return gjson.GetBytes(line, "thread.id").String()
}

// CommandForAction resolves the agent or shell invocation for an action.
// Script actions run through sh -c in the worktree.
func CommandForAction(action *Action) (*CommandSpec, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	switch action.Type {
	case ActionCodingAgentInitial:
		agent, err := ResolveAgent(action.Initial.Profile)
		if err != nil {
			return nil, err
		}
		return agent.InitialCommand(action.Initial)
	case ActionCodingAgentFollowUp:
		agent, err := ResolveAgent(action.FollowUp.Profile)
		if err != nil {
			return nil, err
		}
		return agent.FollowUpCommand(action.FollowUp)
	case ActionScript:
		return &CommandSpec{Program: "sh", Args: []string{"-c", action.Script.Script}}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", action.Type)
}

// SessionExtractorForAction returns the line scanner for agent actions, or
// nil for actions that never produce a session id.
func SessionExtractorForAction(action *Action) func([]byte) string {
	profile := action.ProfileOf()
	if profile == nil {
		return nil
	}
	agent, err := ResolveAgent(*profile)
	if err != nil {
		return nil
	}
	return agent.SessionIDFromLine
}

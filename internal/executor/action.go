// Package executor defines the actions dispatched into attempt worktrees
// and the coding-agent profiles that turn them into runnable commands.
package executor

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the executor action variants.
type ActionType string

const (
	ActionCodingAgentInitial  ActionType = "coding_agent_initial"
	ActionCodingAgentFollowUp ActionType = "coding_agent_follow_up"
	ActionScript              ActionType = "script"
)

// ScriptContext says which configured script a script action runs.
type ScriptContext string

const (
	ScriptContextSetup     ScriptContext = "setup_script"
	ScriptContextCleanup   ScriptContext = "cleanup_script"
	ScriptContextDevServer ScriptContext = "dev_server"
)

// Profile selects a coding agent implementation and an optional variant
// (e.g. a model override) for it.
type Profile struct {
	Executor string `json:"executor"`
	Variant  string `json:"variant,omitempty"`
}

// CodingAgentInitialRequest starts a fresh agent conversation.
type CodingAgentInitialRequest struct {
	Prompt  string  `json:"prompt"`
	Profile Profile `json:"profile"`
}

// CodingAgentFollowUpRequest continues a recorded agent conversation.
type CodingAgentFollowUpRequest struct {
	Prompt    string  `json:"prompt"`
	SessionID string  `json:"session_id"`
	Profile   Profile `json:"profile"`
}

// ScriptRequest runs a project-configured shell script.
type ScriptRequest struct {
	Script  string        `json:"script"`
	Context ScriptContext `json:"context"`
}

// Action is the tagged union persisted on an execution process. Exactly one
// payload matches Type. NextAction chains a follow-on action that the
// supervisor dispatches after this one completes successfully.
type Action struct {
	Type       ActionType                  `json:"type"`
	Initial    *CodingAgentInitialRequest  `json:"coding_agent_initial,omitempty"`
	FollowUp   *CodingAgentFollowUpRequest `json:"coding_agent_follow_up,omitempty"`
	Script     *ScriptRequest              `json:"script,omitempty"`
	NextAction *Action                     `json:"next_action,omitempty"`
}

// NewInitialAction builds a fresh coding agent action.
func NewInitialAction(prompt string, profile Profile) *Action {
	return &Action{
		Type:    ActionCodingAgentInitial,
		Initial: &CodingAgentInitialRequest{Prompt: prompt, Profile: profile},
	}
}

// NewFollowUpAction builds a conversation-continuing agent action.
func NewFollowUpAction(prompt, sessionID string, profile Profile) *Action {
	return &Action{
		Type:     ActionCodingAgentFollowUp,
		FollowUp: &CodingAgentFollowUpRequest{Prompt: prompt, SessionID: sessionID, Profile: profile},
	}
}

// NewScriptAction builds a script action.
func NewScriptAction(script string, context ScriptContext) *Action {
	return &Action{
		Type:   ActionScript,
		Script: &ScriptRequest{Script: script, Context: context},
	}
}

// Validate checks that the payload matching Type is present.
func (a *Action) Validate() error {
	switch a.Type {
	case ActionCodingAgentInitial:
		if a.Initial == nil {
			return fmt.Errorf("action %s missing payload", a.Type)
		}
	case ActionCodingAgentFollowUp:
		if a.FollowUp == nil {
			return fmt.Errorf("action %s missing payload", a.Type)
		}
		if a.FollowUp.SessionID == "" {
			return fmt.Errorf("follow-up action missing session id")
		}
	case ActionScript:
		if a.Script == nil {
			return fmt.Errorf("action %s missing payload", a.Type)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.NextAction != nil {
		return a.NextAction.Validate()
	}
	return nil
}

// ProfileOf returns the agent profile for agent actions, or nil for scripts.
func (a *Action) ProfileOf() *Profile {
	switch a.Type {
	case ActionCodingAgentInitial:
		if a.Initial != nil {
			return &a.Initial.Profile
		}
	case ActionCodingAgentFollowUp:
		if a.FollowUp != nil {
			return &a.FollowUp.Profile
		}
	}
	return nil
}

// Marshal serializes the action for storage on an execution process.
func (a *Action) Marshal() (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal action: %w", err)
	}
	return string(raw), nil
}

// UnmarshalAction parses a stored action and validates its shape.
func UnmarshalAction(raw string) (*Action, error) {
	var a Action
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

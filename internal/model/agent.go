package model

// Agent type keys. Backends are selected by these string keys, not by type.
const (
	AgentTypeClaude   = "claude"
	AgentTypeCodex    = "codex"
	AgentTypeOpencode = "opencode"
	AgentTypeFake     = "fake"
)

// AgentResult is the common output contract shared by every agent backend.
type AgentResult struct {
	// Success tells whether the agent run finished without errors.
	Success bool
	// ErrorDetail carries the backend's error text when Success is false.
	ErrorDetail string
	// ResponseText is the agent's final response, if the backend surfaces one.
	ResponseText string
	// SessionID is the backend's session identifier, if it has sessions.
	SessionID string
}

// Credentials are the already-resolved secrets a task execution needs.
// They are received as opaque strings and never persisted.
type Credentials struct {
	// AgentAPIKey is the API key for the selected agent backend.
	AgentAPIKey string
	// RepoToken is the token used to push the result branch.
	RepoToken string
}

package types

import "context"

// ChatRequest is one inbound chat turn. UserID must already be validated by
// the transport (header identity, CLI session); the core never resolves
// identity itself.
type ChatRequest struct {
	UserID         string
	ConversationID string
	Message        string
	RequestID      string
	ChannelID      string
}

// ToolSummary describes one executed (or rejected) tool call of a turn, in
// execution order.
type ToolSummary struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// ChatResult is the outcome of one turn. Failed marks turns where the
// reasoning oracle was unavailable; Reply then carries the fixed
// user-visible failure text.
type ChatResult struct {
	ConversationID string
	Reply          string
	Failed         bool
	ToolCalls      []ToolSummary
}

// Handler processes chat turns. Implemented by the orchestrator.
type Handler interface {
	HandleChat(ctx context.Context, req ChatRequest) (ChatResult, error)
	Name() string
}

// Channel represents an input/output interface (HTTP, CLI)
type Channel interface {
	Start(ctx context.Context, handler Handler) error
	ID() string
}

// ToolManifest declares one callable tool to the reasoning oracle.
type ToolManifest struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Gateway orchestrates channels and the turn handler
type Gateway interface {
	RegisterChannel(c Channel)
	Start(ctx context.Context) error
}

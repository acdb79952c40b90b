package oracle

import (
	"context"
	"errors"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

// Oracle failures are fatal to a turn; the orchestrator distinguishes them
// from per-tool errors, which are recoverable.
var (
	ErrTimeout     = errors.New("oracle timeout")
	ErrUnavailable = errors.New("oracle unavailable")
)

// ChatMessage is one prior turn message shown to the oracle. Only user and
// assistant roles appear here; tool transcripts stay in the store.
type ChatMessage struct {
	Role    string
	Content string
}

// ToolCall is one invocation requested by the oracle, in batch order.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the outcome of one executed call, relayed back verbatim.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

type Prompt struct {
	System   string
	History  []ChatMessage
	UserText string
	Tools    []types.ToolManifest
}

// Decision is the oracle's first response: either a direct answer or an
// ordered batch of tool calls, never both.
type Decision struct {
	Text      string
	ToolCalls []ToolCall
}

// Oracle is the external reasoning component. It is stateless between calls;
// everything it may rely on is in the prompt. Finalize is invoked at most
// once per turn, after tool execution.
type Oracle interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
	Finalize(ctx context.Context, p Prompt, calls []ToolCall, results []ToolResult) (string, error)
}

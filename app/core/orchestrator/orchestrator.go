package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	config "github.com/assistanttechnology55/hackathon-phase3-backend/app/configs"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/metrics"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/oracle"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/tools"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/logger"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

// FailureReply is the fixed user-visible text for turns where the reasoning
// oracle could not be reached. The underlying error goes to the log only.
const FailureReply = "Sorry, I ran into a problem processing that. Please try again in a moment."

const (
	turnStatusOK     = "ok"
	turnStatusFailed = "failed"

	stageDecide   = "decide"
	stageFinalize = "finalize"
)

// Orchestrator drives one chat turn: resolve the conversation, consult the
// oracle, execute any requested tool batch in order, give the oracle one
// round with the results, persist the transcript, return the reply.
type Orchestrator struct {
	oracle        oracle.Oracle
	registry      *tools.Registry
	conversations *store.ConversationLog
	metrics       *metrics.Metrics

	mu      sync.RWMutex
	name    string
	chatCfg config.ChatConfig
}

func New(name string, o oracle.Oracle, registry *tools.Registry, conversations *store.ConversationLog, chatCfg config.ChatConfig) *Orchestrator {
	if strings.TrimSpace(name) == "" {
		name = "Todo Assistant"
	}
	return &Orchestrator{
		oracle:        o,
		registry:      registry,
		conversations: conversations,
		name:          name,
		chatCfg:       chatCfg,
	}
}

func (o *Orchestrator) Name() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.name
}

func (o *Orchestrator) SetName(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.name = name
}

func (o *Orchestrator) SetChatConfig(chatCfg config.ChatConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chatCfg = chatCfg
}

func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics = m
}

// HandleChat processes one turn. Oracle failures do not return an error:
// they yield a ChatResult with Failed set and the fixed failure reply, and
// the turn is still recorded. Errors are reserved for rejected requests
// (empty message, unknown conversation).
func (o *Orchestrator) HandleChat(ctx context.Context, req types.ChatRequest) (types.ChatResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return types.ChatResult{}, fmt.Errorf("%w: user_id is required", store.ErrInvalidArgument)
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return types.ChatResult{}, fmt.Errorf("%w: message must not be empty", store.ErrInvalidArgument)
	}

	conv, err := o.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return types.ChatResult{}, err
	}

	cfg := o.getChatConfig()
	history, err := o.conversations.Recent(ctx, conv.ID, cfg.HistoryLimit)
	if err != nil {
		logger.Warn("Failed to load conversation history for %s: %v", conv.ID, err)
		history = nil
	}

	prompt := o.buildPrompt(history, text)

	decision, err := o.oracle.Decide(ctx, prompt)
	if err != nil {
		o.getMetrics().OracleRequest(stageDecide, "error")
		logger.Error("Oracle decide failed for conversation %s: %v", conv.ID, err)
		return o.failTurn(ctx, conv.ID, text, nil), nil
	}
	o.getMetrics().OracleRequest(stageDecide, "ok")

	if len(decision.ToolCalls) == 0 {
		reply := strings.TrimSpace(decision.Text)
		if reply == "" {
			reply = o.helpReply()
		}
		o.persistTurn(ctx, conv.ID, text, nil, reply)
		o.getMetrics().TurnCompleted(turnStatusOK)
		return types.ChatResult{ConversationID: conv.ID, Reply: reply}, nil
	}

	// truncation must apply to the echoed call list too: the finalize
	// round requires exactly one result per announced call
	requested := decision.ToolCalls
	if cfg.MaxToolCalls > 0 && len(requested) > cfg.MaxToolCalls {
		logger.Warn("Oracle requested %d tool calls, truncating to %d", len(requested), cfg.MaxToolCalls)
		requested = requested[:cfg.MaxToolCalls]
	}

	calls := o.prepareCalls(userID, requested)
	runner := newBatchRunner(o.registry, time.Duration(cfg.StoreRetryWaitMS)*time.Millisecond)
	report := runner.run(ctx, userID, calls)
	for _, outcome := range report.Outcomes {
		o.getMetrics().ToolExecuted(outcome.Tool, outcome.Status)
	}
	if report.Retried > 0 || report.Aborted > 0 {
		logger.Warn("Tool batch for conversation %s: retried=%d aborted=%d", conv.ID, report.Retried, report.Aborted)
	}

	final, err := o.oracle.Finalize(ctx, prompt, requested, toolResults(report.Outcomes))
	if err != nil {
		o.getMetrics().OracleRequest(stageFinalize, "error")
		logger.Error("Oracle finalize failed for conversation %s: %v", conv.ID, err)
		return o.failTurn(ctx, conv.ID, text, report.Outcomes), nil
	}
	o.getMetrics().OracleRequest(stageFinalize, "ok")

	final = strings.TrimSpace(final)
	if final == "" {
		final = summarizeOutcomes(report.Outcomes)
	}

	o.persistTurn(ctx, conv.ID, text, report.Outcomes, final)
	o.getMetrics().TurnCompleted(turnStatusOK)
	return types.ChatResult{
		ConversationID: conv.ID,
		Reply:          final,
		ToolCalls:      toolSummaries(report.Outcomes),
	}, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, userID, conversationID string) (store.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return o.conversations.Create(ctx, userID)
	}
	return o.conversations.Get(ctx, userID, conversationID)
}

// prepareCalls stamps the authenticated user onto every call before
// validation, so the oracle can never act on another user's data.
func (o *Orchestrator) prepareCalls(userID string, requested []oracle.ToolCall) []tools.Call {
	calls := make([]tools.Call, 0, len(requested))
	for _, c := range requested {
		args := strings.TrimSpace(c.Arguments)
		if args == "" {
			args = "{}"
		}
		// invalid JSON passes through untouched so validation can reject
		// it as a schema error rather than having it silently rewritten
		if gjson.Valid(args) {
			if stamped, err := sjson.Set(args, "user_id", userID); err == nil {
				args = stamped
			}
		}
		calls = append(calls, tools.Call{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return calls
}

// failTurn records a turn whose oracle round failed: the user message, any
// tool messages from calls that already ran, and the fixed failure reply.
func (o *Orchestrator) failTurn(ctx context.Context, conversationID, userText string, outcomes []tools.Outcome) types.ChatResult {
	o.persistTurn(ctx, conversationID, userText, outcomes, FailureReply)
	o.getMetrics().TurnCompleted(turnStatusFailed)
	return types.ChatResult{
		ConversationID: conversationID,
		Reply:          FailureReply,
		Failed:         true,
		ToolCalls:      toolSummaries(outcomes),
	}
}

// persistTurn appends the whole transcript of the turn in creation order as
// one atomic unit. A persistence failure is logged, not surfaced: the reply
// already exists and losing it over audit trouble helps nobody.
func (o *Orchestrator) persistTurn(ctx context.Context, conversationID, userText string, outcomes []tools.Outcome, reply string) {
	drafts := make([]store.MessageDraft, 0, len(outcomes)+2)
	drafts = append(drafts, store.MessageDraft{Role: store.RoleUser, Content: userText})
	for _, outcome := range outcomes {
		data, err := json.Marshal(outcome)
		if err != nil {
			logger.Error("Failed to encode tool outcome for %s: %v", conversationID, err)
			continue
		}
		drafts = append(drafts, store.MessageDraft{Role: store.RoleTool, Content: string(data)})
	}
	drafts = append(drafts, store.MessageDraft{Role: store.RoleAssistant, Content: reply})

	if _, err := o.conversations.AppendTurn(ctx, conversationID, drafts); err != nil {
		logger.Error("Failed to persist turn for conversation %s: %v", conversationID, err)
	}
}

func (o *Orchestrator) buildPrompt(history []store.Message, userText string) oracle.Prompt {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(o.Name())
	b.WriteString(", a friendly assistant for a personal todo list.\n")
	b.WriteString("You manage the user's tasks only through the provided tools.\n")
	b.WriteString("When the user wants to create, list, complete, delete or update tasks, call the matching tool.\n")
	b.WriteString("Never invent task ids; list tasks first when unsure which task is meant.\n")
	b.WriteString("Keep replies short and plain.")

	chat := make([]oracle.ChatMessage, 0, len(history))
	for _, m := range history {
		// tool transcripts stay in the store; the oracle sees the
		// user/assistant dialogue only
		if m.Role != store.RoleUser && m.Role != store.RoleAssistant {
			continue
		}
		chat = append(chat, oracle.ChatMessage{Role: m.Role, Content: m.Content})
	}

	return oracle.Prompt{
		System:   b.String(),
		History:  chat,
		UserText: userText,
		Tools:    o.registry.Manifests(),
	}
}

func (o *Orchestrator) helpReply() string {
	return "I'm " + o.Name() + "! I can add, list, complete, update and delete your tasks. Just ask in plain language."
}

func (o *Orchestrator) getChatConfig() config.ChatConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.chatCfg
}

func (o *Orchestrator) getMetrics() *metrics.Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.metrics
}

// toolResults builds the compact payloads relayed back to the oracle: the
// status plus either the result document or the error text.
func toolResults(outcomes []tools.Outcome) []oracle.ToolResult {
	results := make([]oracle.ToolResult, 0, len(outcomes))
	for _, outcome := range outcomes {
		content := "{}"
		content, _ = sjson.Set(content, "status", outcome.Status)
		if outcome.Payload != "" {
			content, _ = sjson.SetRaw(content, "result", outcome.Payload)
		}
		if outcome.Error != "" {
			content, _ = sjson.Set(content, "error", outcome.Error)
		}
		results = append(results, oracle.ToolResult{
			CallID:  outcome.CallID,
			Name:    outcome.Tool,
			Content: content,
		})
	}
	return results
}

func toolSummaries(outcomes []tools.Outcome) []types.ToolSummary {
	if len(outcomes) == 0 {
		return nil
	}
	summaries := make([]types.ToolSummary, 0, len(outcomes))
	for _, outcome := range outcomes {
		summaries = append(summaries, types.ToolSummary{
			Tool:      outcome.Tool,
			Arguments: outcome.Arguments,
			Status:    outcome.Status,
			Detail:    outcomeLine(outcome),
		})
	}
	return summaries
}

// summarizeOutcomes is the deterministic fallback reply used when the
// finalize round returns no text.
func summarizeOutcomes(outcomes []tools.Outcome) string {
	lines := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if line := outcomeLine(outcome); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "Done."
	}
	return strings.Join(lines, " ")
}

func outcomeLine(outcome tools.Outcome) string {
	switch outcome.Status {
	case tools.StatusOK:
		switch outcome.Tool {
		case tools.ToolAddTask:
			return fmt.Sprintf("Added %q.", gjson.Get(outcome.Payload, "title").String())
		case tools.ToolListTasks:
			return fmt.Sprintf("You have %d task(s).", gjson.Get(outcome.Payload, "count").Int())
		case tools.ToolCompleteTask:
			return fmt.Sprintf("Marked %q as complete.", gjson.Get(outcome.Payload, "title").String())
		case tools.ToolDeleteTask:
			return "Deleted the task."
		case tools.ToolUpdateTask:
			return fmt.Sprintf("Updated %q.", gjson.Get(outcome.Payload, "title").String())
		}
		return "Done."
	case tools.StatusNotFound:
		return "I couldn't find that task."
	case tools.StatusInvalidArgument:
		return "That request was missing something I need."
	case tools.StatusSchemaError:
		return "I couldn't understand one of the requested actions."
	case tools.StatusStoreUnavailable, tools.StatusAborted:
		return "I couldn't reach your task list just now."
	}
	return ""
}

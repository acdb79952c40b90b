package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

const (
	defaultDecideTimeout   = 30 * time.Second
	defaultFinalizeTimeout = 30 * time.Second
)

type OpenAIOptions struct {
	APIKey          string
	BaseURL         string
	Model           string
	DecideTimeout   time.Duration
	FinalizeTimeout time.Duration
}

// OpenAIOracle talks to the chat completions API with the task tool menu
// attached. Transport failures and timeouts surface as the package's
// sentinel errors so the orchestrator can fail the turn cleanly.
type OpenAIOracle struct {
	client          openai.Client
	model           string
	decideTimeout   time.Duration
	finalizeTimeout time.Duration
}

func NewOpenAIOracle(opts OpenAIOptions) *OpenAIOracle {
	reqOpts := []option.RequestOption{}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	decideTimeout := opts.DecideTimeout
	if decideTimeout <= 0 {
		decideTimeout = defaultDecideTimeout
	}
	finalizeTimeout := opts.FinalizeTimeout
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}

	return &OpenAIOracle{
		client:          openai.NewClient(reqOpts...),
		model:           model,
		decideTimeout:   decideTimeout,
		finalizeTimeout: finalizeTimeout,
	}
}

func (o *OpenAIOracle) Decide(ctx context.Context, p Prompt) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, o.decideTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: buildMessages(p),
		Tools:    buildTools(p.Tools),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Decision{}, mapTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			calls = append(calls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return Decision{ToolCalls: calls}, nil
	}
	return Decision{Text: msg.Content}, nil
}

func (o *OpenAIOracle) Finalize(ctx context.Context, p Prompt, calls []ToolCall, results []ToolResult) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.finalizeTimeout)
	defer cancel()

	messages := buildMessages(p)

	asst := openai.ChatCompletionAssistantMessageParam{}
	for _, c := range calls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: c.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
	for _, r := range results {
		messages = append(messages, openai.ToolMessage(r.Content, r.CallID))
	}

	// No tools attached here: one reasoning round after execution is the
	// contract, so a second batch cannot be requested.
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(p Prompt) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	for _, m := range p.History {
		switch m.Role {
		case store.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case store.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	if p.UserText != "" {
		messages = append(messages, openai.UserMessage(p.UserText))
	}
	return messages
}

func buildTools(manifests []types.ToolManifest) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(manifests))
	for _, m := range manifests {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        m.Name,
			Description: openai.String(m.Description),
			Parameters:  openai.FunctionParameters(m.Parameters),
		}))
	}
	return tools
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

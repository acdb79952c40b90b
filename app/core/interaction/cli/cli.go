package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

// CLIChannel is a local stdin loop for trying the assistant without a
// client. It keeps one conversation for the whole session.
type CLIChannel struct {
	id     string
	userID string
}

func NewCLIChannel(userID string) *CLIChannel {
	if strings.TrimSpace(userID) == "" {
		userID = "local_user"
	}
	return &CLIChannel{id: "cli", userID: userID}
}

func (c *CLIChannel) ID() string {
	return c.id
}

func (c *CLIChannel) Start(ctx context.Context, handler types.Handler) error {
	scanner := bufio.NewScanner(os.Stdin)
	name := handler.Name()
	fmt.Printf(">> %s CLI started. Type 'exit' to quit.\n", name)

	conversationID := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fmt.Print("> ")
			if !scanner.Scan() {
				return nil
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				fmt.Println("Exiting CLI loop...")
				return nil
			}

			result, err := handler.HandleChat(ctx, types.ChatRequest{
				UserID:         c.userID,
				ConversationID: conversationID,
				Message:        text,
				RequestID:      fmt.Sprintf("cli-%d", time.Now().UnixNano()),
				ChannelID:      c.id,
			})
			if err != nil {
				fmt.Printf("[%s][error]: %v\n", name, err)
				continue
			}
			conversationID = result.ConversationID
			for _, call := range result.ToolCalls {
				fmt.Printf("[%s][tool %s]: %s\n", name, call.Tool, call.Status)
			}
			fmt.Printf("[%s]: %s\n", name, result.Reply)
		}
	}
}

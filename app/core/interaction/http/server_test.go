package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/tools"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

type fakeHandler struct {
	result types.ChatResult
	err    error
	last   types.ChatRequest
	calls  int
}

func (f *fakeHandler) HandleChat(ctx context.Context, req types.ChatRequest) (types.ChatResult, error) {
	f.calls++
	f.last = req
	return f.result, f.err
}

func (f *fakeHandler) Name() string {
	return "Todo Assistant"
}

func postChat(t *testing.T, ch *HTTPChannel, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	rr := httptest.NewRecorder()
	ch.handleChat(rr, req)
	return rr
}

func TestSetShutdownTimeout(t *testing.T) {
	ch := NewHTTPChannel(8080)
	if ch.shutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected default shutdown timeout: %s", ch.shutdownTimeout)
	}

	ch.SetShutdownTimeout(12 * time.Second)
	if ch.shutdownTimeout != 12*time.Second {
		t.Fatalf("unexpected shutdown timeout after set: %s", ch.shutdownTimeout)
	}

	ch.SetShutdownTimeout(0)
	if ch.shutdownTimeout != 12*time.Second {
		t.Fatalf("zero timeout should be ignored, got: %s", ch.shutdownTimeout)
	}
}

func TestHandleChatRequiresUserHeader(t *testing.T) {
	ch := NewHTTPChannel(8080)
	handler := &fakeHandler{}
	ch.handler = handler

	rr := postChat(t, ch, "", `{"message":"hi"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if handler.calls != 0 {
		t.Fatal("handler must not run without an authenticated user")
	}
}

func TestHandleChatRejectsBadBody(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.handler = &fakeHandler{}

	for name, body := range map[string]string{
		"empty body":    "",
		"invalid json":  `{"message":`,
		"empty message": `{"message":"   "}`,
	} {
		rr := postChat(t, ch, "alice", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestHandleChatSuccess(t *testing.T) {
	ch := NewHTTPChannel(8080)
	handler := &fakeHandler{
		result: types.ChatResult{
			ConversationID: "conv-1",
			Reply:          "Added buy milk.",
			ToolCalls: []types.ToolSummary{
				{Tool: tools.ToolAddTask, Status: tools.StatusOK},
			},
		},
	}
	ch.handler = handler

	rr := postChat(t, ch, "alice", `{"message":"add buy milk"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload chatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.ConversationID != "conv-1" {
		t.Fatalf("unexpected conversation id: %s", payload.ConversationID)
	}
	if payload.Response != "Added buy milk." {
		t.Fatalf("unexpected response: %q", payload.Response)
	}
	if len(payload.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(payload.ToolCalls))
	}

	if handler.last.UserID != "alice" {
		t.Fatalf("expected the header identity forwarded, got %q", handler.last.UserID)
	}
	if handler.last.ChannelID != "http" {
		t.Fatalf("unexpected channel id: %q", handler.last.ChannelID)
	}
	if handler.last.RequestID == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestHandleChatMapsHandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown conversation", fmt.Errorf("%w: conversation x", store.ErrNotFound), http.StatusNotFound},
		{"invalid request", fmt.Errorf("%w: message must not be empty", store.ErrInvalidArgument), http.StatusBadRequest},
		{"internal failure", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewHTTPChannel(8080)
			ch.handler = &fakeHandler{err: tc.err}

			rr := postChat(t, ch, "alice", `{"message":"hi","conversation_id":"x"}`)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestHandleChatFailedTurnIsBadGateway(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.handler = &fakeHandler{
		result: types.ChatResult{
			ConversationID: "conv-1",
			Reply:          "Sorry, I ran into a problem processing that. Please try again in a moment.",
			Failed:         true,
		},
	}

	rr := postChat(t, ch, "alice", `{"message":"hi"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var payload chatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.Response == "" {
		t.Fatal("expected the failure reply in the body")
	}
}

func newToolChannel(t *testing.T) *HTTPChannel {
	t.Helper()
	db, err := store.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ch := NewHTTPChannel(8080)
	ch.SetToolRegistry(tools.NewRegistry(store.NewTaskStore(db)))
	return ch
}

func postTool(t *testing.T, ch *HTTPChannel, userID, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tools/"+name, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	rr := httptest.NewRecorder()
	ch.handleTool(rr, req)
	return rr
}

func TestHandleToolDirectInvocation(t *testing.T) {
	ch := newToolChannel(t)

	rr := postTool(t, ch, "alice", tools.ToolAddTask, `{"title":"via api"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var outcome tools.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome failed: %v", err)
	}
	if outcome.Status != tools.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", outcome.Status, outcome.Error)
	}
	if !strings.Contains(outcome.Payload, `"user_id":"alice"`) {
		t.Fatalf("expected the task owned by the header identity, got %s", outcome.Payload)
	}
}

func TestHandleToolOverridesBodyIdentity(t *testing.T) {
	ch := newToolChannel(t)

	rr := postTool(t, ch, "alice", tools.ToolAddTask, `{"user_id":"mallory","title":"sneaky"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var outcome tools.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome failed: %v", err)
	}
	if !strings.Contains(outcome.Payload, `"user_id":"alice"`) {
		t.Fatalf("expected the body identity overridden, got %s", outcome.Payload)
	}
}

func TestHandleToolErrors(t *testing.T) {
	ch := newToolChannel(t)

	if rr := postTool(t, ch, "", tools.ToolAddTask, `{"title":"x"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
	if rr := postTool(t, ch, "alice", "drop_everything", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown tool, got %d", rr.Code)
	}
	if rr := postTool(t, ch, "alice", tools.ToolCompleteTask, `{"task_id":"nope"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing task, got %d", rr.Code)
	}
	if rr := postTool(t, ch, "alice", tools.ToolAddTask, `{"title":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid arguments, got %d", rr.Code)
	}
}

func TestHandleStatusReturnsJSONSnapshot(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.startedUnix.Store(time.Now().Add(-5 * time.Second).Unix())
	ch.SetStatusProvider(func() map[string]interface{} {
		return map[string]interface{}{"started": true}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	ch.handleStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("unexpected content type: %s", rr.Header().Get("Content-Type"))
	}

	var payload statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.ChannelID != "http" {
		t.Fatalf("unexpected channel id: %s", payload.ChannelID)
	}
	if payload.StartedAt == "" {
		t.Fatal("expected started_at to be set")
	}
	if payload.UptimeSec <= 0 {
		t.Fatalf("expected positive uptime, got %d", payload.UptimeSec)
	}
	if payload.Gateway == nil {
		t.Fatal("expected gateway payload")
	}
}

func TestHandleStatusRejectsNonGet(t *testing.T) {
	ch := NewHTTPChannel(8080)
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rr := httptest.NewRecorder()
	ch.handleStatus(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for non-GET, got %d", rr.Code)
	}
}

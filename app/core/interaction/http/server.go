package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/tools"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/logger"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

const (
	headerUserID   = "X-User-ID"
	maxRequestBody = 64 << 10
)

// HTTPChannel serves the chat API. Requests are handled synchronously: the
// reply for a turn goes back on the same connection.
type HTTPChannel struct {
	id              string
	port            int
	server          *http.Server
	handler         types.Handler
	registry        *tools.Registry
	metricsHandler  http.Handler
	statusProvider  func() map[string]interface{}
	shutdownTimeout time.Duration

	counter     uint64
	startedUnix atomic.Int64
}

func NewHTTPChannel(port int) *HTTPChannel {
	return &HTTPChannel{
		id:              "http",
		port:            port,
		shutdownTimeout: 5 * time.Second,
	}
}

func (c *HTTPChannel) ID() string {
	return c.id
}

// SetToolRegistry enables the direct tool endpoints under /api/tools/.
func (c *HTTPChannel) SetToolRegistry(registry *tools.Registry) {
	c.registry = registry
}

func (c *HTTPChannel) SetMetricsHandler(h http.Handler) {
	c.metricsHandler = h
}

func (c *HTTPChannel) SetStatusProvider(provider func() map[string]interface{}) {
	c.statusProvider = provider
}

func (c *HTTPChannel) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.shutdownTimeout = timeout
}

func (c *HTTPChannel) Start(ctx context.Context, handler types.Handler) error {
	c.handler = handler
	c.startedUnix.Store(time.Now().Unix())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", c.handleChat)
	mux.HandleFunc("/api/tools/", c.handleTool)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if c.metricsHandler != nil {
		mux.Handle("/metrics", c.metricsHandler)
	}

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[HTTP] Shutdown error: %v", err)
		}
	}()

	logger.Info("[HTTP] Listening on port %d...", c.port)
	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string              `json:"conversation_id"`
	Response       string              `json:"response"`
	ToolCalls      []types.ToolSummary `json:"tool_calls,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + headerUserID + " header"})
		return
	}

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	requestID := fmt.Sprintf("http-%d-%d", time.Now().UnixNano(), atomic.AddUint64(&c.counter, 1))
	result, err := c.handler.HandleChat(r.Context(), types.ChatRequest{
		UserID:         userID,
		ConversationID: strings.TrimSpace(req.ConversationID),
		Message:        req.Message,
		RequestID:      requestID,
		ChannelID:      c.id,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
		case errors.Is(err, store.ErrInvalidArgument):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			logger.Error("[HTTP] Chat request %s failed: %v", requestID, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	status := http.StatusOK
	if result.Failed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, chatResponse{
		ConversationID: result.ConversationID,
		Response:       result.Reply,
		ToolCalls:      result.ToolCalls,
	})
}

// handleTool invokes one task tool directly, bypassing the oracle. The
// request body is the tool's JSON arguments; the authenticated user
// overrides any user_id in the body.
func (c *HTTPChannel) handleTool(w http.ResponseWriter, r *http.Request) {
	if c.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "tool registry unavailable"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + headerUserID + " header"})
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/tools/")
	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "/") {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown tool"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	args := strings.TrimSpace(string(body))
	if args == "" {
		args = "{}"
	}
	args = stampUser(args, userID)

	outcome := c.registry.Execute(r.Context(), userID, tools.Call{
		ID:        fmt.Sprintf("direct-%d", atomic.AddUint64(&c.counter, 1)),
		Name:      name,
		Arguments: args,
	})
	writeJSON(w, toolStatusCode(outcome.Status), outcome)
}

func toolStatusCode(status string) int {
	switch status {
	case tools.StatusOK:
		return http.StatusOK
	case tools.StatusNotFound:
		return http.StatusNotFound
	case tools.StatusSchemaError, tools.StatusInvalidArgument:
		return http.StatusBadRequest
	case tools.StatusStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusResponse struct {
	ChannelID string                 `json:"channel_id"`
	StartedAt string                 `json:"started_at,omitempty"`
	UptimeSec int64                  `json:"uptime_sec"`
	Gateway   map[string]interface{} `json:"gateway,omitempty"`
}

func (c *HTTPChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	resp := statusResponse{ChannelID: c.id}
	if started := c.startedUnix.Load(); started > 0 {
		startedAt := time.Unix(started, 0).UTC()
		resp.StartedAt = startedAt.Format(time.RFC3339)
		resp.UptimeSec = int64(time.Since(startedAt).Seconds())
	}
	if c.statusProvider != nil {
		resp.Gateway = c.statusProvider()
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("failed to read request body")
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// stampUser overwrites user_id in a JSON argument document. Invalid JSON is
// passed through untouched; schema validation rejects it with a proper
// outcome instead of a transport error.
func stampUser(args, userID string) string {
	if !gjson.Valid(args) {
		return args
	}
	stamped, err := sjson.Set(args, "user_id", userID)
	if err != nil {
		return args
	}
	return stamped
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] Failed to encode response: %v", err)
	}
}

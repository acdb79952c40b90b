package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/logger"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

// DefaultGateway connects channels to the chat handler. Every channel gets
// the same handler; the gateway only adds accounting and the turn trace.
type DefaultGateway struct {
	handler  types.Handler
	channels map[string]types.Channel
	mu       sync.RWMutex
	tracer   TraceRecorder

	processedTurns uint64
	failedTurns    uint64
	lastTurnUnix   atomic.Int64
	startedUnix    atomic.Int64
}

type HealthStatus struct {
	Started            bool
	StartedAt          time.Time
	RegisteredChannels []string
	HandlerName        string
	ProcessedTurns     uint64
	FailedTurns        uint64
	LastTurnAt         time.Time
}

func NewGateway(handler types.Handler) *DefaultGateway {
	return &DefaultGateway{
		handler:  handler,
		channels: make(map[string]types.Channel),
	}
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	logger.Info("[Gateway] Registered channel: %s", c.ID())
}

func (g *DefaultGateway) SetTraceRecorder(tracer TraceRecorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracer = tracer
}

// Start launches every registered channel with the gateway itself as the
// handler, and blocks until all of them return.
func (g *DefaultGateway) Start(ctx context.Context) error {
	g.mu.RLock()
	if g.handler == nil {
		g.mu.RUnlock()
		return fmt.Errorf("gateway has no chat handler")
	}
	channels := make([]types.Channel, 0, len(g.channels))
	for _, c := range g.channels {
		channels = append(channels, c)
	}
	g.mu.RUnlock()

	if len(channels) == 0 {
		return fmt.Errorf("gateway has no registered channels")
	}

	g.startedUnix.Store(time.Now().Unix())

	var wg sync.WaitGroup
	for _, c := range channels {
		wg.Add(1)
		go func(ch types.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, g); err != nil && ctx.Err() == nil {
				logger.Error("[Gateway] Channel %s error: %v", ch.ID(), err)
				g.trace(TraceEvent{ChannelID: ch.ID(), Event: "channel_stopped", Status: "error", Detail: err.Error()})
			}
		}(c)
	}

	logger.Info("[Gateway] Started all channels")
	wg.Wait()
	return nil
}

// HandleChat is the handler channels invoke. It wraps the real handler with
// turn accounting and the audit trace.
func (g *DefaultGateway) HandleChat(ctx context.Context, req types.ChatRequest) (types.ChatResult, error) {
	atomic.AddUint64(&g.processedTurns, 1)
	g.lastTurnUnix.Store(time.Now().Unix())
	logger.Info("[Gateway] Turn from channel=%s user=%s", req.ChannelID, req.UserID)
	g.trace(TraceEvent{
		RequestID:      req.RequestID,
		ConversationID: req.ConversationID,
		ChannelID:      req.ChannelID,
		UserID:         req.UserID,
		Event:          "turn_received",
	})

	g.mu.RLock()
	handler := g.handler
	g.mu.RUnlock()

	result, err := handler.HandleChat(ctx, req)
	switch {
	case err != nil:
		atomic.AddUint64(&g.failedTurns, 1)
		g.trace(TraceEvent{
			RequestID:      req.RequestID,
			ConversationID: req.ConversationID,
			ChannelID:      req.ChannelID,
			UserID:         req.UserID,
			Event:          "turn_rejected",
			Status:         "error",
			Detail:         err.Error(),
		})
	case result.Failed:
		atomic.AddUint64(&g.failedTurns, 1)
		g.trace(TraceEvent{
			RequestID:      req.RequestID,
			ConversationID: result.ConversationID,
			ChannelID:      req.ChannelID,
			UserID:         req.UserID,
			Event:          "turn_failed",
			Status:         "error",
		})
	default:
		g.trace(TraceEvent{
			RequestID:      req.RequestID,
			ConversationID: result.ConversationID,
			ChannelID:      req.ChannelID,
			UserID:         req.UserID,
			Event:          "turn_completed",
			Detail:         fmt.Sprintf("tool_calls=%d", len(result.ToolCalls)),
		})
	}
	return result, err
}

func (g *DefaultGateway) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.handler == nil {
		return ""
	}
	return g.handler.Name()
}

func (g *DefaultGateway) trace(event TraceEvent) {
	g.mu.RLock()
	tracer := g.tracer
	g.mu.RUnlock()
	if tracer == nil {
		return
	}

	event.RequestID = strings.TrimSpace(event.RequestID)
	event.ConversationID = strings.TrimSpace(event.ConversationID)
	if err := tracer.Record(event); err != nil {
		logger.Warn("[Gateway] Trace write failed: %v", err)
	}
}

func (g *DefaultGateway) HealthStatus() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	handlerName := ""
	if g.handler != nil {
		handlerName = g.handler.Name()
	}
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		RegisteredChannels: channels,
		HandlerName:        handlerName,
		ProcessedTurns:     atomic.LoadUint64(&g.processedTurns),
		FailedTurns:        atomic.LoadUint64(&g.failedTurns),
	}

	if started := g.startedUnix.Load(); started > 0 {
		status.Started = true
		status.StartedAt = time.Unix(started, 0).UTC()
	}
	if last := g.lastTurnUnix.Load(); last > 0 {
		status.LastTurnAt = time.Unix(last, 0).UTC()
	}

	return status
}

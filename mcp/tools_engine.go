package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerEngineTools registers engine inspection tools
func (s *MCPServer) registerEngineTools() {
	// engine_status - Current engine state
	s.server.AddTool(
		mcp.NewTool("engine_status",
			mcp.WithDescription("Show the automation engine status: call detector state, pending replies and answers, message counts and feature toggles"),
		),
		s.handleEngineStatus,
	)

	// messages_recent - Recently admitted messages
	s.server.AddTool(
		mcp.NewTool("messages_recent",
			mcp.WithDescription("List the most recent WeChat messages seen by the engine (in-memory history only)"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of messages (default: 20, max: 100)"),
			),
		),
		s.handleMessagesRecent,
	)

	// attempts_query - Audit log of automated actions
	s.server.AddTool(
		mcp.NewTool("attempts_query",
			mcp.WithDescription("Query the audit log of automated reply and answer attempts. Only metadata is stored, never message text."),
			mcp.WithString("kinds",
				mcp.Description("Comma-separated attempt kinds: sendReply, answerCall, dial"),
			),
			mcp.WithString("outcomes",
				mcp.Description("Comma-separated outcomes: succeeded, allStrategiesExhausted"),
			),
			mcp.WithNumber("since_minutes",
				mcp.Description("Only attempts started within the last N minutes"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of records (default: 50)"),
			),
		),
		s.handleAttemptsQuery,
	)
}

func (s *MCPServer) handleEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.app.GetEngineStatus()

	running := "stopped"
	if st.Running {
		running = "running"
	}
	result := fmt.Sprintf("Engine: %s\n", running)
	result += fmt.Sprintf("Call detector: %s", st.CallState)
	if st.ActiveCaller != "" {
		result += fmt.Sprintf(" (caller: %s)", st.ActiveCaller)
	}
	result += "\n"
	result += fmt.Sprintf("Auto-reply: %v, Auto-answer: %v\n", st.AutoReplyEnabled, st.AutoAnswer)
	result += fmt.Sprintf("Reply in flight: %v, Answer in flight: %v\n", st.ReplyInFlight, st.AnswerInFlight)
	result += fmt.Sprintf("History: %d messages (%d fingerprints)\n", st.HistoryLen, st.MessagesSeen)
	result += fmt.Sprintf("Pending timers: %d, Deferred call signals: %d, Dropped events: %d\n",
		st.PendingTimers, st.DeferredSignals, st.DroppedEvents)
	if st.LastWindowClass != "" {
		result += fmt.Sprintf("Foreground window: %s\n", st.LastWindowClass)
	}

	return textResult(result), nil
}

func (s *MCPServer) handleMessagesRecent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	if limit > 100 {
		limit = 100
	}

	msgs := s.app.RecentMessages(limit)
	if len(msgs) == 0 {
		return textResult("No messages seen yet"), nil
	}

	result := fmt.Sprintf("Last %d message(s):\n\n", len(msgs))
	for i, m := range msgs {
		who := m.Sender
		if who == "" {
			who = m.ChatName
		}
		if m.IsSelf {
			who = "me"
		}
		chat := m.ChatName
		if m.IsGroupChat {
			chat += " [group]"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		result += fmt.Sprintf("%d. [%s] %s in %s (%s): %s\n", i+1, ts, who, chat, m.Type, m.Content)
	}

	return textResult(result), nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *MCPServer) handleAttemptsQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query := AttemptQuery{Limit: 50}
	if k, ok := args["kinds"].(string); ok {
		query.Kinds = splitList(k)
	}
	if o, ok := args["outcomes"].(string); ok {
		query.Outcomes = splitList(o)
	}
	if m, ok := args["since_minutes"].(float64); ok && m > 0 {
		query.StartTime = time.Now().Add(-time.Duration(m) * time.Minute).UnixMilli()
	}
	if l, ok := args["limit"].(float64); ok && l > 0 {
		query.Limit = int(l)
	}

	res, err := s.app.QueryAttempts(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	if len(res.Attempts) == 0 {
		return textResult("No attempts recorded"), nil
	}

	jsonData, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize attempts: %w", err)
	}
	return textResult(fmt.Sprintf("Found %d attempt(s) (total %d):\n\n%s", len(res.Attempts), res.Total, string(jsonData))), nil
}

package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"Aide/pkg/autoreply"
)

// registerRuleTools registers reply rule tools
func (s *MCPServer) registerRuleTools() {
	// rules_list - List reply rules
	s.server.AddTool(
		mcp.NewTool("rules_list",
			mcp.WithDescription("List the configured auto-reply rules in the order they are tried"),
		),
		s.handleRulesList,
	)

	// rule_save - Add or replace a rule
	s.server.AddTool(
		mcp.NewTool("rule_save",
			mcp.WithDescription("Add a reply rule, or replace the rule with the same id"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Rule id"),
			),
			mcp.WithString("keywords",
				mcp.Required(),
				mcp.Description("Comma-separated keywords"),
			),
			mcp.WithString("reply",
				mcp.Required(),
				mcp.Description("Reply text"),
			),
			mcp.WithString("match_type",
				mcp.Description("EXACT, CONTAINS or REGEX (default: CONTAINS)"),
			),
			mcp.WithString("scope",
				mcp.Description("ALL, PRIVATE or GROUP (default: ALL)"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Higher priorities are tried first (default: 1)"),
			),
			mcp.WithBoolean("enabled",
				mcp.Description("Whether the rule is active (default: true)"),
			),
		),
		s.handleRuleSave,
	)

	// rule_remove - Remove a rule
	s.server.AddTool(
		mcp.NewTool("rule_remove",
			mcp.WithDescription("Remove a reply rule by id"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Rule id"),
			),
		),
		s.handleRuleRemove,
	)

	// rules_reset - Restore default rules
	s.server.AddTool(
		mcp.NewTool("rules_reset",
			mcp.WithDescription("Replace all reply rules with the built-in defaults"),
		),
		s.handleRulesReset,
	)

	// reply_preview - Dry run the rule engine
	s.server.AddTool(
		mcp.NewTool("reply_preview",
			mcp.WithDescription("Show which rule would answer a message, without sending anything"),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Message text"),
			),
			mcp.WithString("chat_name",
				mcp.Description("Chat or contact name (used for the allow/block lists)"),
			),
			mcp.WithBoolean("group",
				mcp.Description("Whether the message comes from a group chat"),
			),
		),
		s.handleReplyPreview,
	)
}

func formatRule(i int, r Rule) string {
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%d. %s [%s, %s, priority %d, %s]\n   Keywords: %s\n   Reply: %s\n",
		i, r.ID, r.MatchType, r.Scope, r.Priority, state, strings.Join(r.Keywords, ", "), r.Reply)
}

func (s *MCPServer) handleRulesList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules := s.app.ListRules()
	if len(rules) == 0 {
		return textResult("No reply rules configured"), nil
	}

	result := fmt.Sprintf("Found %d rule(s):\n\n", len(rules))
	for i, r := range rules {
		result += formatRule(i+1, r)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleRuleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, ok := args["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("id is required")
	}
	keywords, _ := args["keywords"].(string)
	reply, _ := args["reply"].(string)

	rule := Rule{
		ID:        strings.TrimSpace(id),
		Keywords:  splitList(keywords),
		Reply:     reply,
		MatchType: autoreply.MatchContains,
		Scope:     autoreply.ScopeAll,
		Priority:  1,
		Enabled:   true,
	}
	if m, ok := args["match_type"].(string); ok && m != "" {
		rule.MatchType = autoreply.ParseMatchType(m)
	}
	if sc, ok := args["scope"].(string); ok && sc != "" {
		rule.Scope = autoreply.ParseScope(sc)
	}
	if p, ok := args["priority"].(float64); ok {
		rule.Priority = int(p)
	}
	if e, ok := args["enabled"].(bool); ok {
		rule.Enabled = e
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.app.SaveRule(rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	return textResult("Saved rule:\n\n" + formatRule(1, rule)), nil
}

func (s *MCPServer) handleRuleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id is required")
	}

	found, err := s.app.RemoveRule(id)
	if err != nil {
		return nil, fmt.Errorf("failed to remove rule: %w", err)
	}
	if !found {
		return textResult(fmt.Sprintf("Rule %s not found", id)), nil
	}
	return textResult(fmt.Sprintf("Removed rule %s", id)), nil
}

func (s *MCPServer) handleRulesReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	confirmed, err := s.confirm(ctx, "Reset reply rules",
		fmt.Sprintf("All %d configured rule(s) will be replaced by the defaults", len(s.app.ListRules())))
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return textResult("Reset cancelled by user"), nil
	}

	if err := s.app.ResetRules(); err != nil {
		return nil, fmt.Errorf("failed to reset rules: %w", err)
	}
	return textResult("Reply rules reset to defaults"), nil
}

func (s *MCPServer) handleReplyPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return nil, fmt.Errorf("content is required")
	}
	chatName, _ := args["chat_name"].(string)
	group, _ := args["group"].(bool)

	p := s.app.PreviewReply(content, chatName, group)
	switch {
	case p.Skip != "":
		return textResult(fmt.Sprintf("No reply: %s", p.Skip)), nil
	case !p.Matched:
		return textResult("No rule matches this message"), nil
	}
	return textResult(fmt.Sprintf("Rule %s would reply:\n%s", p.RuleID, p.Reply)), nil
}

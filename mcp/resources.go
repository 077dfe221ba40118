package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleStatusResource handles the aide://status resource
func (s *MCPServer) handleStatusResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.app.GetEngineStatus())
}

// handleRulesResource handles the aide://rules resource
func (s *MCPServer) handleRulesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rules := s.app.ListRules()
	if rules == nil {
		rules = []Rule{}
	}
	return jsonResource(request.Params.URI, rules)
}

// handleSettingResource handles the aide://settings/{key} resource template
func (s *MCPServer) handleSettingResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	key, ok := strings.CutPrefix(uri, "aide://settings/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}

	v, found := s.app.GetSetting(key)
	return jsonResource(uri, map[string]any{
		"key":   key,
		"value": v,
		"set":   found,
	})
}

package main

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"Aide/mcp"
	"Aide/pkg/settings"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.AideApp interface

func (b *MCPBridge) GetDevices() ([]mcp.Device, error) {
	return b.app.GetDevices()
}

func (b *MCPBridge) DumpHierarchy(maxDepth int) (string, error) {
	return b.app.DumpHierarchy(maxDepth)
}

func (b *MCPBridge) GetEngineStatus() mcp.EngineStatus {
	return b.app.GetEngineStatus()
}

func (b *MCPBridge) RecentMessages(limit int) []mcp.MessageView {
	return b.app.RecentMessages(limit)
}

func (b *MCPBridge) QueryAttempts(query mcp.AttemptQuery) (*mcp.AttemptQueryResult, error) {
	return b.app.QueryAttempts(query)
}

func (b *MCPBridge) ListRules() []mcp.Rule {
	return b.app.ListRules()
}

func (b *MCPBridge) SaveRule(rule mcp.Rule) error {
	return b.app.SaveRule(rule)
}

func (b *MCPBridge) RemoveRule(id string) (bool, error) {
	return b.app.RemoveRule(id)
}

func (b *MCPBridge) ResetRules() error {
	return b.app.ResetRules()
}

func (b *MCPBridge) PreviewReply(content, chatName string, group bool) mcp.ReplyPreview {
	return b.app.PreviewReply(content, chatName, group)
}

// GetSetting returns strings unquoted and anything else as raw JSON
func (b *MCPBridge) GetSetting(key string) (string, bool) {
	raw, ok := b.app.settings.Get(key)
	if !ok {
		return "", false
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.String {
		return r.Str, true
	}
	return r.Raw, true
}

// SetSetting rejects values the engine would silently ignore
func (b *MCPBridge) SetSetting(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key is empty")
	}
	if key == settings.KeyReplyRules && !gjson.Valid(value) {
		return fmt.Errorf("%s must be a JSON array of rules", key)
	}
	return b.app.settings.SetText(key, value)
}

func (b *MCPBridge) GetCoordinates() map[string]mcp.Point {
	return b.app.settings.Coordinates()
}

func (b *MCPBridge) Dial(contact string, video bool) (*mcp.DialResult, error) {
	return b.app.Dial(contact, video)
}

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}

// NewMCPServerForApp wires the app into a stdio MCP server
func NewMCPServerForApp(app *App) *mcp.MCPServer {
	return mcp.NewMCPServer(NewMCPBridge(app), mcp.WithLogger(ModuleLogger("mcp")))
}

// Package mcp provides the MCP (Model Context Protocol) server for Aide.
// It lets external AI clients inspect the automation engine, edit reply
// rules and settings, and place calls through the dialer.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"Aide/pkg/autoreply"
	"Aide/pkg/dialer"
	"Aide/pkg/types"
)

// Type aliases from shared packages
type (
	Device             = types.Device
	EngineStatus       = types.EngineStatus
	MessageView        = types.MessageView
	AttemptQuery       = types.AttemptQuery
	AttemptQueryResult = types.AttemptQueryResult
	AttemptRecord      = types.AttemptRecord
	ReplyPreview       = types.ReplyPreview
	Point              = types.Point
	Rule               = autoreply.Rule
	DialResult         = dialer.Result
)

// AideApp interface defines the methods that MCP server needs from the main App
type AideApp interface {
	// Device
	GetDevices() ([]Device, error)
	DumpHierarchy(maxDepth int) (string, error)

	// Engine
	GetEngineStatus() EngineStatus
	RecentMessages(limit int) []MessageView
	QueryAttempts(query AttemptQuery) (*AttemptQueryResult, error)

	// Reply rules
	ListRules() []Rule
	SaveRule(rule Rule) error
	RemoveRule(id string) (bool, error)
	ResetRules() error
	PreviewReply(content, chatName string, group bool) ReplyPreview

	// Settings
	GetSetting(key string) (string, bool)
	SetSetting(key, value string) error
	GetCoordinates() map[string]Point

	// Calls
	Dial(contact string, video bool) (*DialResult, error)

	// Utility
	GetAppVersion() string
}

// ErrAlreadyServing is returned when Serve is called on a busy server.
var ErrAlreadyServing = errors.New("mcp server is already serving")

// MCPServer exposes an AideApp over MCP.
type MCPServer struct {
	app     AideApp
	server  *server.MCPServer
	log     zerolog.Logger
	serving atomic.Bool
}

// Option customizes an MCPServer.
type Option func(*MCPServer)

// WithLogger sets the logger for session lifecycle messages.
func WithLogger(log zerolog.Logger) Option {
	return func(s *MCPServer) { s.log = log }
}

// NewMCPServer registers every Aide tool and resource for app.
func NewMCPServer(app AideApp, opts ...Option) *MCPServer {
	s := &MCPServer{
		app: app,
		server: server.NewMCPServer(
			"aide-wechat-automation",
			app.GetAppVersion(),
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(true, true),
			server.WithElicitation(), // dialing and resets ask first
			server.WithLogging(),
		),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerEngineTools()
	s.registerRuleTools()
	s.registerDeviceTools()
	s.registerResources()
	return s
}

func (s *MCPServer) registerResources() {
	asJSON := mcp.WithMIMEType("application/json")
	s.server.AddResource(mcp.NewResource("aide://status", "Automation engine status", asJSON), s.handleStatusResource)
	s.server.AddResource(mcp.NewResource("aide://rules", "Configured reply rules", asJSON), s.handleRulesResource)
	s.server.AddResourceTemplate(mcp.NewResourceTemplate("aide://settings/{key}", "A single setting value"), s.handleSettingResource)
}

// Serve speaks MCP over stdin and stdout until ctx is done or the client
// closes stdin.
func (s *MCPServer) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs one session over the given streams. Only one session may
// be active at a time.
func (s *MCPServer) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer s.serving.Store(false)

	s.log.Info().Str("version", s.app.GetAppVersion()).Msg("MCP session started")
	err := server.NewStdioServer(s.server).Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		s.log.Error().Err(err).Msg("MCP session failed")
		return err
	}
	s.log.Info().Msg("MCP session ended")
	return nil
}

// Serving reports whether a session is active.
func (s *MCPServer) Serving() bool { return s.serving.Load() }

// confirm asks the connected client to approve an action on the phone or
// on the user's configuration. Without a session it fails.
func (s *MCPServer) confirm(ctx context.Context, action, details string) (bool, error) {
	res, err := s.server.RequestElicitation(ctx, mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message: fmt.Sprintf("%s\n\n%s\n\nProceed?", action, details),
			RequestedSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirm": map[string]any{"type": "boolean", "description": "Approve " + action},
				},
				"required": []string{"confirm"},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("confirm %s: %w", action, err)
	}
	if res.Action != mcp.ElicitationResponseActionAccept {
		return false, nil
	}
	data, _ := res.Content.(map[string]any)
	ok, _ := data["confirm"].(bool)
	return ok, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers device, settings and call tools
func (s *MCPServer) registerDeviceTools() {
	// device_list - List connected devices
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List all connected Android devices"),
		),
		s.handleDeviceList,
	)

	// screen_dump - Print the current UI hierarchy
	s.server.AddTool(
		mcp.NewTool("screen_dump",
			mcp.WithDescription("Dump the current UI hierarchy of the device as an indented tree. Useful to adapt recognizers to a new WeChat version."),
			mcp.WithNumber("max_depth",
				mcp.Description("Maximum depth to print (default: 15)"),
			),
		),
		s.handleScreenDump,
	)

	// settings_get - Read one setting
	s.server.AddTool(
		mcp.NewTool("settings_get",
			mcp.WithDescription("Read a setting, e.g. auto_reply_enabled, auto_answer_video, auto_reply_delay"),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Setting key"),
			),
		),
		s.handleSettingsGet,
	)

	// settings_set - Write one setting
	s.server.AddTool(
		mcp.NewTool("settings_set",
			mcp.WithDescription("Write a setting. Values are JSON (true, 1500, [\"a\"]) or plain strings."),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Setting key"),
			),
			mcp.WithString("value",
				mcp.Required(),
				mcp.Description("New value"),
			),
		),
		s.handleSettingsSet,
	)

	// coordinates_list - Calibrated tap positions
	s.server.AddTool(
		mcp.NewTool("coordinates_list",
			mcp.WithDescription("List the calibrated fallback tap coordinates"),
		),
		s.handleCoordinatesList,
	)

	// call_dial - Place an outgoing call
	s.server.AddTool(
		mcp.NewTool("call_dial",
			mcp.WithDescription("Place a WeChat video or voice call to a contact by driving the WeChat UI"),
			mcp.WithString("contact",
				mcp.Required(),
				mcp.Description("Contact name as shown in WeChat search"),
			),
			mcp.WithBoolean("voice",
				mcp.Description("Voice call instead of video (default: false)"),
			),
		),
		s.handleCallDial,
	)
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	if len(devices) == 0 {
		return textResult("No devices connected"), nil
	}

	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		connType := ""
		if d.Type == "wireless" {
			connType = " [wireless]"
		}
		result += fmt.Sprintf("%d. %s%s\n   Model: %s, State: %s\n", i+1, d.ID, connType, d.Model, d.State)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleScreenDump(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	depth := 15
	if d, ok := args["max_depth"].(float64); ok && d > 0 {
		depth = int(d)
	}

	dump, err := s.app.DumpHierarchy(depth)
	if err != nil {
		return nil, fmt.Errorf("failed to dump hierarchy: %w", err)
	}
	return textResult(dump), nil
}

func (s *MCPServer) handleSettingsGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("key is required")
	}

	v, found := s.app.GetSetting(key)
	if !found {
		return textResult(fmt.Sprintf("%s is not set (default applies)", key)), nil
	}
	return textResult(fmt.Sprintf("%s = %s", key, v)), nil
}

func (s *MCPServer) handleSettingsSet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("key is required")
	}
	value, ok := args["value"].(string)
	if !ok {
		return nil, fmt.Errorf("value is required")
	}

	if err := s.app.SetSetting(key, value); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return textResult(fmt.Sprintf("%s = %s", key, value)), nil
}

func (s *MCPServer) handleCoordinatesList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coords := s.app.GetCoordinates()
	names := make([]string, 0, len(coords))
	for n := range coords {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Calibrated coordinates:\n\n")
	for _, n := range names {
		p := coords[n]
		if p.Valid() {
			fmt.Fprintf(&b, "%s: (%d, %d)\n", n, p.X, p.Y)
		} else {
			fmt.Fprintf(&b, "%s: not set\n", n)
		}
	}
	return textResult(b.String()), nil
}

func (s *MCPServer) handleCallDial(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	contact, ok := args["contact"].(string)
	if !ok || strings.TrimSpace(contact) == "" {
		return nil, fmt.Errorf("contact is required")
	}
	voice, _ := args["voice"].(bool)

	media := "video"
	if voice {
		media = "voice"
	}
	confirmed, err := s.confirm(ctx, "Place a call",
		fmt.Sprintf("A WeChat %s call to %s will be started on the phone", media, contact))
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return textResult("Call cancelled by user"), nil
	}

	res, err := s.app.Dial(contact, !voice)
	if err != nil {
		return nil, fmt.Errorf("failed to place call: %w", err)
	}

	result := fmt.Sprintf("Placed %s call to %s\n\n", media, res.Contact)
	for _, st := range res.Steps {
		result += fmt.Sprintf("- %s: %s", st.Step, st.Outcome)
		if st.Winner != "" {
			result += fmt.Sprintf(" via %s", st.Winner)
		}
		result += "\n"
	}
	return textResult(result), nil
}
